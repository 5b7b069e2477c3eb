package services

import (
	"context"
	"sync"
	"time"

	"github.com/stackdhq/stackd/internal/config"
	"github.com/stackdhq/stackd/internal/logger"
	"github.com/stackdhq/stackd/internal/queue"
)

// LaunchWorker launches a worker loop that claims jobs from the queue and
// runs them end-to-end, one at a time. Run it in its own goroutine; it stops
// when ctx is cancelled.
func LaunchWorker(ctx context.Context, wg *sync.WaitGroup, orch *Orchestrator, q queue.Queue, cfg config.WorkerConfig) {
	defer wg.Done()

	backoff := cfg.PollInterval
	if backoff <= 0 {
		backoff = time.Second
	}

	logger.Info("Worker started")

	for {
		select {
		case <-ctx.Done():
			logger.Info("Worker received shutdown signal, stopping...")
			return
		default:
		}

		req, err := q.Dequeue(ctx)
		if err != nil {
			logger.Errorf("Worker error dequeuing job: %v", err)
			// Wait before retrying to avoid spamming logs on persistent
			// backend errors.
			sleep(ctx, backoff)
			continue
		}
		if req == nil {
			sleep(ctx, backoff)
			continue
		}

		logger.Infof("Worker claimed job %s (%s %s)", req.JobID, req.Action, req.ResourceType)

		// The per-job timeout bounds how long a claimed job is held. Run
		// converts every failure, including the deadline, into a terminal
		// FAILED record.
		jobCtx := ctx
		var cancel context.CancelFunc
		if cfg.JobTimeout > 0 {
			jobCtx, cancel = context.WithTimeout(ctx, cfg.JobTimeout)
		}
		orch.Run(jobCtx, req)
		if cancel != nil {
			cancel()
		}

		if err := q.Complete(ctx, req.JobID); err != nil {
			logger.Errorf("Worker failed to release job %s: %v", req.JobID, err)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
