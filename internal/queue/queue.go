// Package queue provides the job queue contract: durable enqueue, and an
// atomic claim on dequeue guaranteeing at most one active worker per job.
package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/stackdhq/stackd/internal/types"
)

// ErrQueueUnavailable indicates the backend cannot accept or serve work.
// Submissions that hit it are recorded as FAILED rather than left orphaned.
var ErrQueueUnavailable = errors.New("queue unavailable")

// Priority orders the queues a worker drains.
type Priority string

// Queue priorities, drained in this order.
const (
	PriorityHigh    Priority = "high"
	PriorityDefault Priority = "default"
	PriorityLow     Priority = "low"
)

// Priorities lists all priorities in drain order.
var Priorities = []Priority{PriorityHigh, PriorityDefault, PriorityLow}

// ParsePriority converts a string into a Priority.
func ParsePriority(s string) (Priority, error) {
	switch Priority(s) {
	case PriorityHigh, PriorityDefault, PriorityLow:
		return Priority(s), nil
	default:
		return "", fmt.Errorf("invalid priority: %q", s)
	}
}

// Queue is the contract between submission and workers.
//
// Dequeue must atomically relocate the job from the pending namespace to the
// processing namespace before returning it; two concurrent dequeuers never
// receive the same job. A worker that crashes after claiming leaves the job
// in processing; no automatic reclaim is performed.
type Queue interface {
	// Enqueue adds a request to the pending queue for its priority.
	Enqueue(ctx context.Context, req *types.JobRequest, pri Priority) error

	// Dequeue claims and returns the next pending request, draining
	// priorities in order. Returns (nil, nil) when all queues are empty.
	Dequeue(ctx context.Context) (*types.JobRequest, error)

	// Complete removes a previously claimed job from the processing
	// namespace.
	Complete(ctx context.Context, jobID string) error

	// Peek returns pending requests without claiming them.
	Peek(ctx context.Context) ([]*types.JobRequest, error)
}
