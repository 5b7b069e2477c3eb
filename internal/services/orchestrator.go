// Package services implements the business logic for job orchestration.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stackdhq/stackd/internal/events"
	"github.com/stackdhq/stackd/internal/logger"
	"github.com/stackdhq/stackd/internal/queue"
	"github.com/stackdhq/stackd/internal/store"
	"github.com/stackdhq/stackd/internal/templates"
	"github.com/stackdhq/stackd/internal/terraform"
	"github.com/stackdhq/stackd/internal/types"
)

// StepWorkspace is the pipeline step label for workspace preparation.
const StepWorkspace = "workspace_setup"

// pipelineSteps is the full step sequence used for progress reporting.
var pipelineSteps = append([]string{StepWorkspace}, terraform.PipelineSteps...)

// Orchestrator owns the job state machine: it creates records, enqueues
// work, drives the pipeline, and fans status and log updates out to the
// store and the real-time publisher. All collaborators are injected at
// construction time.
type Orchestrator struct {
	store     store.JobStore
	queue     queue.Queue
	resolver  *templates.Resolver
	builder   WorkspaceBuilder
	runner    *terraform.Runner
	publisher events.Publisher
}

// WorkspaceBuilder is the slice of the workspace package the orchestrator
// depends on. *workspace.Builder satisfies it; tests substitute a failing
// double.
type WorkspaceBuilder interface {
	Build(templateDir string, req *types.JobRequest) (string, error)
}

// NewOrchestrator wires an Orchestrator from its collaborators.
func NewOrchestrator(
	jobStore store.JobStore,
	q queue.Queue,
	resolver *templates.Resolver,
	builder WorkspaceBuilder,
	runner *terraform.Runner,
	publisher events.Publisher,
) *Orchestrator {
	return &Orchestrator{
		store:     jobStore,
		queue:     q,
		resolver:  resolver,
		builder:   builder,
		runner:    runner,
		publisher: publisher,
	}
}

// Submit creates the job record in QUEUED and pushes the request onto the
// queue. If the queue cannot accept work the job is recorded as FAILED with
// that reason rather than left orphaned, and the error is returned to the
// caller.
func (o *Orchestrator) Submit(ctx context.Context, req *types.JobRequest, pri queue.Priority) (string, error) {
	record := &types.JobRecord{
		JobID:  req.JobID,
		Status: types.JobStatusQueued,
	}
	if err := o.store.CreateJob(ctx, record); err != nil {
		return "", fmt.Errorf("failed to create job record: %w", err)
	}

	o.appendLog(ctx, req.JobID, types.LogLevelInfo,
		fmt.Sprintf("Queued %s job for %s %q", req.Action, req.ResourceType, req.Name), "")

	if err := o.queue.Enqueue(ctx, req, pri); err != nil {
		now := time.Now().UTC()
		record.ErrorMessage = fmt.Sprintf("failed to enqueue job: %v", err)
		record.CompletedAt = &now
		if casErr := o.store.CompareAndSetStatus(ctx, record, types.JobStatusFailed); casErr != nil {
			logger.Errorf("Failed to record enqueue failure for job %s: %v", req.JobID, casErr)
		}
		o.appendLog(ctx, req.JobID, types.LogLevelError, record.ErrorMessage, "")
		o.publishStatus(ctx, record)
		return "", err
	}

	o.publishStatus(ctx, record)
	return req.JobID, nil
}

// Cancel marks a job CANCELLED. It returns false when the job is already
// terminal, including when it reaches a terminal state concurrently with
// this call. Cancellation is cooperative: an in-flight external tool
// process is not killed, but the pipeline refuses to overwrite the terminal
// state.
func (o *Orchestrator) Cancel(ctx context.Context, jobID string) (bool, error) {
	record, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return false, err
	}
	if record.Status.IsTerminal() {
		return false, nil
	}

	now := time.Now().UTC()
	record.CompletedAt = &now
	err = o.store.CompareAndSetStatus(ctx, record, types.JobStatusCancelled)
	if errors.Is(err, store.ErrInvalidTransition) {
		// Lost the race to COMPLETED or FAILED.
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to cancel job %s: %w", jobID, err)
	}
	o.appendLog(ctx, jobID, types.LogLevelWarning, "Job cancelled by request", "")
	o.publishStatus(ctx, record)
	return true, nil
}

// Run executes the five-step pipeline for a claimed request. Every failure
// is caught at its step boundary and converted into a terminal FAILED record
// with a classified error message; nothing escapes to leave the job stuck in
// RUNNING.
func (o *Orchestrator) Run(ctx context.Context, req *types.JobRequest) {
	record, err := o.store.GetJob(ctx, req.JobID)
	if err != nil {
		logger.Errorf("Claimed job %s has no record: %v", req.JobID, err)
		return
	}
	if record.Status.IsTerminal() {
		// Cancelled (or otherwise finished) between enqueue and claim.
		logger.Infof("Skipping job %s in terminal state %s", req.JobID, record.Status)
		return
	}

	run := &jobRun{orch: o, ctx: ctx, record: record}

	if !run.setStatus(types.JobStatusRunning) {
		// Cancelled between the read above and the transition.
		return
	}
	run.Log(types.LogLevelInfo,
		fmt.Sprintf("Starting %s job for %s %q", req.Action, req.ResourceType, req.Name), "")

	run.StepStarted(StepWorkspace)
	templateDir, warnings, err := o.resolver.Resolve(req)
	for _, w := range warnings {
		run.Log(types.LogLevelWarning, w, StepWorkspace)
	}
	if err != nil {
		run.fail(err)
		return
	}

	dir, err := o.builder.Build(templateDir, req)
	if err != nil {
		run.fail(err)
		return
	}
	run.Log(types.LogLevelInfo, "Workspace prepared: "+dir, StepWorkspace)

	output, err := o.runner.Execute(ctx, dir, req.Action, run)
	if err != nil {
		run.fail(err)
		return
	}

	run.record.TerraformOutput = output
	if run.setStatus(types.JobStatusCompleted) {
		run.Log(types.LogLevelInfo, "Job completed successfully", "")
	}
}

// GetJob returns the full read model for a job: record plus retained logs.
func (o *Orchestrator) GetJob(ctx context.Context, jobID string) (*types.JobRecord, error) {
	record, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	logs, err := o.store.GetLogs(ctx, jobID)
	if err != nil {
		return nil, err
	}
	record.Logs = logs
	return record, nil
}

// GetLogs returns a job's retained logs in append order.
func (o *Orchestrator) GetLogs(ctx context.Context, jobID string) ([]types.LogEntry, error) {
	if _, err := o.store.GetJob(ctx, jobID); err != nil {
		return nil, err
	}
	return o.store.GetLogs(ctx, jobID)
}

// ListJobs returns all job records, newest first, without logs.
func (o *Orchestrator) ListJobs(ctx context.Context) ([]*types.JobRecord, error) {
	return o.store.ListJobs(ctx)
}

func (o *Orchestrator) appendLog(ctx context.Context, jobID, level, message, step string) {
	entry := types.NewLogEntry(level, message, step)
	if err := o.store.AppendLog(ctx, jobID, entry); err != nil {
		logger.Errorf("Failed to append log for job %s: %v", jobID, err)
		return
	}
	o.publish(ctx, types.Update{Type: types.UpdateTypeLog, JobID: jobID, Data: entry})
}

func (o *Orchestrator) publishStatus(ctx context.Context, record *types.JobRecord) {
	// Subscribers get a snapshot; the pipeline keeps mutating the record.
	snapshot := *record
	if record.Progress != nil {
		p := *record.Progress
		snapshot.Progress = &p
	}
	o.publish(ctx, types.Update{Type: types.UpdateTypeStatus, JobID: record.JobID, Data: &snapshot})
}

func (o *Orchestrator) publish(ctx context.Context, update types.Update) {
	if o.publisher == nil {
		return
	}
	if err := o.publisher.Publish(ctx, update); err != nil {
		logger.Warnf("Failed to publish update for job %s: %v", update.JobID, err)
	}
}

// jobRun carries the mutable state of one pipeline execution and implements
// terraform.Sink. The store write always happens before the broadcast so
// pollers and subscribers never disagree for long.
type jobRun struct {
	orch      *Orchestrator
	ctx       context.Context
	record    *types.JobRecord
	completed int
}

// Log implements terraform.Sink.
func (r *jobRun) Log(level, message, step string) {
	r.orch.appendLog(r.ctx, r.record.JobID, level, message, step)
}

// StepStarted implements terraform.Sink, advancing the progress indicator.
// The write re-asserts RUNNING, so a concurrent cancel cannot be papered
// over by a progress update.
func (r *jobRun) StepStarted(step string) {
	r.record.Progress = &types.JobProgress{
		CurrentStep:    step,
		TotalSteps:     len(pipelineSteps),
		CompletedSteps: r.completed,
		Percentage:     r.completed * 100 / len(pipelineSteps),
	}
	r.completed++
	if err := r.orch.store.CompareAndSetStatus(r.ctx, r.record, types.JobStatusRunning); err != nil {
		if !errors.Is(err, store.ErrInvalidTransition) {
			logger.Errorf("Failed to update progress for job %s: %v", r.record.JobID, err)
		}
		return
	}
	r.orch.publishStatus(r.ctx, r.record)
}

// setStatus applies a forward transition through the store's atomic
// check-and-write and reports whether it was applied. A refusal means the
// job reached a terminal state underneath us; the local copy is refreshed
// so the rest of the pipeline sees it.
func (r *jobRun) setStatus(status types.JobStatus) bool {
	now := time.Now().UTC()
	switch status {
	case types.JobStatusRunning:
		r.record.StartedAt = &now
	case types.JobStatusCompleted, types.JobStatusFailed, types.JobStatusCancelled:
		r.record.CompletedAt = &now
		if r.record.Progress != nil && status == types.JobStatusCompleted {
			r.record.Progress.CompletedSteps = len(pipelineSteps)
			r.record.Progress.Percentage = 100
		}
	}

	err := r.orch.store.CompareAndSetStatus(r.ctx, r.record, status)
	if errors.Is(err, store.ErrInvalidTransition) {
		logger.Warnf("Refusing transition to %s for job %s: %v", status, r.record.JobID, err)
		if current, getErr := r.orch.store.GetJob(r.ctx, r.record.JobID); getErr == nil {
			r.record.Status = current.Status
		}
		return false
	}
	if err != nil {
		logger.Errorf("Failed to update status for job %s: %v", r.record.JobID, err)
		return false
	}
	r.orch.publishStatus(r.ctx, r.record)
	return true
}

// fail converts any pipeline error into a terminal FAILED record.
func (r *jobRun) fail(err error) {
	var cmdErr *terraform.CommandError
	if errors.As(err, &cmdErr) {
		r.record.ErrorMessage = cmdErr.Error()
	} else {
		r.record.ErrorMessage = err.Error()
	}
	r.Log(types.LogLevelError, "Job failed: "+r.record.ErrorMessage, "")
	r.setStatus(types.JobStatusFailed)
}
