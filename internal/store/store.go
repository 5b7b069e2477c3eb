// Package store persists job records and their bounded log lists.
package store

import (
	"context"
	"errors"

	"github.com/stackdhq/stackd/internal/types"
)

// ErrJobNotFound is returned when a job id has no stored record.
var ErrJobNotFound = errors.New("job not found")

// ErrInvalidTransition is returned when the stored status does not permit
// the requested transition.
var ErrInvalidTransition = errors.New("invalid status transition")

// JobStore is the durable read-model contract the orchestrator depends on.
// Implementations must be safe for concurrent use. The queue's claim
// invariant keeps a record in the hands of one worker, but a cancel can
// arrive from any goroutine, so status transitions go through
// CompareAndSetStatus.
type JobStore interface {
	// CreateJob stores a fresh record.
	CreateJob(ctx context.Context, record *types.JobRecord) error

	// GetJob returns the record for a job id, without logs.
	GetJob(ctx context.Context, jobID string) (*types.JobRecord, error)

	// ListJobs returns all stored records, newest first, without logs.
	ListJobs(ctx context.Context) ([]*types.JobRecord, error)

	// UpdateJob overwrites the stored record.
	UpdateJob(ctx context.Context, record *types.JobRecord) error

	// CompareAndSetStatus moves a job to status and persists record in a
	// single atomic step. The stored status decides legality: the write is
	// applied when the stored status equals status (a same-state
	// re-persist, used for progress updates) or may transition to it.
	// Otherwise ErrInvalidTransition is returned and nothing is written.
	// On success record.Status is set to status before persisting.
	CompareAndSetStatus(ctx context.Context, record *types.JobRecord, status types.JobStatus) error

	// AppendLog appends one entry to the job's log list, dropping the
	// oldest entries beyond types.MaxLogEntries.
	AppendLog(ctx context.Context, jobID string, entry types.LogEntry) error

	// GetLogs returns the retained log entries in append order.
	GetLogs(ctx context.Context, jobID string) ([]types.LogEntry, error)
}
