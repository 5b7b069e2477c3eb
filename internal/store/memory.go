package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/stackdhq/stackd/internal/types"
)

// MemoryStore is an in-process JobStore used in tests and single-node
// development setups.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*types.JobRecord
	logs    map[string][]types.LogEntry
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: map[string]*types.JobRecord{},
		logs:    map[string][]types.LogEntry{},
	}
}

// CreateJob stores a fresh record.
func (s *MemoryStore) CreateJob(_ context.Context, record *types.JobRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.JobID] = cloneRecord(record)
	return nil
}

// UpdateJob overwrites the stored record.
func (s *MemoryStore) UpdateJob(_ context.Context, record *types.JobRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.JobID] = cloneRecord(record)
	return nil
}

// CompareAndSetStatus checks the stored status and overwrites the record
// under one lock hold, so a concurrent terminal write cannot slip between
// the check and the write.
func (s *MemoryStore) CompareAndSetStatus(_ context.Context, record *types.JobRecord, status types.JobStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.records[record.JobID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, record.JobID)
	}
	if stored.Status != status && !stored.Status.CanTransitionTo(status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, stored.Status, status)
	}
	record.Status = status
	s.records[record.JobID] = cloneRecord(record)
	return nil
}

// GetJob returns the record for a job id, without logs.
func (s *MemoryStore) GetJob(_ context.Context, jobID string) (*types.JobRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	return cloneRecord(record), nil
}

// ListJobs returns all records, newest first.
func (s *MemoryStore) ListJobs(_ context.Context) ([]*types.JobRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*types.JobRecord, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, cloneRecord(r))
	}
	sort.Slice(out, func(i, j int) bool {
		ti, tj := recordTime(out[i]), recordTime(out[j])
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return out[i].JobID < out[j].JobID
	})
	return out, nil
}

// AppendLog appends an entry, dropping the oldest beyond the cap.
func (s *MemoryStore) AppendLog(_ context.Context, jobID string, entry types.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := append(s.logs[jobID], entry)
	if len(entries) > types.MaxLogEntries {
		entries = entries[len(entries)-types.MaxLogEntries:]
	}
	s.logs[jobID] = entries
	return nil
}

// GetLogs returns retained entries in append order.
func (s *MemoryStore) GetLogs(_ context.Context, jobID string) ([]types.LogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := s.logs[jobID]
	out := make([]types.LogEntry, len(entries))
	copy(out, entries)
	return out, nil
}

func cloneRecord(r *types.JobRecord) *types.JobRecord {
	clone := *r
	clone.Logs = nil
	if r.Progress != nil {
		p := *r.Progress
		clone.Progress = &p
	}
	if r.TerraformOutput != nil {
		out := make(map[string]interface{}, len(r.TerraformOutput))
		for k, v := range r.TerraformOutput {
			out[k] = v
		}
		clone.TerraformOutput = out
	}
	return &clone
}
