package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stackdhq/stackd/internal/types"
)

// Redis key layout.
const (
	jobKeyPrefix  = "stackd:job:"
	logsKeyPrefix = "stackd:job_logs:"
	jobIndexKey   = "stackd:jobs"
)

// RedisStore keeps job records as JSON values and logs as capped lists, both
// with a TTL so finished jobs age out of the hot store.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a RedisStore over an existing client. ttl bounds how
// long results and logs are retained; zero disables expiry.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// CreateJob stores a fresh record and indexes its id.
func (s *RedisStore) CreateJob(ctx context.Context, record *types.JobRecord) error {
	if err := s.writeRecord(ctx, record); err != nil {
		return err
	}
	return s.client.SAdd(ctx, jobIndexKey, record.JobID).Err()
}

// UpdateJob overwrites the stored record.
func (s *RedisStore) UpdateJob(ctx context.Context, record *types.JobRecord) error {
	return s.writeRecord(ctx, record)
}

func (s *RedisStore) writeRecord(ctx context.Context, record *types.JobRecord) error {
	// Logs live in their own list; the record value stays small.
	clone := *record
	clone.Logs = nil

	data, err := json.Marshal(&clone)
	if err != nil {
		return fmt.Errorf("failed to marshal job record: %w", err)
	}
	if err := s.client.Set(ctx, jobKeyPrefix+record.JobID, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store job %s: %w", record.JobID, err)
	}
	return nil
}

// casRetries bounds how many times a watched transition is retried after
// losing the race to a concurrent writer.
const casRetries = 5

// CompareAndSetStatus runs the transition check and the write inside a
// WATCH/MULTI block on the job key. A concurrent write to the key aborts
// the transaction and the check is re-run against the fresh value.
func (s *RedisStore) CompareAndSetStatus(ctx context.Context, record *types.JobRecord, status types.JobStatus) error {
	key := jobKeyPrefix + record.JobID

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("%w: %s", ErrJobNotFound, record.JobID)
		}
		if err != nil {
			return fmt.Errorf("failed to get job %s: %w", record.JobID, err)
		}
		var stored types.JobRecord
		if err := json.Unmarshal(data, &stored); err != nil {
			return fmt.Errorf("malformed job record %s: %w", record.JobID, err)
		}
		if stored.Status != status && !stored.Status.CanTransitionTo(status) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, stored.Status, status)
		}

		record.Status = status
		clone := *record
		clone.Logs = nil
		payload, err := json.Marshal(&clone)
		if err != nil {
			return fmt.Errorf("failed to marshal job record: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, s.ttl)
			return nil
		})
		return err
	}

	var err error
	for i := 0; i < casRetries; i++ {
		err = s.client.Watch(ctx, txf, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return fmt.Errorf("failed to update status for job %s: %w", record.JobID, err)
}

// GetJob returns the record for a job id, without logs.
func (s *RedisStore) GetJob(ctx context.Context, jobID string) (*types.JobRecord, error) {
	data, err := s.client.Get(ctx, jobKeyPrefix+jobID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job %s: %w", jobID, err)
	}
	var record types.JobRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("malformed job record %s: %w", jobID, err)
	}
	return &record, nil
}

// ListJobs returns all indexed records, newest first. Ids whose records have
// expired are skipped.
func (s *RedisStore) ListJobs(ctx context.Context) ([]*types.JobRecord, error) {
	ids, err := s.client.SMembers(ctx, jobIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	records := make([]*types.JobRecord, 0, len(ids))
	for _, id := range ids {
		record, err := s.GetJob(ctx, id)
		if errors.Is(err, ErrJobNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool {
		ti, tj := recordTime(records[i]), recordTime(records[j])
		return ti.After(tj)
	})
	return records, nil
}

func recordTime(r *types.JobRecord) time.Time {
	if r.StartedAt != nil {
		return *r.StartedAt
	}
	return time.Time{}
}

// AppendLog pushes one entry and trims the list to types.MaxLogEntries.
func (s *RedisStore) AppendLog(ctx context.Context, jobID string, entry types.LogEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal log entry: %w", err)
	}

	key := logsKeyPrefix + jobID
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, types.MaxLogEntries-1)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append log for job %s: %w", jobID, err)
	}
	return nil
}

// GetLogs returns retained entries in append order.
func (s *RedisStore) GetLogs(ctx context.Context, jobID string) ([]types.LogEntry, error) {
	raw, err := s.client.LRange(ctx, logsKeyPrefix+jobID, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get logs for job %s: %w", jobID, err)
	}
	// LPUSH stores newest first; reverse back to append order.
	entries := make([]types.LogEntry, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		var entry types.LogEntry
		if err := json.Unmarshal([]byte(raw[i]), &entry); err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
