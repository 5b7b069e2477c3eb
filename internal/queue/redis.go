package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/stackdhq/stackd/internal/types"
)

// Redis key layout.
const (
	pendingKeyPrefix = "stackd:queue:pending:"
	processingKey    = "stackd:queue:processing"
)

// RedisQueue is a redis-backed queue. Pending jobs live in one list per
// priority; claiming is a single LMOVE into the processing list, which redis
// executes atomically, so concurrent dequeuers can never claim the same
// entry.
type RedisQueue struct {
	client *redis.Client
}

// NewRedisQueue creates a RedisQueue over an existing client.
func NewRedisQueue(client *redis.Client) *RedisQueue {
	return &RedisQueue{client: client}
}

func pendingKey(pri Priority) string {
	return pendingKeyPrefix + string(pri)
}

// Enqueue pushes the serialized request onto its priority list.
func (q *RedisQueue) Enqueue(ctx context.Context, req *types.JobRequest, pri Priority) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	if err := q.client.LPush(ctx, pendingKey(pri), data).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
	}
	return nil
}

// Dequeue claims the oldest entry from the highest non-empty priority list
// via LMOVE pending -> processing.
func (q *RedisQueue) Dequeue(ctx context.Context) (*types.JobRequest, error) {
	for _, pri := range Priorities {
		data, err := q.client.LMove(ctx, pendingKey(pri), processingKey, "RIGHT", "LEFT").Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
		}
		var req types.JobRequest
		if err := json.Unmarshal([]byte(data), &req); err != nil {
			return nil, fmt.Errorf("malformed queue entry: %w", err)
		}
		return &req, nil
	}
	return nil, nil
}

// Complete removes the claimed job's entry from the processing list.
func (q *RedisQueue) Complete(ctx context.Context, jobID string) error {
	entries, err := q.client.LRange(ctx, processingKey, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
	}
	for _, entry := range entries {
		var req types.JobRequest
		if err := json.Unmarshal([]byte(entry), &req); err != nil {
			continue
		}
		if req.JobID == jobID {
			if err := q.client.LRem(ctx, processingKey, 1, entry).Err(); err != nil {
				return fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
			}
			return nil
		}
	}
	return nil
}

// Peek returns pending requests in priority then age order without claiming.
func (q *RedisQueue) Peek(ctx context.Context) ([]*types.JobRequest, error) {
	var out []*types.JobRequest
	for _, pri := range Priorities {
		entries, err := q.client.LRange(ctx, pendingKey(pri), 0, -1).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
		}
		// LPUSH prepends, so the oldest entry is at the tail.
		for i := len(entries) - 1; i >= 0; i-- {
			var req types.JobRequest
			if err := json.Unmarshal([]byte(entries[i]), &req); err != nil {
				continue
			}
			out = append(out, &req)
		}
	}
	return out, nil
}
