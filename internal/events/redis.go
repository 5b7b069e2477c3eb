package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/stackdhq/stackd/internal/types"
)

// updateChannelPrefix is the per-job pub/sub channel prefix.
const updateChannelPrefix = "job_updates:"

// UpdateChannel returns the pub/sub channel name for a job.
func UpdateChannel(jobID string) string {
	return updateChannelPrefix + jobID
}

// RedisPublisher broadcasts updates on a per-job redis pub/sub channel so
// subscribers in other processes (API instances holding live connections)
// receive them too.
type RedisPublisher struct {
	client *redis.Client
}

// NewRedisPublisher creates a RedisPublisher over an existing client.
func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

// Publish implements Publisher.
func (p *RedisPublisher) Publish(ctx context.Context, update types.Update) error {
	data, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("failed to marshal update: %w", err)
	}
	if err := p.client.Publish(ctx, UpdateChannel(update.JobID), data).Err(); err != nil {
		return fmt.Errorf("failed to publish update for job %s: %w", update.JobID, err)
	}
	return nil
}

// Relay subscribes to every job update channel and forwards updates into
// the local hub until ctx is cancelled. Run once per API process so
// subscribers see updates published by workers in other processes.
func Relay(ctx context.Context, client *redis.Client, hub *Hub) {
	pubsub := client.PSubscribe(ctx, updateChannelPrefix+"*")
	defer func() { _ = pubsub.Close() }()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var update types.Update
			if err := json.Unmarshal([]byte(msg.Payload), &update); err != nil {
				continue
			}
			_ = hub.Publish(ctx, update)
		}
	}
}
