package events

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackdhq/stackd/internal/types"
)

func TestHubDeliversInEmissionOrder(t *testing.T) {
	hub := NewHub()
	ctx := context.Background()

	sub := hub.Subscribe("j1")
	defer hub.Unsubscribe(sub)

	const n = 10
	for i := 0; i < n; i++ {
		require.NoError(t, hub.Publish(ctx, types.Update{
			Type:  types.UpdateTypeLog,
			JobID: "j1",
			Data:  fmt.Sprintf("entry %d", i),
		}))
	}

	for i := 0; i < n; i++ {
		update := <-sub.C
		assert.Equal(t, fmt.Sprintf("entry %d", i), update.Data)
	}
}

func TestHubIsolatesJobs(t *testing.T) {
	hub := NewHub()
	ctx := context.Background()

	sub1 := hub.Subscribe("j1")
	sub2 := hub.Subscribe("j2")
	defer hub.Unsubscribe(sub1)
	defer hub.Unsubscribe(sub2)

	require.NoError(t, hub.Publish(ctx, types.Update{Type: types.UpdateTypeStatus, JobID: "j1", Data: "a"}))

	update := <-sub1.C
	assert.Equal(t, "j1", update.JobID)
	assert.Empty(t, sub2.C)
}

func TestHubNoHistoryReplay(t *testing.T) {
	hub := NewHub()
	ctx := context.Background()

	require.NoError(t, hub.Publish(ctx, types.Update{Type: types.UpdateTypeLog, JobID: "j1", Data: "before"}))

	sub := hub.Subscribe("j1")
	defer hub.Unsubscribe(sub)

	require.NoError(t, hub.Publish(ctx, types.Update{Type: types.UpdateTypeLog, JobID: "j1", Data: "after"}))

	update := <-sub.C
	assert.Equal(t, "after", update.Data)
	assert.Empty(t, sub.C)
}

func TestHubPrunesSlowSubscriber(t *testing.T) {
	hub := NewHub()
	ctx := context.Background()

	hub.Subscribe("j1")
	require.Equal(t, 1, hub.SubscriberCount("j1"))

	// Never drained: overflowing the buffer drops the subscriber.
	for i := 0; i < SubscriberBuffer+1; i++ {
		require.NoError(t, hub.Publish(ctx, types.Update{Type: types.UpdateTypeLog, JobID: "j1", Data: i}))
	}
	assert.Equal(t, 0, hub.SubscriberCount("j1"))
}

func TestHubUnsubscribeClosesChannel(t *testing.T) {
	hub := NewHub()

	sub := hub.Subscribe("j1")
	hub.Unsubscribe(sub)

	_, open := <-sub.C
	assert.False(t, open)
	assert.Equal(t, 0, hub.SubscriberCount("j1"))
}

func TestFanoutPublishesToAll(t *testing.T) {
	hub1 := NewHub()
	hub2 := NewHub()
	ctx := context.Background()

	sub1 := hub1.Subscribe("j1")
	sub2 := hub2.Subscribe("j1")

	fan := Fanout{hub1, hub2}
	require.NoError(t, fan.Publish(ctx, types.Update{Type: types.UpdateTypeStatus, JobID: "j1", Data: "x"}))

	assert.Equal(t, "x", (<-sub1.C).Data)
	assert.Equal(t, "x", (<-sub2.C).Data)
}
