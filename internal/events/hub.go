// Package events broadcasts job status and log updates to real-time
// subscribers.
package events

import (
	"context"
	"sync"

	"github.com/stackdhq/stackd/internal/logger"
	"github.com/stackdhq/stackd/internal/types"
)

// SubscriberBuffer is the channel buffer per subscriber. A subscriber that
// falls this far behind is treated as disconnected and pruned.
const SubscriberBuffer = 64

// Publisher delivers one update to its consumers.
type Publisher interface {
	Publish(ctx context.Context, update types.Update) error
}

// Fanout publishes to each wrapped publisher in order. The first error is
// returned after all publishers have been attempted.
type Fanout []Publisher

// Publish implements Publisher.
func (f Fanout) Publish(ctx context.Context, update types.Update) error {
	var firstErr error
	for _, p := range f {
		if err := p.Publish(ctx, update); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Subscription is one live listener on a job's update channel.
type Subscription struct {
	// C receives updates in emission order.
	C     <-chan types.Update
	jobID string
	ch    chan types.Update
}

// Hub fans job updates out to per-job subscribers. A subscriber connecting
// mid-job receives only subsequent events; history is served by the store's
// read path, not replayed here.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[*Subscription]struct{}
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{subs: map[string]map[*Subscription]struct{}{}}
}

// Subscribe registers a listener for one job's updates.
func (h *Hub) Subscribe(jobID string) *Subscription {
	ch := make(chan types.Update, SubscriberBuffer)
	sub := &Subscription{C: ch, jobID: jobID, ch: ch}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[jobID] == nil {
		h.subs[jobID] = map[*Subscription]struct{}{}
	}
	h.subs[jobID][sub] = struct{}{}
	return sub
}

// Unsubscribe removes a listener and closes its channel.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.remove(sub)
}

// remove must be called with the lock held.
func (h *Hub) remove(sub *Subscription) {
	set, ok := h.subs[sub.jobID]
	if !ok {
		return
	}
	if _, ok := set[sub]; !ok {
		return
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(h.subs, sub.jobID)
	}
	close(sub.ch)
}

// Publish delivers the update to every subscriber of its job, in emission
// order. A subscriber whose buffer is full is dropped silently and pruned
// from the broadcast set.
func (h *Hub) Publish(_ context.Context, update types.Update) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.subs[update.JobID] {
		select {
		case sub.ch <- update:
		default:
			logger.Warnf("Dropping slow subscriber for job %s", update.JobID)
			h.remove(sub)
		}
	}
	return nil
}

// SubscriberCount returns the number of live subscribers for a job.
func (h *Hub) SubscriberCount(jobID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[jobID])
}
