package handlers

import (
	"bufio"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"

	"github.com/stackdhq/stackd/internal/events"
	"github.com/stackdhq/stackd/internal/logger"
	"github.com/stackdhq/stackd/internal/types"
)

// streamHeartbeat is how often an idle stream writes an SSE comment. The
// write trips the error path for a disconnected client, so the goroutine
// and its subscription are reaped instead of blocking forever.
const streamHeartbeat = 15 * time.Second

// StreamHandler serves live job updates over server-sent events.
type StreamHandler struct {
	hub *events.Hub
}

// NewStreamHandler creates a new stream handler instance
func NewStreamHandler(hub *events.Hub) *StreamHandler {
	return &StreamHandler{hub: hub}
}

// StreamJobEvents streams a job's status and log updates as they happen.
// A client connecting mid-job receives only subsequent events; history is
// served by the logs endpoint.
func (h *StreamHandler) StreamJobEvents(c *fiber.Ctx) error {
	jobID := c.Params("id")
	if jobID == "" {
		return c.Status(fiber.StatusBadRequest).
			JSON(errInvalidInput("invalid job id"))
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")

	sub := h.hub.Subscribe(jobID)

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer h.hub.Unsubscribe(sub)
		streamEvents(w, sub.C, streamHeartbeat)
	}))

	return nil
}

// streamEvents pumps updates to the client as SSE frames and writes a
// keepalive comment on every heartbeat tick. It returns when the channel
// closes or any write or flush fails.
func streamEvents(w *bufio.Writer, updates <-chan types.Update, heartbeat time.Duration) {
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return
			}
			data, err := json.Marshal(update)
			if err != nil {
				logger.Errorf("Failed to marshal update for job %s: %v", update.JobID, err)
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", update.Type, data); err != nil {
				return
			}
			if err := w.Flush(); err != nil {
				return
			}
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
			if err := w.Flush(); err != nil {
				return
			}
		}
	}
}
