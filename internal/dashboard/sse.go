package dashboard

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/switchboard/internal/models"
)

// queueEvent reports the pending queue after it changed.
type queueEvent struct {
	Pending int   `json:"pending"`
	Oldest  *uint `json:"oldest_chat_id,omitempty"`
}

// queueTracker remembers the last reported queue state.
type queueTracker struct {
	seen    bool
	pending int
	oldest  uint
}

// observe returns the event to send for the current queue, if its length or
// oldest chat differs from the last one reported.
func (t *queueTracker) observe(chats []models.Chat) (queueEvent, bool) {
	var oldest uint
	if len(chats) > 0 {
		oldest = chats[0].ID
	}
	if t.seen && len(chats) == t.pending && oldest == t.oldest {
		return queueEvent{}, false
	}
	t.seen, t.pending, t.oldest = true, len(chats), oldest
	evt := queueEvent{Pending: len(chats)}
	if len(chats) > 0 {
		evt.Oldest = &oldest
	}
	return evt, true
}

// handleSSE streams pending-queue changes. The first queue event carries the
// current state.
func handleSSE(q Querier, poll time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")

		writeSSE(c.Writer, "connected", map[string]string{"type": "connected"})
		c.Writer.Flush()

		ctx := c.Request.Context()
		ticker := time.NewTicker(poll)
		heartbeat := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		defer heartbeat.Stop()

		var tracker queueTracker
		check := func() {
			chats, err := q.GetPendingChats(ctx)
			if err != nil {
				return
			}
			evt, changed := tracker.observe(chats)
			if !changed {
				return
			}
			writeSSE(c.Writer, "queue", evt)
			c.Writer.Flush()
		}
		check()

		for {
			select {
			case <-ctx.Done():
				return
			case <-heartbeat.C:
				writeSSE(c.Writer, "heartbeat", map[string]string{
					"timestamp": time.Now().UTC().Format(time.RFC3339),
				})
				c.Writer.Flush()
			case <-ticker.C:
				check()
			}
		}
	}
}

// writeSSE writes a single SSE event to the writer.
func writeSSE(w io.Writer, event string, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, string(jsonData))
}
