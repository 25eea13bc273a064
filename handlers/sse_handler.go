package handlers

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const sseHeartbeat = 15 * time.Second

// HandleSSE streams a poll's results as server-sent events for clients that
// can't use websockets. Events are named "results"; a "heartbeat" event is
// sent while idle.
func (h *Handler) HandleSSE(c *gin.Context) {
	results, ok := h.initialResults(c)
	if !ok {
		return
	}

	w, err := h.hub.subscribe(results.PollID)
	if err != nil {
		writeError(c, http.StatusServiceUnavailable, KindInternal, err.Error())
		return
	}
	defer h.hub.unsubscribe(w)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.SSEvent("results", ResultsMessage{Type: "results", Results: results})
	c.Writer.Flush()

	heartbeat := time.NewTicker(sseHeartbeat)
	defer heartbeat.Stop()

	c.Stream(func(io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case msg, ok := <-w.send:
			if !ok {
				return false
			}
			c.SSEvent("results", string(msg))
			return true
		case t := <-heartbeat.C:
			c.SSEvent("heartbeat", t.UTC().Format(time.RFC3339))
			return true
		}
	})
}
