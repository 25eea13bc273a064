package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"polling-backend/database"

	"github.com/gin-gonic/gin"
)

var startTime = time.Now()

// HealthStatus is the body of GET /api/health.
type HealthStatus struct {
	Status       string    `json:"status"`
	DBStatus     string    `json:"db_status"`
	Uptime       string    `json:"uptime"`
	CurrentTime  time.Time `json:"current_time"`
	GoVersion    string    `json:"go_version"`
	NumGoroutine int       `json:"num_goroutine"`
	Watchers     int       `json:"watchers"`
}

// Health reports liveness and whether the database answers a ping. It
// returns 503 when the database is unreachable.
func (h *Handler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := HealthStatus{
		Status:       "ok",
		DBStatus:     "ok",
		Uptime:       time.Since(startTime).Round(time.Second).String(),
		CurrentTime:  time.Now().UTC(),
		GoVersion:    runtime.Version(),
		NumGoroutine: runtime.NumGoroutine(),
		Watchers:     h.hub.Watchers(),
	}

	code := http.StatusOK
	if err := database.Ping(ctx, h.db); err != nil {
		h.log.WithError(err).Warn("health check: database ping failed")
		status.Status = "degraded"
		status.DBStatus = "error"
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}
