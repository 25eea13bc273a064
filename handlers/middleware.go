package handlers

import (
	"time"

	"polling-backend/auth"
	"polling-backend/models"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const currentUserKey = "currentUser"

// RequireAuth resolves the session cookie to a user or rejects the request
// with 401.
func (h *Handler) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := h.accounts.Authenticate(c.Request.Context(), auth.SessionToken(c, h.cookie))
		if err != nil {
			h.writeServiceError(c, err)
			return
		}
		c.Set(currentUserKey, user)
		c.Next()
	}
}

// currentUser returns the user stored by RequireAuth.
func currentUser(c *gin.Context) *models.User {
	return c.MustGet(currentUserKey).(*models.User)
}

// AccessLog writes one logrus entry per request.
func AccessLog(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := log.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
			"ip":      c.ClientIP(),
		})
		switch status := c.Writer.Status(); {
		case status >= 500:
			entry.Error("request")
		case status >= 400:
			entry.Warn("request")
		default:
			entry.Info("request")
		}
	}
}
