package handlers

import (
	"net/http"

	"polling-backend/cache"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// RateLimit rejects requests with 429 once the client IP exhausts its
// bucket. Limiter errors let the request through.
func RateLimit(limiter cache.RateLimiter, log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		allowed, err := limiter.Allow(c.Request.Context(), ip)
		if err != nil {
			log.WithError(err).WithField("ip", ip).Warn("rate limiter unavailable")
			c.Next()
			return
		}
		if !allowed {
			log.WithFields(logrus.Fields{"ip": ip, "path": c.Request.URL.Path}).Warn("rate limited")
			writeError(c, http.StatusTooManyRequests, KindRateLimited, "too many requests, try again later")
			return
		}
		c.Next()
	}
}
