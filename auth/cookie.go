package auth

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// CookieConfig describes how the session token travels to the browser.
type CookieConfig struct {
	Name   string
	Domain string
	Secure bool
}

// SetSessionCookie stores token as an HttpOnly, SameSite=Strict cookie that
// lives for ttl.
func SetSessionCookie(c *gin.Context, cfg CookieConfig, token string, ttl time.Duration) {
	maxAge := int(ttl / time.Second)
	if maxAge < 1 {
		maxAge = 1
	}
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(cfg.Name, token, maxAge, "/", cfg.Domain, cfg.Secure, true)
}

// ClearSessionCookie expires the session cookie immediately.
func ClearSessionCookie(c *gin.Context, cfg CookieConfig) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(cfg.Name, "", -1, "/", cfg.Domain, cfg.Secure, true)
}

// SessionToken returns the token carried by the request, or "" if none.
func SessionToken(c *gin.Context, cfg CookieConfig) string {
	token, err := c.Cookie(cfg.Name)
	if err != nil {
		return ""
	}
	return token
}
