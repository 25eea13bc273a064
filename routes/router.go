package routes

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"polling-backend/cache"
	"polling-backend/handlers"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Options configures the engine around the handlers.
type Options struct {
	GinMode     string
	CORSOrigins []string
	// TrustedProxies are the proxy addresses or CIDRs whose forwarding
	// headers ClientIP honours. Empty means the socket address is used.
	TrustedProxies []string
	SignupLimiter  cache.RateLimiter
	LoginLimiter   cache.RateLimiter
	Log            *logrus.Logger
}

// SetupRouter builds the gin engine serving the /api/v0 surface. It fails
// when a trusted proxy entry is not an IP or CIDR.
func SetupRouter(h *handlers.Handler, opts Options) (*gin.Engine, error) {
	if opts.GinMode != "" {
		gin.SetMode(opts.GinMode)
	}

	router := gin.New()
	if err := router.SetTrustedProxies(opts.TrustedProxies); err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}
	router.Use(gin.Recovery())
	if gin.Mode() == gin.DebugMode {
		router.Use(gin.Logger())
	}
	router.Use(handlers.AccessLog(opts.Log))
	if len(opts.CORSOrigins) > 0 {
		router.Use(cors.New(corsConfig(opts.CORSOrigins)))
	}

	api := router.Group("/api")
	api.GET("/health", h.Health)

	v0 := api.Group("/v0")
	{
		authGroup := v0.Group("/auth")
		authGroup.POST("/signup", handlers.RateLimit(opts.SignupLimiter, opts.Log), h.Signup)
		authGroup.POST("/login", handlers.RateLimit(opts.LoginLimiter, opts.Log), h.Login)
		authGroup.POST("/logout", h.Logout)

		users := v0.Group("/users")
		me := users.Group("/me", h.RequireAuth())
		me.GET("", h.Me)
		me.PUT("", h.UpdateMe)
		me.GET("/polls", h.MyPolls)
		me.GET("/voted", h.MyVotes)
		users.GET("/:id", h.GetUser)

		polls := v0.Group("/polls")
		polls.GET("/search", h.RequireAuth(), h.SearchPolls)
		polls.POST("", h.RequireAuth(), h.CreatePoll)
		polls.GET("/:id", h.GetPoll)
		polls.GET("/:id/results", h.GetResults)
		polls.POST("/:id/vote", h.RequireAuth(), h.Vote)
		polls.GET("/:id/ws", h.HandleWebSocket)
		polls.GET("/:id/events", h.HandleSSE)
	}

	return router, nil
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	// Session cookies cross origins only to an explicit allow list.
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}

// StartServer serves handler on addr in the background. The returned
// channel receives the error if the listener fails.
func StartServer(addr string, handler http.Handler, log *logrus.Logger) (*http.Server, <-chan error) {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", addr).Info("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	return srv, errCh
}
