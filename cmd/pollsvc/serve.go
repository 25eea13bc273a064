package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"polling-backend/auth"
	"polling-backend/cache"
	"polling-backend/database"
	"polling-backend/handlers"
	"polling-backend/logging"
	"polling-backend/mq"
	"polling-backend/repository"
	"polling-backend/routes"
	"polling-backend/service"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
)

func init() {
	serveCmd.Flags().StringVar(&portFlag, "port", "", "listen port")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the polling API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

func serve(parent context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg, log)
	if err != nil {
		return err
	}
	defer database.Close(db, log)

	rdb, err := cache.NewRedisClient(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer cache.CloseRedis(rdb, log)

	var lock database.Locker
	if rdb != nil {
		lock = cache.NewDistributedLockService(rdb, log)
	}
	if err := database.Migrate(ctx, db, lock); err != nil {
		return err
	}

	params := auth.DefaultArgon2Params
	params.Memory = cfg.Argon2MemoryKiB
	params.Iterations = cfg.Argon2Iterations
	params.Parallelism = cfg.Argon2Parallelism
	hasher, err := auth.NewPasswordHasher(params)
	if err != nil {
		return err
	}

	clock := clockwork.NewRealClock()
	tokens, err := auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTAlgorithm, clock)
	if err != nil {
		return err
	}

	resultsCache := cache.NewResultsCache(rdb)
	broker := mq.NewBroker(rdb, log)
	defer broker.Close()

	accounts, err := service.NewAccountService(repository.NewUserRepository(db), hasher, tokens, cfg.TokenTTL, log)
	if err != nil {
		return err
	}
	polls := service.NewPollService(repository.NewPollRepository(db), resultsCache, log)
	ledger := service.NewVoteLedger(db, resultsCache, broker, clock, log)

	hub := handlers.NewHub(polls, broker, cfg.CORSOrigins, log)
	go func() {
		if err := hub.Run(ctx); err != nil && ctx.Err() == nil {
			log.WithError(err).Error("live results hub stopped")
		}
	}()

	h := handlers.New(handlers.Deps{
		Accounts: accounts,
		Polls:    polls,
		Ledger:   ledger,
		Hub:      hub,
		DB:       db,
		Cookie: auth.CookieConfig{
			Name:   cfg.CookieName,
			Domain: cfg.CookieDomain,
			Secure: cfg.CookieSecure,
		},
		Log: log,
	})

	router, err := routes.SetupRouter(h, routes.Options{
		GinMode:        cfg.GinMode,
		CORSOrigins:    cfg.CORSOrigins,
		TrustedProxies: cfg.TrustedProxies,
		SignupLimiter:  cache.NewRateLimiter(rdb, "signup", cfg.RateLimit, cfg.RateBurst),
		LoginLimiter:   cache.NewRateLimiter(rdb, "login", cfg.RateLimit, cfg.RateBurst),
		Log:            log,
	})
	if err != nil {
		return err
	}

	srv, serveErr := routes.StartServer(":"+cfg.Port, router, log)
	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("server forced to shutdown")
		return err
	}
	log.Info("server exited")
	return nil
}
