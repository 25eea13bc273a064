package main

import (
	"context"
	"time"

	"polling-backend/cache"
	"polling-backend/database"
	"polling-backend/logging"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(migrateCmd)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log := logging.Setup(cfg.LogLevel, cfg.LogFormat)

		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
		defer cancel()

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
		log.Info("schema up to date")
		return nil
	},
}
