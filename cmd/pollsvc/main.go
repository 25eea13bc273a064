// Command pollsvc serves the polling API.
package main

import (
	"fmt"
	"os"

	"polling-backend/config"

	"github.com/spf13/cobra"
)

var (
	envFile   string
	portFlag  string
	dbDriver  string
	dbURL     string
	logLevel  string
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:           "pollsvc",
	Short:         "Polling service with one vote per user per poll",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the environment")
	rootCmd.PersistentFlags().StringVar(&dbDriver, "db-driver", "", "database driver (mysql, postgres, sqlite)")
	rootCmd.PersistentFlags().StringVar(&dbURL, "database-url", "", "database DSN")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (text, json)")
}

// loadConfig reads the environment and applies flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, err
	}
	if portFlag != "" {
		cfg.Port = portFlag
	}
	if dbDriver != "" {
		cfg.DBDriver = dbDriver
	}
	if dbURL != "" {
		cfg.DatabaseURL = dbURL
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if logFormat != "" {
		cfg.LogFormat = logFormat
	}
	return cfg, cfg.Validate()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
