package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Supported database drivers.
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

var (
	ErrMissingSecret = errors.New("JWT_SECRET environment variable must be set")
	ErrBadAlgorithm  = errors.New("JWT_ALGORITHM must be one of HS256, HS384, HS512")
	ErrBadDriver     = errors.New("DB_DRIVER must be one of mysql, postgres, sqlite")
)

// Config holds every process-wide setting. It is loaded once at startup and
// treated as read-only afterwards.
type Config struct {
	Port        string
	GinMode     string
	CORSOrigins []string
	// TrustedProxies may set X-Forwarded-For; empty trusts no proxy.
	TrustedProxies []string

	DBDriver    string
	DatabaseURL string

	JWTSecret    []byte
	JWTAlgorithm string
	TokenTTL     time.Duration

	CookieName   string
	CookieDomain string
	CookieSecure bool

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	RateLimit int
	RateBurst int

	Argon2MemoryKiB   uint32
	Argon2Iterations  uint32
	Argon2Parallelism uint8

	LogLevel  string
	LogFormat string
}

// Load reads an optional .env file and then the environment. A missing
// secret or a malformed value is returned as an error; callers must refuse
// to serve in that case.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if _, err := os.Stat(f); err == nil {
			if err := godotenv.Load(f); err != nil {
				return nil, fmt.Errorf("loading %s: %w", f, err)
			}
		}
	}
	return FromEnv()
}

// FromEnv builds a Config from the current environment only.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Port:           getEnv("SERVER_PORT", "8090"),
		GinMode:        getEnv("GIN_MODE", "release"),
		CORSOrigins:    splitList(getEnv("CORS_ORIGINS", "http://localhost:3000")),
		TrustedProxies: splitList(os.Getenv("TRUSTED_PROXIES")),
		DBDriver:       strings.ToLower(getEnv("DB_DRIVER", DriverSQLite)),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		JWTSecret:      []byte(os.Getenv("JWT_SECRET")),
		JWTAlgorithm:   strings.ToUpper(getEnv("JWT_ALGORITHM", "HS256")),
		CookieName:     getEnv("COOKIE_NAME", "session"),
		CookieDomain:   os.Getenv("COOKIE_DOMAIN"),
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "text"),
	}

	var err error
	if cfg.TokenTTL, err = getDuration("TOKEN_TTL", 60*time.Minute); err != nil {
		return nil, err
	}
	if cfg.CookieSecure, err = getBool("COOKIE_SECURE", true); err != nil {
		return nil, err
	}
	if cfg.RedisDB, err = getInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.RateLimit, err = getInt("RATE_LIMIT", 5); err != nil {
		return nil, err
	}
	if cfg.RateBurst, err = getInt("RATE_BURST", 10); err != nil {
		return nil, err
	}

	mem, err := getInt("ARGON2_MEMORY_KIB", 64*1024)
	if err != nil {
		return nil, err
	}
	iters, err := getInt("ARGON2_ITERATIONS", 3)
	if err != nil {
		return nil, err
	}
	lanes, err := getInt("ARGON2_PARALLELISM", 4)
	if err != nil {
		return nil, err
	}
	if mem <= 0 || iters <= 0 || lanes <= 0 || lanes > 255 {
		return nil, errors.New("argon2 parameters must be positive (parallelism at most 255)")
	}
	cfg.Argon2MemoryKiB = uint32(mem)
	cfg.Argon2Iterations = uint32(iters)
	cfg.Argon2Parallelism = uint8(lanes)

	if cfg.DBDriver == DriverMySQL && cfg.DatabaseURL == "" {
		cfg.DatabaseURL = fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			getEnv("DB_USER", "polluser"),
			getEnv("DB_PASSWORD", ""),
			getEnv("DB_HOST", "localhost"),
			getEnv("DB_PORT", "3306"),
			getEnv("DB_NAME", "polls"))
	}
	if cfg.DBDriver == DriverSQLite && cfg.DatabaseURL == "" {
		cfg.DatabaseURL = "polls.db"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings that must be present before serving.
func (c *Config) Validate() error {
	if len(c.JWTSecret) == 0 {
		return ErrMissingSecret
	}
	switch c.JWTAlgorithm {
	case "HS256", "HS384", "HS512":
	default:
		return ErrBadAlgorithm
	}
	switch c.DBDriver {
	case DriverMySQL, DriverPostgres, DriverSQLite:
	default:
		return ErrBadDriver
	}
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL must be set for " + c.DBDriver)
	}
	if c.TokenTTL <= 0 {
		return errors.New("TOKEN_TTL must be positive")
	}
	if c.RateLimit <= 0 || c.RateBurst <= 0 {
		return errors.New("RATE_LIMIT and RATE_BURST must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getBool(key string, defaultValue bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
