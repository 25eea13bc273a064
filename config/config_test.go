package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	for _, key := range []string{"SERVER_PORT", "DB_DRIVER", "DATABASE_URL", "JWT_ALGORITHM", "TOKEN_TTL",
		"COOKIE_NAME", "COOKIE_SECURE", "ARGON2_MEMORY_KIB", "CORS_ORIGINS", "TRUSTED_PROXIES"} {
		t.Setenv(key, "")
	}
	t.Setenv("JWT_SECRET", "test-secret")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "8090", cfg.Port)
	assert.Equal(t, DriverSQLite, cfg.DBDriver)
	assert.Equal(t, "polls.db", cfg.DatabaseURL)
	assert.Equal(t, "HS256", cfg.JWTAlgorithm)
	assert.Equal(t, 60*time.Minute, cfg.TokenTTL)
	assert.Equal(t, "session", cfg.CookieName)
	assert.True(t, cfg.CookieSecure)
	assert.Equal(t, uint32(64*1024), cfg.Argon2MemoryKiB)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.CORSOrigins)
	assert.Empty(t, cfg.TrustedProxies, "no proxy is trusted by default")
}

func TestFromEnv_TrustedProxies(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8, 192.168.1.10")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.0/8", "192.168.1.10"}, cfg.TrustedProxies)
}

func TestFromEnv_MissingSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	_, err := FromEnv()
	assert.ErrorIs(t, err, ErrMissingSecret)
}

func TestFromEnv_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"unknown algorithm", "JWT_ALGORITHM", "none"},
		{"unknown driver", "DB_DRIVER", "oracle"},
		{"bad ttl", "TOKEN_TTL", "soon"},
		{"negative ttl", "TOKEN_TTL", "-5m"},
		{"bad cookie flag", "COOKIE_SECURE", "maybe"},
		{"zero rate", "RATE_LIMIT", "0"},
		{"bad argon memory", "ARGON2_MEMORY_KIB", "lots"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("JWT_SECRET", "test-secret")
			t.Setenv(tc.key, tc.val)

			_, err := FromEnv()
			assert.Error(t, err)
		})
	}
}

func TestFromEnv_MySQLDSNComposed(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("DB_DRIVER", "MySQL")
	t.Setenv("DB_USER", "u")
	t.Setenv("DB_PASSWORD", "p")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_NAME", "votes")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, DriverMySQL, cfg.DBDriver)
	assert.Equal(t, "u:p@tcp(db:3306)/votes?charset=utf8mb4&parseTime=True&loc=UTC", cfg.DatabaseURL)
}

func TestLoad_DotEnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte("JWT_SECRET=from-file\nTOKEN_TTL=15m\n"), 0o600))

	// godotenv never overrides variables that are already set.
	t.Setenv("JWT_SECRET", "")
	os.Unsetenv("JWT_SECRET")
	t.Setenv("TOKEN_TTL", "")
	os.Unsetenv("TOKEN_TTL")

	cfg, err := Load(envFile)
	require.NoError(t, err)
	assert.Equal(t, []byte("from-file"), cfg.JWTSecret)
	assert.Equal(t, 15*time.Minute, cfg.TokenTTL)
}
