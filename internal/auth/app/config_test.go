package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/walletauth/internal/auth/ratelimit"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, k := range []string{
		"ENV", "AUTH_ISSUER", "AUTH_ALGORITHM", "AUTH_CHALLENGE_TTL", "AUTH_ACCESS_TTL",
		"AUTH_REFRESH_TTL", "RATELIMIT_ATTEMPTS", "RATELIMIT_WINDOW", "RATELIMIT_BLOCK",
		"RATELIMIT_BACKEND", "EVENTS_BACKEND", "ADMIN_TOKEN",
	} {
		t.Setenv(k, "")
	}

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "walletauth", cfg.Issuer)
	assert.Equal(t, "ES256", cfg.Algorithm)
	assert.Equal(t, BackendSQLite, cfg.RateLimitBackend)
	assert.Equal(t, BackendMemory, cfg.EventsBackend)
	assert.Equal(t, 5*time.Minute, cfg.ChallengeTTL)
	assert.Equal(t, 15*time.Minute, cfg.AccessTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.RefreshTTL)
	assert.Equal(t, ratelimit.DefaultMaxAttempts, cfg.RateLimit.MaxAttempts)
	assert.Equal(t, ratelimit.DefaultWindow, cfg.RateLimit.Window)
	assert.Zero(t, cfg.RateLimit.BlockDuration)
	assert.False(t, cfg.AdminEnabled())
}

func TestLoadConfigDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(path, []byte(
		"AUTH_DOMAIN=wallet.example.com\n"+
			"AUTH_CHALLENGE_TTL=2m\n"+
			"RATELIMIT_ATTEMPTS=3\n"+
			"RATELIMIT_WINDOW=30\n"+
			"ADMIN_TOKEN=from-file\n",
	), 0o600))

	// Variables already in the environment win over the file.
	t.Setenv("AUTH_DOMAIN", "env.example.com")
	t.Setenv("ENV", "dev")
	// godotenv only fills unset keys, so clear the rest for the test.
	for _, k := range []string{"AUTH_CHALLENGE_TTL", "RATELIMIT_ATTEMPTS", "RATELIMIT_WINDOW", "ADMIN_TOKEN"} {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "env.example.com", cfg.Domain)
	assert.Equal(t, 2*time.Minute, cfg.ChallengeTTL)
	assert.Equal(t, 3, cfg.RateLimit.MaxAttempts)
	assert.Equal(t, 30*time.Minute, cfg.RateLimit.Window)
	assert.True(t, cfg.AdminEnabled())
}

func TestConfigValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Algorithm:        "ES256",
			Domain:           "example.com",
			URI:              "https://example.com",
			RateLimit:        ratelimit.DefaultConfig(),
			RateLimitBackend: BackendSQLite,
			EventsBackend:    BackendMemory,
		}
	}

	require.NoError(t, valid().Validate())

	for _, tc := range []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"Algorithm", func(c *Config) { c.Algorithm = "RS256" }, "AUTH_ALGORITHM"},
		{"RateLimitBackend", func(c *Config) { c.RateLimitBackend = "memcached" }, "RATELIMIT_BACKEND"},
		{"EventsBackend", func(c *Config) { c.EventsBackend = "kafka" }, "EVENTS_BACKEND"},
		{"RedisURL", func(c *Config) { c.EventsBackend = BackendRedis }, "REDIS_URL"},
		{"Domain", func(c *Config) { c.Domain = "" }, "AUTH_DOMAIN"},
		{"Attempts", func(c *Config) { c.RateLimit.MaxAttempts = 0 }, "RATELIMIT_ATTEMPTS"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(&cfg)
			assert.ErrorContains(t, cfg.Validate(), tc.want)
		})
	}
}

func TestAdminEnabled(t *testing.T) {
	assert.False(t, Config{Env: "prod", AdminToken: "x"}.AdminEnabled())
	assert.False(t, Config{Env: "dev"}.AdminEnabled())
	assert.True(t, Config{Env: "staging", AdminToken: "x"}.AdminEnabled())
}
