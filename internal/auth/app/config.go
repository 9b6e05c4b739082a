package app

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/aussiebroadwan/walletauth/internal/auth/ratelimit"
	"github.com/aussiebroadwan/walletauth/internal/auth/service"
	"github.com/aussiebroadwan/walletauth/pkg/jwtx"
)

const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

type Config struct {
	Issuer    string // issuer claim for access tokens (default: walletauth)
	Domain    string // SIWE domain line, the host the user signs in to
	URI       string // SIWE URI line
	Statement string // Optional: SIWE statement override

	Algorithm      string // JWT signing algorithm (ES256, EdDSA) (default: ES256)
	NumKeys        int    // ephemeral keys to generate (default: 1)
	SigningKeyFile string // Optional: PEM private key shared by all instances

	DatabaseFile string // path to SQLite database file (default: walletauth.db)
	PepperFile   string // path to refresh token fingerprint pepper (default: pepper)

	ChallengeTTL time.Duration
	AccessTTL    time.Duration
	RefreshTTL   time.Duration
	DefaultRole  string
	OpTimeout    time.Duration

	RateLimit        ratelimit.Config
	RateLimitBackend string // sqlite or redis (default: sqlite)
	EventsBackend    string // memory or redis (default: memory)
	RedisURL         string

	AdminToken string // Optional: enables admin routes outside prod
	TrustProxy bool   // honour X-Forwarded-For

	Env                  string // Environment (dev, staging, prod) (default: dev)
	LogLevel             string // Log level (debug, info, warn, error) (default: info)
	LogFormat            string // Log format (json, text) (default: json)
	Port                 int
	ShutdownGracePeriod  time.Duration
	HousekeepingInterval time.Duration
}

// AdminEnabled reports whether the development-only admin surface is on.
func (c Config) AdminEnabled() bool {
	return c.Env != "prod" && c.AdminToken != ""
}

// LoadConfig reads the environment, loading envFiles first (".env" when none
// are given). Missing files are fine; variables already set win.
func LoadConfig(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	cfg := Config{
		Issuer:    getEnvOrDefault("AUTH_ISSUER", "walletauth"),
		Domain:    getEnvOrDefault("AUTH_DOMAIN", "localhost"),
		URI:       getEnvOrDefault("AUTH_URI", "http://localhost:8080"),
		Statement: os.Getenv("AUTH_STATEMENT"),

		Algorithm:      getEnvOrDefault("AUTH_ALGORITHM", jwtx.AlgorithmES256),
		NumKeys:        getEnvIntOrDefault("AUTH_NUM_KEYS", 1),
		SigningKeyFile: os.Getenv("AUTH_SIGNING_KEY_FILE"),

		DatabaseFile: getEnvOrDefault("AUTH_DATABASE_FILE", "walletauth.db"),
		PepperFile:   getEnvOrDefault("AUTH_PEPPER_FILE", "pepper"),

		ChallengeTTL: getEnvDurationOrDefault("AUTH_CHALLENGE_TTL", service.DefaultChallengeTTL),
		AccessTTL:    getEnvDurationOrDefault("AUTH_ACCESS_TTL", jwtx.DefaultAccessTokenTTL),
		RefreshTTL:   getEnvDurationOrDefault("AUTH_REFRESH_TTL", jwtx.DefaultRefreshTokenTTL),
		DefaultRole:  getEnvOrDefault("AUTH_DEFAULT_ROLE", service.DefaultRole),
		OpTimeout:    getEnvDurationOrDefault("AUTH_OP_TIMEOUT", service.DefaultOpTimeout),

		RateLimit: ratelimit.Config{
			MaxAttempts:   getEnvIntOrDefault("RATELIMIT_ATTEMPTS", ratelimit.DefaultMaxAttempts),
			Window:        getEnvDurationOrDefault("RATELIMIT_WINDOW", ratelimit.DefaultWindow),
			BlockDuration: getEnvDurationOrDefault("RATELIMIT_BLOCK", 0),
		},
		RateLimitBackend: strings.ToLower(getEnvOrDefault("RATELIMIT_BACKEND", BackendSQLite)),
		EventsBackend:    strings.ToLower(getEnvOrDefault("EVENTS_BACKEND", BackendMemory)),
		RedisURL:         os.Getenv("REDIS_URL"),

		AdminToken: os.Getenv("ADMIN_TOKEN"),
		TrustProxy: getEnvBoolOrDefault("HTTP_TRUST_PROXY", false),

		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 1*time.Hour),
	}

	return cfg, cfg.Validate()
}

// Validate rejects combinations the service can't start with.
func (c Config) Validate() error {
	var errs []error

	switch c.Algorithm {
	case jwtx.AlgorithmES256, jwtx.AlgorithmEdDSA:
	default:
		errs = append(errs, fmt.Errorf("AUTH_ALGORITHM %q is not supported", c.Algorithm))
	}

	switch c.RateLimitBackend {
	case BackendSQLite, BackendRedis:
	default:
		errs = append(errs, fmt.Errorf("RATELIMIT_BACKEND %q is not supported", c.RateLimitBackend))
	}

	switch c.EventsBackend {
	case BackendMemory, BackendRedis:
	default:
		errs = append(errs, fmt.Errorf("EVENTS_BACKEND %q is not supported", c.EventsBackend))
	}

	if (c.RateLimitBackend == BackendRedis || c.EventsBackend == BackendRedis) && c.RedisURL == "" {
		errs = append(errs, errors.New("REDIS_URL is required for the redis backends"))
	}

	if c.Domain == "" || c.URI == "" {
		errs = append(errs, errors.New("AUTH_DOMAIN and AUTH_URI are required"))
	}

	if c.RateLimit.MaxAttempts <= 0 || c.RateLimit.Window <= 0 {
		errs = append(errs, errors.New("RATELIMIT_ATTEMPTS and RATELIMIT_WINDOW must be positive"))
	}

	return errors.Join(errs...)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if b, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return b
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are minutes
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}
