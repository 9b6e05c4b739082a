// Package ratelimit bounds challenge issuance and verification attempts per
// wallet address and per client IP.
package ratelimit

import (
	"context"
	"time"

	"github.com/aussiebroadwan/walletauth/internal/auth/domain"
)

const (
	DefaultMaxAttempts = 10
	DefaultWindow      = 15 * time.Minute
)

// Config bounds attempts for a single identifier.
type Config struct {
	// MaxAttempts is how many attempts are allowed inside one window. The
	// next one trips the block.
	MaxAttempts int
	Window      time.Duration
	// BlockDuration is how long a tripped identifier stays blocked. Zero
	// keeps it blocked until the current window ends.
	BlockDuration time.Duration
}

func DefaultConfig() Config {
	return Config{MaxAttempts: DefaultMaxAttempts, Window: DefaultWindow}
}

func (c Config) normalised() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.Window <= 0 {
		c.Window = DefaultWindow
	}
	if c.BlockDuration < 0 {
		c.BlockDuration = 0
	}
	return c
}

// Limiter tracks attempts per (identifier, kind). Implementations must be
// safe for concurrent use and share their state across instances.
type Limiter interface {
	// Record counts one attempt and reports whether the identifier is now
	// blocked. Attempts made while blocked are not counted.
	Record(ctx context.Context, identifier string, kind domain.IdentifierKind) (domain.RateLimitDecision, error)

	// Status reports the current decision without counting an attempt.
	Status(ctx context.Context, identifier string, kind domain.IdentifierKind) (domain.RateLimitDecision, error)

	// Clear forgets an identifier. Only available where administrative
	// operations are enabled; store.ErrAdminDisabled otherwise.
	Clear(ctx context.Context, identifier string, kind domain.IdentifierKind) error

	// Cleanup drops stale records and returns how many went.
	Cleanup(ctx context.Context) (int64, error)
}

// step applies one attempt at now to rec. found is false for a fresh
// identifier. The returned record should be persisted as is.
func step(cfg Config, rec domain.RateLimitRecord, found bool, now time.Time) (domain.RateLimitRecord, domain.RateLimitDecision) {
	if found && rec.BlockedUntil != nil && now.Before(*rec.BlockedUntil) {
		return rec, domain.RateLimitDecision{
			Blocked:      true,
			AttemptCount: rec.AttemptCount,
			RetryAfter:   rec.BlockedUntil.Sub(now),
		}
	}

	lapsed := found && rec.BlockedUntil != nil
	if !found || lapsed || now.Sub(rec.WindowStart) > cfg.Window {
		rec.AttemptCount = 0
		rec.WindowStart = now
		rec.BlockedUntil = nil
	}

	rec.AttemptCount++
	if rec.AttemptCount <= cfg.MaxAttempts {
		return rec, domain.RateLimitDecision{AttemptCount: rec.AttemptCount}
	}

	until := now.Add(cfg.BlockDuration)
	if cfg.BlockDuration == 0 {
		until = rec.WindowStart.Add(cfg.Window)
	}
	rec.BlockedUntil = &until
	return rec, domain.RateLimitDecision{
		Blocked:      true,
		AttemptCount: rec.AttemptCount,
		RetryAfter:   until.Sub(now),
	}
}

// status is the read-only view of rec at now.
func status(cfg Config, rec domain.RateLimitRecord, now time.Time) domain.RateLimitDecision {
	if rec.BlockedUntil != nil && now.Before(*rec.BlockedUntil) {
		return domain.RateLimitDecision{
			Blocked:      true,
			AttemptCount: rec.AttemptCount,
			RetryAfter:   rec.BlockedUntil.Sub(now),
		}
	}
	if rec.BlockedUntil != nil || now.Sub(rec.WindowStart) > cfg.Window {
		return domain.RateLimitDecision{}
	}
	return domain.RateLimitDecision{AttemptCount: rec.AttemptCount}
}
