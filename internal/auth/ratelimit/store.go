package ratelimit

import (
	"context"
	"errors"

	"github.com/aussiebroadwan/walletauth/internal/auth/domain"
	"github.com/aussiebroadwan/walletauth/internal/auth/store"
	"github.com/aussiebroadwan/walletauth/pkg/clockx"
)

// StoreLimiter keeps counters in the shared auth store. Each attempt is a
// read-modify-write inside one transaction.
type StoreLimiter struct {
	store  store.Store
	clock  clockx.Clock
	config Config
}

func NewStoreLimiter(s store.Store, clock clockx.Clock, cfg Config) *StoreLimiter {
	if clock == nil {
		clock = clockx.System()
	}
	return &StoreLimiter{store: s, clock: clock, config: cfg.normalised()}
}

func (l *StoreLimiter) Record(
	ctx context.Context,
	identifier string,
	kind domain.IdentifierKind,
) (domain.RateLimitDecision, error) {
	var decision domain.RateLimitDecision
	err := l.store.WithTx(ctx, func(tx store.Tx) error {
		rec, err := tx.RateLimits().GetRateLimit(ctx, identifier, kind)
		found := err == nil
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if !found {
			rec = domain.RateLimitRecord{Identifier: identifier, Kind: kind}
		}

		next, d := step(l.config, rec, found, l.clock.Now())
		decision = d
		return tx.RateLimits().UpsertRateLimit(ctx, next)
	})
	if err != nil {
		return domain.RateLimitDecision{}, err
	}
	return decision, nil
}

func (l *StoreLimiter) Status(
	ctx context.Context,
	identifier string,
	kind domain.IdentifierKind,
) (domain.RateLimitDecision, error) {
	rec, err := l.store.RateLimits().GetRateLimit(ctx, identifier, kind)
	if errors.Is(err, store.ErrNotFound) {
		return domain.RateLimitDecision{}, nil
	}
	if err != nil {
		return domain.RateLimitDecision{}, err
	}
	return status(l.config, rec, l.clock.Now()), nil
}

func (l *StoreLimiter) Clear(ctx context.Context, identifier string, kind domain.IdentifierKind) error {
	admin, err := l.store.Admin()
	if err != nil {
		return err
	}
	_, err = admin.ClearRateLimit(ctx, identifier, kind)
	return err
}

// Cleanup removes records that have been idle for a full window past their
// own window and are not blocked.
func (l *StoreLimiter) Cleanup(ctx context.Context) (int64, error) {
	now := l.clock.Now()
	return l.store.RateLimits().DeleteStaleRateLimits(ctx, now.Add(-2*l.config.Window), now)
}
