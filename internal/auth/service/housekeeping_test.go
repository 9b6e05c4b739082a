package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/walletauth/internal/auth/domain"
	"github.com/aussiebroadwan/walletauth/internal/auth/ratelimit"
	"github.com/aussiebroadwan/walletauth/pkg/slogx"
)

func TestHousekeepingCleanup(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, ratelimit.DefaultConfig())

	h.login(t)
	h.issue(t)

	hk := NewHousekeepingService(h.base, h.limiter, slogx.Discard(), time.Minute)
	hk.Clock = h.clock

	t.Run("NothingExpired", func(t *testing.T) {
		res := hk.Cleanup(ctx)
		assert.Zero(t, res.Challenges)
		assert.Zero(t, res.RefreshTokens)
		assert.Zero(t, res.RateLimits)
		assert.Zero(t, res.Failures)
	})

	t.Run("AfterExpiry", func(t *testing.T) {
		h.clock.Advance(48 * time.Hour)

		res := hk.Cleanup(ctx)
		assert.Equal(t, int64(2), res.Challenges)
		assert.Equal(t, int64(1), res.RefreshTokens)
		assert.GreaterOrEqual(t, res.RateLimits, int64(1))
		assert.Zero(t, res.Failures)

		_, err := h.base.RateLimits().GetRateLimit(ctx, h.address, domain.KindAddress)
		assert.Error(t, err)
	})

	t.Run("Grace", func(t *testing.T) {
		h.issue(t)
		h.clock.Advance(10 * time.Minute)

		hk.Grace = time.Hour
		assert.Zero(t, hk.Cleanup(ctx).Challenges)

		hk.Grace = 0
		assert.Equal(t, int64(1), hk.Cleanup(ctx).Challenges)
	})
}

func TestHousekeepingKeepsRecentlyExpiredChallenges(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, ratelimit.DefaultConfig())

	hk := NewHousekeepingService(h.base, h.limiter, slogx.Discard(), time.Hour)
	hk.Clock = h.clock
	require.Equal(t, DefaultChallengeTTL, hk.Grace)

	c := h.issue(t)
	h.clock.Set(c.ExpiresAt.Add(time.Second))
	require.Zero(t, hk.Cleanup(ctx).Challenges)

	_, err := h.auth.VerifyChallenge(ctx, VerifyRequest{
		Message:   c.Message,
		Signature: h.sign(t, c.Message),
	}, true)
	require.ErrorIs(t, err, ErrChallengeExpired)
}

func TestHousekeepingStopWithoutStart(t *testing.T) {
	h := newHarness(t, ratelimit.DefaultConfig())
	hk := NewHousekeepingService(h.base, h.limiter, slogx.Discard(), time.Hour)

	done := make(chan struct{})
	go func() {
		hk.Stop()
		hk.Stop()
		hk.Start() // no-op once stopped
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop blocked without Start")
	}
}

func TestHousekeepingStartStop(t *testing.T) {
	h := newHarness(t, ratelimit.DefaultConfig())

	hk := NewHousekeepingService(h.base, h.limiter, slogx.Discard(), 0)
	require.Equal(t, time.Hour, hk.Interval)

	hk.Start()
	done := make(chan struct{})
	go func() {
		hk.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("housekeeping did not stop")
	}
}
