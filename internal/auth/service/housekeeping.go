package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aussiebroadwan/walletauth/internal/auth/ratelimit"
	"github.com/aussiebroadwan/walletauth/internal/auth/store"
	"github.com/aussiebroadwan/walletauth/pkg/clockx"
)

// HousekeepingService periodically deletes expired challenges and refresh
// tokens and stale rate-limit records. None of it is needed for
// correctness; it only keeps the tables from growing without bound.
type HousekeepingService struct {
	Store    store.Store
	Limiter  ratelimit.Limiter
	Clock    clockx.Clock
	Logger   *slog.Logger
	Interval time.Duration

	// Grace keeps expired rows around for a while. It should be at least
	// the challenge TTL so a late retry still reads as expired rather than
	// unknown.
	Grace time.Duration

	mu      sync.Mutex
	started bool
	stopped bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewHousekeepingService creates a new housekeeping service with the given interval.
// If interval is 0 or negative, defaults to 1 hour. Grace starts at
// DefaultChallengeTTL.
func NewHousekeepingService(
	store store.Store,
	limiter ratelimit.Limiter,
	logger *slog.Logger,
	interval time.Duration,
) *HousekeepingService {
	if interval <= 0 {
		interval = 1 * time.Hour
	}

	return &HousekeepingService{
		Store:    store,
		Limiter:  limiter,
		Clock:    clockx.System(),
		Logger:   logger,
		Interval: interval,
		Grace:    DefaultChallengeTTL,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the background worker. Starting twice, or after Stop, does
// nothing.
func (s *HousekeepingService) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.stopped {
		return
	}
	s.started = true

	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval, "grace", s.Grace)
}

// Stop blocks until any in-progress cleanup has finished. It is safe to
// call without Start and more than once.
func (s *HousekeepingService) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	started := s.started
	close(s.stopCh)
	s.mu.Unlock()

	if started {
		<-s.doneCh
	}
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.Cleanup(context.Background())

	for {
		select {
		case <-ticker.C:
			s.Cleanup(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

// CleanupResult counts what one pass removed.
type CleanupResult struct {
	Challenges    int64
	RefreshTokens int64
	RateLimits    int64
	Failures      int
}

// Cleanup runs one pass. Each step is independent; a failure in one
// doesn't stop the others.
func (s *HousekeepingService) Cleanup(ctx context.Context) CleanupResult {
	var res CleanupResult
	cutoff := s.Clock.Now().Add(-s.Grace)

	s.Logger.Debug("starting housekeeping cleanup")

	if n, err := s.Store.Challenges().DeleteExpiredChallenges(ctx, cutoff); err != nil {
		s.Logger.Error("failed to delete expired challenges", "error", err)
		res.Failures++
	} else {
		res.Challenges = n
	}

	if n, err := s.Store.RefreshTokens().DeleteExpiredRefreshTokens(ctx, cutoff); err != nil {
		s.Logger.Error("failed to delete expired refresh tokens", "error", err)
		res.Failures++
	} else {
		res.RefreshTokens = n
	}

	if s.Limiter != nil {
		if n, err := s.Limiter.Cleanup(ctx); err != nil {
			s.Logger.Error("failed to delete stale rate limits", "error", err)
			res.Failures++
		} else {
			res.RateLimits = n
		}
	}

	s.Logger.Info("housekeeping cleanup completed",
		"challenges", res.Challenges,
		"refresh_tokens", res.RefreshTokens,
		"rate_limits", res.RateLimits,
		"failures", res.Failures)
	return res
}
