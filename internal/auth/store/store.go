package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/walletauth/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
	ErrAdminDisabled = errors.New("store: administrative operations disabled")
)

// Store is the root data access interface. Drivers expose sub-repositories
// so multi-step operations can run the same repos inside a Tx.
type Store interface {
	Challenges() Challenges
	RefreshTokens() RefreshTokens
	RateLimits() RateLimits

	// Admin returns the development-only operations, or ErrAdminDisabled
	// when the store was opened without them.
	Admin() (Admin, error)

	ApplyMigrations() error

	// Tx starts a read/write transaction. The caller must Commit or Rollback.
	Tx(ctx context.Context) (Tx, error)

	// WithTx runs fn in a transaction, committing when fn returns nil and
	// rolling back otherwise.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	Close() error
	Pinger
}

// Pinger reports whether a backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Tx is a transaction-scoped Store.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Challenges interface {
	// CreateChallenge inserts a new unused challenge. Only one unused
	// challenge may exist per address; callers clear the old one first.
	CreateChallenge(ctx context.Context, c domain.Challenge) error

	// DeleteUnusedChallenges removes every unused challenge for address,
	// expired or not, and returns how many went.
	DeleteUnusedChallenges(ctx context.Context, address string) (int64, error)

	GetChallengeByID(ctx context.Context, id string) (domain.Challenge, error)
	GetChallengeByNonce(ctx context.Context, nonce string) (domain.Challenge, error)

	// ConsumeChallenge flips used=1 only if the challenge is unused and not
	// expired at now. It reports whether this call made the transition.
	ConsumeChallenge(ctx context.Context, id string, now time.Time) (bool, error)

	// DeleteExpiredChallenges is housekeeping.
	DeleteExpiredChallenges(ctx context.Context, before time.Time) (int64, error)
}

type RefreshTokens interface {
	CreateRefreshToken(ctx context.Context, t domain.RefreshToken) error

	GetRefreshTokenByHash(ctx context.Context, hash string) (domain.RefreshToken, error)

	// RevokeActiveRefreshToken revokes the token only if it is unrevoked and
	// unexpired at now, returning the revoked row. ErrNotFound otherwise.
	// This is the compare-and-swap rotation relies on.
	RevokeActiveRefreshToken(ctx context.Context, hash string, now time.Time) (domain.RefreshToken, error)

	// SetReplacedBy records the successor of a rotated token.
	SetReplacedBy(ctx context.Context, id, replacedBy string) error

	// RevokeRefreshToken revokes by hash, reporting whether a live token
	// was revoked.
	RevokeRefreshToken(ctx context.Context, hash string, now time.Time) (bool, error)

	// RevokeAllForUser revokes every live token for address.
	RevokeAllForUser(ctx context.Context, address string, now time.Time) (int64, error)

	// DeleteExpiredRefreshTokens is housekeeping.
	DeleteExpiredRefreshTokens(ctx context.Context, before time.Time) (int64, error)
}

type RateLimits interface {
	GetRateLimit(ctx context.Context, identifier string, kind domain.IdentifierKind) (domain.RateLimitRecord, error)
	UpsertRateLimit(ctx context.Context, r domain.RateLimitRecord) error

	// DeleteStaleRateLimits removes records whose window started before
	// before and which are not currently blocked.
	DeleteStaleRateLimits(ctx context.Context, before, now time.Time) (int64, error)
}

// Admin holds escape hatches for development and tests. Production stores
// are opened without it.
type Admin interface {
	ClearRateLimit(ctx context.Context, identifier string, kind domain.IdentifierKind) (int64, error)
}
