package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/walletauth/internal/auth/domain"
)

type rateLimitsRepo struct {
	db dbtx
}

func (r *rateLimitsRepo) GetRateLimit(
	ctx context.Context,
	identifier string,
	kind domain.IdentifierKind,
) (domain.RateLimitRecord, error) {
	var (
		rec          domain.RateLimitRecord
		kindStr      string
		windowStart  int64
		blockedUntil sql.NullInt64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT identifier, kind, attempt_count, window_start, blocked_until
		FROM rate_limits
		WHERE identifier = ? AND kind = ?`,
		identifier, string(kind),
	).Scan(&rec.Identifier, &kindStr, &rec.AttemptCount, &windowStart, &blockedUntil)
	if err != nil {
		return domain.RateLimitRecord{}, mapNotFound(err)
	}
	rec.Kind = domain.IdentifierKind(kindStr)
	rec.WindowStart = fromMillis(windowStart)
	rec.BlockedUntil = mapNullMillis(blockedUntil)
	return rec, nil
}

func (r *rateLimitsRepo) UpsertRateLimit(ctx context.Context, rec domain.RateLimitRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO rate_limits (identifier, kind, attempt_count, window_start, blocked_until)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (identifier, kind) DO UPDATE SET
			attempt_count = excluded.attempt_count,
			window_start  = excluded.window_start,
			blocked_until = excluded.blocked_until`,
		rec.Identifier, string(rec.Kind), rec.AttemptCount,
		toMillis(rec.WindowStart), mapOptionalMillis(rec.BlockedUntil),
	)
	return err
}

func (r *rateLimitsRepo) DeleteStaleRateLimits(ctx context.Context, before, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM rate_limits
		WHERE window_start < ? AND (blocked_until IS NULL OR blocked_until <= ?)`,
		toMillis(before), toMillis(now),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
