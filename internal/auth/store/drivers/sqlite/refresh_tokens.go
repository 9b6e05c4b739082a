package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/walletauth/internal/auth/domain"
)

type refreshTokensRepo struct {
	db dbtx
}

const refreshTokenColumns = `id, user_address, token_hash, session_id, did, role, expires_at, revoked, revoked_at, replaced_by, ip_address, user_agent, created_at`

func scanRefreshToken(row scanner) (domain.RefreshToken, error) {
	var (
		t                    domain.RefreshToken
		expiresAt, createdAt int64
		revokedAt            sql.NullInt64
		replacedBy           sql.NullString
	)
	err := row.Scan(
		&t.ID, &t.UserAddress, &t.TokenHash, &t.SessionID, &t.DID, &t.Role,
		&expiresAt, &t.Revoked, &revokedAt, &replacedBy,
		&t.IPAddress, &t.UserAgent, &createdAt,
	)
	if err != nil {
		return domain.RefreshToken{}, err
	}
	t.ExpiresAt = fromMillis(expiresAt)
	t.CreatedAt = fromMillis(createdAt)
	t.RevokedAt = mapNullMillis(revokedAt)
	t.ReplacedBy = mapNullString(replacedBy)
	return t, nil
}

func (r *refreshTokensRepo) CreateRefreshToken(ctx context.Context, t domain.RefreshToken) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (`+refreshTokenColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserAddress, t.TokenHash, t.SessionID, t.DID, t.Role,
		toMillis(t.ExpiresAt), t.Revoked, mapOptionalMillis(t.RevokedAt), mapStringNull(t.ReplacedBy),
		t.IPAddress, t.UserAgent, toMillis(t.CreatedAt),
	)
	return mapConstraint(err)
}

func (r *refreshTokensRepo) GetRefreshTokenByHash(
	ctx context.Context,
	hash string,
) (domain.RefreshToken, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+refreshTokenColumns+` FROM refresh_tokens WHERE token_hash = ?`, hash)
	t, err := scanRefreshToken(row)
	if err != nil {
		return domain.RefreshToken{}, mapNotFound(err)
	}
	return t, nil
}

func (r *refreshTokensRepo) RevokeActiveRefreshToken(
	ctx context.Context,
	hash string,
	now time.Time,
) (domain.RefreshToken, error) {
	ms := toMillis(now)
	row := r.db.QueryRowContext(ctx, `
		UPDATE refresh_tokens
		SET revoked = 1, revoked_at = ?
		WHERE token_hash = ? AND revoked = 0 AND expires_at > ?
		RETURNING `+refreshTokenColumns,
		ms, hash, ms,
	)
	t, err := scanRefreshToken(row)
	if err != nil {
		return domain.RefreshToken{}, mapNotFound(err)
	}
	return t, nil
}

func (r *refreshTokensRepo) SetReplacedBy(ctx context.Context, id, replacedBy string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET replaced_by = ? WHERE id = ?`, replacedBy, id)
	return err
}

func (r *refreshTokensRepo) RevokeRefreshToken(ctx context.Context, hash string, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE refresh_tokens
		SET revoked = 1, revoked_at = ?
		WHERE token_hash = ? AND revoked = 0`,
		toMillis(now), hash,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *refreshTokensRepo) RevokeAllForUser(ctx context.Context, address string, now time.Time) (int64, error) {
	ms := toMillis(now)
	res, err := r.db.ExecContext(ctx, `
		UPDATE refresh_tokens
		SET revoked = 1, revoked_at = ?
		WHERE user_address = ? AND revoked = 0 AND expires_at > ?`,
		ms, address, ms,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *refreshTokensRepo) DeleteExpiredRefreshTokens(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM refresh_tokens WHERE expires_at < ?`, toMillis(before))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
