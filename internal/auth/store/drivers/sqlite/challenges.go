package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/walletauth/internal/auth/domain"
)

type challengesRepo struct {
	db dbtx
}

const challengeColumns = `id, address, nonce, message, chain_id, issued_at, expires_at, used, used_at, ip_address, user_agent`

func scanChallenge(row scanner) (domain.Challenge, error) {
	var (
		c                   domain.Challenge
		issuedAt, expiresAt int64
		usedAt              sql.NullInt64
	)
	err := row.Scan(
		&c.ID, &c.Address, &c.Nonce, &c.Message, &c.ChainID,
		&issuedAt, &expiresAt, &c.Used, &usedAt,
		&c.IPAddress, &c.UserAgent,
	)
	if err != nil {
		return domain.Challenge{}, err
	}
	c.IssuedAt = fromMillis(issuedAt)
	c.ExpiresAt = fromMillis(expiresAt)
	c.UsedAt = mapNullMillis(usedAt)
	return c, nil
}

func (r *challengesRepo) CreateChallenge(ctx context.Context, c domain.Challenge) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO challenges (`+challengeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Address, c.Nonce, c.Message, c.ChainID,
		toMillis(c.IssuedAt), toMillis(c.ExpiresAt), c.Used, mapOptionalMillis(c.UsedAt),
		c.IPAddress, c.UserAgent,
	)
	return mapConstraint(err)
}

func (r *challengesRepo) DeleteUnusedChallenges(ctx context.Context, address string) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM challenges WHERE address = ? AND used = 0`, address)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *challengesRepo) GetChallengeByID(ctx context.Context, id string) (domain.Challenge, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+challengeColumns+` FROM challenges WHERE id = ?`, id)
	c, err := scanChallenge(row)
	if err != nil {
		return domain.Challenge{}, mapNotFound(err)
	}
	return c, nil
}

func (r *challengesRepo) GetChallengeByNonce(ctx context.Context, nonce string) (domain.Challenge, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+challengeColumns+` FROM challenges WHERE nonce = ?`, nonce)
	c, err := scanChallenge(row)
	if err != nil {
		return domain.Challenge{}, mapNotFound(err)
	}
	return c, nil
}

func (r *challengesRepo) ConsumeChallenge(ctx context.Context, id string, now time.Time) (bool, error) {
	ms := toMillis(now)
	res, err := r.db.ExecContext(ctx, `
		UPDATE challenges
		SET used = 1, used_at = ?
		WHERE id = ? AND used = 0 AND expires_at >= ?`,
		ms, id, ms,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *challengesRepo) DeleteExpiredChallenges(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM challenges WHERE expires_at < ?`, toMillis(before))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
