package sqlite

import (
	"context"

	"github.com/aussiebroadwan/walletauth/internal/auth/domain"
)

type adminRepo struct {
	db dbtx
}

func (r *adminRepo) ClearRateLimit(
	ctx context.Context,
	identifier string,
	kind domain.IdentifierKind,
) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM rate_limits WHERE identifier = ? AND kind = ?`,
		identifier, string(kind))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
