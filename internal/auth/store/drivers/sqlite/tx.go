package sqlite

import (
	"context"
	"database/sql"

	"github.com/aussiebroadwan/walletauth/internal/auth/store"
)

type txStore struct {
	tx    *sql.Tx
	admin bool
}

func newTx(tx *sql.Tx, admin bool) *txStore {
	return &txStore{tx: tx, admin: admin}
}

func (t *txStore) Commit() error   { return t.tx.Commit() }
func (t *txStore) Rollback() error { return t.tx.Rollback() }

func (t *txStore) Close() error { return nil } // the outer DB stays open

// Ping is a no-op; the connection is held for the life of the transaction.
func (t *txStore) Ping(ctx context.Context) error {
	return nil
}

func (t *txStore) Tx(ctx context.Context) (store.Tx, error) {
	// Nested tx not supported
	return nil, sql.ErrTxDone
}

func (t *txStore) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return sql.ErrTxDone
}

func (t *txStore) Challenges() store.Challenges       { return &challengesRepo{db: t.tx} }
func (t *txStore) RefreshTokens() store.RefreshTokens { return &refreshTokensRepo{db: t.tx} }
func (t *txStore) RateLimits() store.RateLimits       { return &rateLimitsRepo{db: t.tx} }

func (t *txStore) Admin() (store.Admin, error) {
	if !t.admin {
		return nil, store.ErrAdminDisabled
	}
	return &adminRepo{db: t.tx}, nil
}

func (t *txStore) ApplyMigrations() error { return nil } // apply before starting a tx
