package postgres

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"custodia/pkg/errors"
)

// WalletRepository tracks custodial wallet balances in base units, refreshed
// by the chain sync process. The pre-signing fee buffer check reads from it.
type WalletRepository struct {
	db *sqlx.DB
}

func NewWalletRepository(db *sqlx.DB) *WalletRepository {
	return &WalletRepository{db: db}
}

func (r *WalletRepository) Balance(ctx context.Context, pubkey string) (uint64, error) {
	var lamports uint64
	query := `SELECT lamports FROM wallet_balances WHERE address = $1`

	err := r.db.GetContext(ctx, &lamports, query, pubkey)
	if err == sql.ErrNoRows {
		return 0, errors.ErrWalletNotFound
	}
	if err != nil {
		return 0, errors.Wrap(err, "failed to read wallet balance")
	}
	return lamports, nil
}

func (r *WalletRepository) UpsertBalance(ctx context.Context, pubkey string, lamports uint64) error {
	query := `
		INSERT INTO wallet_balances (address, lamports, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (address) DO UPDATE
		SET lamports = EXCLUDED.lamports, updated_at = NOW()
	`
	_, err := r.db.ExecContext(ctx, query, pubkey, lamports)
	return errors.Wrap(err, "failed to update wallet balance")
}
