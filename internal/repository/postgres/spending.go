package postgres

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"custodia/pkg/errors"
)

// SpendingRepository maintains the per-wallet daily spending counters backing
// limit enforcement.
type SpendingRepository struct {
	db *sqlx.DB
}

func NewSpendingRepository(db *sqlx.DB) *SpendingRepository {
	return &SpendingRepository{db: db}
}

// AuthorizeSpend applies the increment and the limit check in a single
// conditional upsert, so concurrent spenders serialize on the counter row and
// can never jointly exceed the limit. Zero rows back means the increment
// would cross the limit and nothing was written.
func (r *SpendingRepository) AuthorizeSpend(ctx context.Context, walletAddress, day string, amount, limit decimal.Decimal) (decimal.Decimal, error) {
	query := `
		INSERT INTO daily_spending (wallet_address, day, amount, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (wallet_address, day) DO UPDATE
		SET amount = daily_spending.amount + EXCLUDED.amount, updated_at = NOW()
		WHERE daily_spending.amount + EXCLUDED.amount <= $4
		RETURNING amount
	`

	var total decimal.Decimal
	err := r.db.GetContext(ctx, &total, query, walletAddress, day, amount, limit)
	if err == sql.ErrNoRows {
		return decimal.Zero, errors.ErrDailyLimitExceeded
	}
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "failed to record daily spending")
	}
	return total, nil
}

// SpentToday reads the wallet's counter for the given day. A missing row
// means nothing spent yet.
func (r *SpendingRepository) SpentToday(ctx context.Context, walletAddress, day string) (decimal.Decimal, error) {
	var amount decimal.Decimal
	query := `SELECT amount FROM daily_spending WHERE wallet_address = $1 AND day = $2`

	err := r.db.GetContext(ctx, &amount, query, walletAddress, day)
	if err == sql.ErrNoRows {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "failed to read daily spending")
	}
	return amount, nil
}
