package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"custodia/internal/domain"
	"custodia/pkg/errors"
)

type TransactionRepository struct {
	db *sqlx.DB
}

func NewTransactionRepository(db *sqlx.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

const transactionColumns = `
	id, signature, customer_id, wallet_address, amount, token, type,
	status, COALESCE(status_reason, '') AS status_reason,
	fee_amount, network_fee, risk_score, risk_factors, flags, sar_id,
	initiated_at, completed_at, created_at, updated_at
`

func (r *TransactionRepository) Create(ctx context.Context, tx *domain.Transaction) error {
	query := `
		INSERT INTO transactions (
			id, signature, customer_id, wallet_address, amount, token, type,
			status, status_reason, fee_amount, network_fee, risk_score,
			risk_factors, flags, sar_id, initiated_at, completed_at,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19
		)
	`

	_, err := r.db.ExecContext(ctx, query,
		tx.ID, tx.Signature, tx.CustomerID, tx.WalletAddress, tx.Amount, tx.Token, tx.Type,
		tx.Status, tx.StatusReason, tx.FeeAmount, tx.NetworkFee, tx.RiskScore,
		tx.RiskFactors, tx.Flags, tx.SARID, tx.InitiatedAt, tx.CompletedAt,
		tx.CreatedAt, tx.UpdatedAt,
	)
	return errors.Wrap(err, "failed to create transaction")
}

func (r *TransactionRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	var tx domain.Transaction
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`

	err := r.db.GetContext(ctx, &tx, query, id)
	if err == sql.ErrNoRows {
		return nil, errors.ErrTransactionNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find transaction")
	}
	return &tx, nil
}

func (r *TransactionRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.TransactionStatus, reason string) error {
	query := `UPDATE transactions SET status = $1, status_reason = $2, updated_at = NOW() WHERE id = $3`
	result, err := r.db.ExecContext(ctx, query, status, reason, id)
	if err != nil {
		return errors.Wrap(err, "failed to update transaction status")
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return errors.ErrTransactionNotFound
	}
	return nil
}

func (r *TransactionRepository) Confirm(ctx context.Context, id uuid.UUID, signature string) error {
	query := `
		UPDATE transactions
		SET status = $1, signature = $2, completed_at = NOW(), updated_at = NOW()
		WHERE id = $3
	`
	result, err := r.db.ExecContext(ctx, query, domain.TransactionStatusConfirmed, signature, id)
	if err != nil {
		return errors.Wrap(err, "failed to confirm transaction")
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return errors.ErrTransactionNotFound
	}
	return nil
}

// Flag annotates the transaction's flags without touching its status.
func (r *TransactionRepository) Flag(ctx context.Context, id uuid.UUID, reason string) error {
	tx, err := r.FindByID(ctx, id)
	if err != nil {
		return err
	}

	if tx.Flags == nil {
		tx.Flags = make(domain.Metadata)
	}
	tx.Flags[domain.FlagSuspicious] = true
	tx.Flags[domain.FlagReason] = reason
	tx.Flags[domain.FlagTime] = time.Now()

	query := `UPDATE transactions SET flags = $1, updated_at = NOW() WHERE id = $2`
	_, err = r.db.ExecContext(ctx, query, tx.Flags, id)
	return errors.Wrap(err, "failed to flag transaction")
}

// Block cancels the transaction and records the compliance block in its flags.
func (r *TransactionRepository) Block(ctx context.Context, id uuid.UUID, reason string) error {
	tx, err := r.FindByID(ctx, id)
	if err != nil {
		return err
	}

	if tx.Flags == nil {
		tx.Flags = make(domain.Metadata)
	}
	tx.Flags[domain.FlagComplianceBlock] = true
	tx.Flags[domain.FlagReason] = reason

	query := `
		UPDATE transactions
		SET status = $1, status_reason = $2, flags = $3, updated_at = NOW()
		WHERE id = $4
	`
	_, err = r.db.ExecContext(ctx, query, domain.TransactionStatusCancelled, reason, tx.Flags, id)
	return errors.Wrap(err, "failed to block transaction")
}

func (r *TransactionRepository) AttachSAR(ctx context.Context, txID, sarID uuid.UUID) error {
	query := `UPDATE transactions SET sar_id = $1, updated_at = NOW() WHERE id = $2`
	result, err := r.db.ExecContext(ctx, query, sarID, txID)
	if err != nil {
		return errors.Wrap(err, "failed to attach SAR to transaction")
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return errors.ErrTransactionNotFound
	}
	return nil
}

func (r *TransactionRepository) AnnotateRisk(ctx context.Context, id uuid.UUID, score int, factors []string) error {
	query := `UPDATE transactions SET risk_score = $1, risk_factors = $2, updated_at = NOW() WHERE id = $3`
	_, err := r.db.ExecContext(ctx, query, score, domain.StringList(factors), id)
	return errors.Wrap(err, "failed to annotate transaction risk")
}

// FindRecent returns a customer's transactions initiated at or after since,
// newest first.
// FindRecent returns the customer's confirmed transactions since the cutoff.
// Cancelled and failed records stay out of pattern history: a declined attempt
// must not raise the customer's score on the next one.
func (r *TransactionRepository) FindRecent(ctx context.Context, customerID uuid.UUID, since time.Time) ([]*domain.Transaction, error) {
	var txs []*domain.Transaction
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE customer_id = $1 AND initiated_at >= $2 AND status = $3
		ORDER BY initiated_at DESC
	`

	err := r.db.SelectContext(ctx, &txs, query, customerID, since, domain.TransactionStatusConfirmed)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load recent transactions")
	}
	return txs, nil
}

func (r *TransactionRepository) CountRecent(ctx context.Context, customerID uuid.UUID, since time.Time) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM transactions WHERE customer_id = $1 AND initiated_at >= $2 AND status = $3`

	err := r.db.GetContext(ctx, &count, query, customerID, since, domain.TransactionStatusConfirmed)
	if err != nil {
		return 0, errors.Wrap(err, "failed to count recent transactions")
	}
	return count, nil
}

// FindCompletedInRange returns confirmed transactions initiated inside
// [from, to), ordered for deterministic batch processing.
func (r *TransactionRepository) FindCompletedInRange(ctx context.Context, from, to time.Time) ([]*domain.Transaction, error) {
	var txs []*domain.Transaction
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE status = $1 AND initiated_at >= $2 AND initiated_at < $3
		ORDER BY initiated_at ASC, id ASC
	`

	err := r.db.SelectContext(ctx, &txs, query, domain.TransactionStatusConfirmed, from, to)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load transactions in range")
	}
	return txs, nil
}

// FindFlagged lists transactions the monitor flagged, newest first.
func (r *TransactionRepository) FindFlagged(ctx context.Context, limit int) ([]*domain.Transaction, error) {
	var txs []*domain.Transaction
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE flags ->> 'flagged' = 'true' OR flags ->> 'compliance_block' = 'true'
		ORDER BY updated_at DESC
		LIMIT $1
	`

	err := r.db.SelectContext(ctx, &txs, query, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load flagged transactions")
	}
	return txs, nil
}
