package postgres

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"custodia/internal/domain"
	"custodia/pkg/errors"
)

type SARRepository struct {
	db *sqlx.DB
}

func NewSARRepository(db *sqlx.DB) *SARRepository {
	return &SARRepository{db: db}
}

const sarColumns = `
	id, customer_id, customer_name, customer_email, customer_jurisdiction,
	transaction_id, wallet_address, amount, token, activity_description,
	factors, related_transaction_ids, filing_deadline, status, generated_at
`

func (r *SARRepository) Create(ctx context.Context, sar *domain.SuspiciousActivityReport) error {
	query := `
		INSERT INTO suspicious_activity_reports (
			id, customer_id, customer_name, customer_email, customer_jurisdiction,
			transaction_id, wallet_address, amount, token, activity_description,
			factors, related_transaction_ids, filing_deadline, status, generated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	_, err := r.db.ExecContext(ctx, query,
		sar.ID, sar.CustomerID, sar.CustomerName, sar.CustomerEmail, sar.CustomerJurisdiction,
		sar.TransactionID, sar.WalletAddress, sar.Amount, sar.Token, sar.ActivityDescription,
		sar.Factors, sar.RelatedTransactionIDs, sar.FilingDeadline, sar.Status, sar.GeneratedAt,
	)
	return errors.Wrap(err, "failed to create SAR")
}

func (r *SARRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.SuspiciousActivityReport, error) {
	var sar domain.SuspiciousActivityReport
	query := `SELECT ` + sarColumns + ` FROM suspicious_activity_reports WHERE id = $1`

	err := r.db.GetContext(ctx, &sar, query, id)
	if err == sql.ErrNoRows {
		return nil, errors.ErrSARNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find SAR")
	}
	return &sar, nil
}

func (r *SARRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.SARStatus) error {
	query := `UPDATE suspicious_activity_reports SET status = $1 WHERE id = $2`
	result, err := r.db.ExecContext(ctx, query, status, id)
	if err != nil {
		return errors.Wrap(err, "failed to update SAR status")
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return errors.ErrSARNotFound
	}
	return nil
}

// FindPending lists reports still awaiting compliance review, oldest filing
// deadline first.
func (r *SARRepository) FindPending(ctx context.Context, limit int) ([]*domain.SuspiciousActivityReport, error) {
	var sars []*domain.SuspiciousActivityReport
	query := `
		SELECT ` + sarColumns + `
		FROM suspicious_activity_reports
		WHERE status = $1
		ORDER BY filing_deadline ASC
		LIMIT $2
	`

	err := r.db.SelectContext(ctx, &sars, query, domain.SARStatusPendingReview, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load pending SARs")
	}
	return sars, nil
}
