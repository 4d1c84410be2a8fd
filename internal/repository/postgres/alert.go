package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"custodia/internal/domain"
	"custodia/pkg/errors"
)

type AlertRepository struct {
	db *sqlx.DB
}

func NewAlertRepository(db *sqlx.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

func (r *AlertRepository) Create(ctx context.Context, alert *domain.ComplianceAlert) error {
	query := `
		INSERT INTO compliance_alerts (
			id, transaction_id, customer_id, severity, risk_score,
			reasons, blocked, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.ExecContext(ctx, query,
		alert.ID, alert.TransactionID, alert.CustomerID, alert.Severity,
		alert.RiskScore, alert.Reasons, alert.Blocked, alert.CreatedAt,
	)
	return errors.Wrap(err, "failed to create compliance alert")
}

func (r *AlertRepository) FindByCustomer(ctx context.Context, customerID uuid.UUID, limit int) ([]*domain.ComplianceAlert, error) {
	var alerts []*domain.ComplianceAlert
	query := `
		SELECT id, transaction_id, customer_id, severity, risk_score,
		       reasons, blocked, created_at
		FROM compliance_alerts
		WHERE customer_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	err := r.db.SelectContext(ctx, &alerts, query, customerID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load compliance alerts")
	}
	return alerts, nil
}
