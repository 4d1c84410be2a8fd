package postgres

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"custodia/internal/domain"
	"custodia/pkg/errors"
)

type CustomerRepository struct {
	db *sqlx.DB
}

func NewCustomerRepository(db *sqlx.DB) *CustomerRepository {
	return &CustomerRepository{db: db}
}

const customerColumns = `
	id, email, first_name, last_name, tier, jurisdiction,
	totp_secret, verified_at, created_at, updated_at
`

func (r *CustomerRepository) Create(ctx context.Context, customer *domain.Customer) error {
	query := `
		INSERT INTO customers (
			id, email, first_name, last_name, tier, jurisdiction,
			totp_secret, verified_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.ExecContext(ctx, query,
		customer.ID, customer.Email, customer.FirstName, customer.LastName,
		customer.Tier, customer.Jurisdiction, customer.TOTPSecret,
		customer.VerifiedAt, customer.CreatedAt, customer.UpdatedAt,
	)
	return errors.Wrap(err, "failed to create customer")
}

func (r *CustomerRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Customer, error) {
	var customer domain.Customer
	query := `SELECT ` + customerColumns + ` FROM customers WHERE id = $1`

	err := r.db.GetContext(ctx, &customer, query, id)
	if err == sql.ErrNoRows {
		return nil, errors.ErrCustomerNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find customer")
	}
	return &customer, nil
}

func (r *CustomerRepository) UpdateTier(ctx context.Context, id uuid.UUID, tier domain.VerificationTier) error {
	query := `
		UPDATE customers
		SET tier = $1, verified_at = CASE WHEN $1 <> 'unverified' THEN NOW() ELSE verified_at END,
		    updated_at = NOW()
		WHERE id = $2
	`
	result, err := r.db.ExecContext(ctx, query, tier, id)
	if err != nil {
		return errors.Wrap(err, "failed to update customer tier")
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return errors.ErrCustomerNotFound
	}
	return nil
}

// SetTOTPSecret stores the enrolled step-up secret after the customer proves
// possession of it.
func (r *CustomerRepository) SetTOTPSecret(ctx context.Context, id uuid.UUID, secret string) error {
	query := `UPDATE customers SET totp_secret = $1, updated_at = NOW() WHERE id = $2`
	result, err := r.db.ExecContext(ctx, query, secret, id)
	if err != nil {
		return errors.Wrap(err, "failed to store TOTP secret")
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return errors.ErrCustomerNotFound
	}
	return nil
}
