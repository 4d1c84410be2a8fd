// Package domain holds the core data model shared by every service.
package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// VerificationTier is a customer's KYC verification level. It gates daily
// spending limits and feeds the CDD risk check.
type VerificationTier string

const (
	TierUnverified VerificationTier = "unverified"
	TierBasic      VerificationTier = "basic"
	TierFull       VerificationTier = "full"
)

// Customer represents a platform customer.
type Customer struct {
	ID           uuid.UUID        `json:"id" db:"id"`
	Email        string           `json:"email" db:"email"`
	FirstName    string           `json:"first_name" db:"first_name"`
	LastName     string           `json:"last_name" db:"last_name"`
	Jurisdiction string           `json:"jurisdiction" db:"jurisdiction"`
	Tier         VerificationTier `json:"tier" db:"tier"`
	TOTPSecret   *string          `json:"-" db:"totp_secret"`
	VerifiedAt   *time.Time       `json:"verified_at,omitempty" db:"verified_at"`
	IsActive     bool             `json:"is_active" db:"is_active"`
	CreatedAt    time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at" db:"updated_at"`
}

// FullName returns the customer's display name for screening and reports.
func (c *Customer) FullName() string {
	return c.FirstName + " " + c.LastName
}

// Transaction represents one payment or transfer attempt. Records are never
// deleted; they are retained for audit and batch compliance analysis.
type Transaction struct {
	ID            uuid.UUID         `json:"id" db:"id"`
	Signature     *string           `json:"signature,omitempty" db:"signature"`
	CustomerID    uuid.UUID         `json:"customer_id" db:"customer_id"`
	WalletAddress string            `json:"wallet_address" db:"wallet_address"`
	Amount        decimal.Decimal   `json:"amount" db:"amount"`
	Token         string            `json:"token" db:"token"`
	Type          TransactionType   `json:"type" db:"type"`
	Status        TransactionStatus `json:"status" db:"status"`
	StatusReason  string            `json:"status_reason" db:"status_reason"`
	FeeAmount     decimal.Decimal   `json:"fee_amount" db:"fee_amount"`
	NetworkFee    decimal.Decimal   `json:"network_fee" db:"network_fee"`
	RiskScore     *int              `json:"risk_score,omitempty" db:"risk_score"`
	RiskFactors   StringList        `json:"risk_factors,omitempty" db:"risk_factors"`
	Flags         Metadata          `json:"flags,omitempty" db:"flags"`
	SARID         *uuid.UUID        `json:"sar_id,omitempty" db:"sar_id"`
	InitiatedAt   time.Time         `json:"initiated_at" db:"initiated_at"`
	CompletedAt   *time.Time        `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt     time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at" db:"updated_at"`
}

type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusConfirmed TransactionStatus = "confirmed"
	TransactionStatusFailed    TransactionStatus = "failed"
	TransactionStatusCancelled TransactionStatus = "cancelled"
)

// IsTerminal reports whether the status permits no further transitions.
func (s TransactionStatus) IsTerminal() bool {
	switch s {
	case TransactionStatusConfirmed, TransactionStatusFailed, TransactionStatusCancelled:
		return true
	}
	return false
}

type TransactionType string

const (
	TransactionTypePayment    TransactionType = "payment"
	TransactionTypeSwap       TransactionType = "swap"
	TransactionTypeTransfer   TransactionType = "transfer"
	TransactionTypeStake      TransactionType = "stake"
	TransactionTypeUnstake    TransactionType = "unstake"
	TransactionTypeReward     TransactionType = "reward"
	TransactionTypeDeposit    TransactionType = "deposit"
	TransactionTypeWithdrawal TransactionType = "withdrawal"
)

// Compliance flag keys attached to Transaction.Flags.
const (
	FlagKYCRequired     = "kyc_required"
	FlagKYCVerified     = "kyc_verified"
	FlagDailyLimit      = "daily_limit_checked"
	FlagSuspicious      = "flagged"
	FlagReason          = "flag_reason"
	FlagTime            = "flagged_at"
	FlagComplianceBlock = "compliance_block"
	FlagEDDRequired     = "edd_required"
	FlagManualReview    = "manual_review"
)

// DailySpendingCounter is a per-wallet (date, cumulative amount) pair. The
// read-check-increment cycle against it must be atomic; see the spending
// repository.
type DailySpendingCounter struct {
	WalletAddress string          `json:"wallet_address" db:"wallet_address"`
	Day           string          `json:"day" db:"day"` // local date, YYYY-MM-DD
	Amount        decimal.Decimal `json:"amount" db:"amount"`
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"`
}

// Metadata is a JSON-compatible map
type Metadata map[string]interface{}

func (m Metadata) Value() (driver.Value, error) {
	return json.Marshal(m)
}

func (m *Metadata) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(b, &m)
}

// StringList is a []string stored as JSONB.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return json.Marshal([]string{})
	}
	return json.Marshal(l)
}

func (l *StringList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(b, l)
}
