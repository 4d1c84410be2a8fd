package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RiskLevel is the qualitative band a risk score falls into.
type RiskLevel string

const (
	RiskLevelMinimal  RiskLevel = "minimal"
	RiskLevelLow      RiskLevel = "low"
	RiskLevelMedium   RiskLevel = "medium"
	RiskLevelHigh     RiskLevel = "high"
	RiskLevelCritical RiskLevel = "critical"
)

// LevelForScore maps a clamped 0-100 score to its band.
func LevelForScore(score int) RiskLevel {
	switch {
	case score >= 85:
		return RiskLevelCritical
	case score >= 70:
		return RiskLevelHigh
	case score >= 50:
		return RiskLevelMedium
	case score >= 25:
		return RiskLevelLow
	default:
		return RiskLevelMinimal
	}
}

// RequiredAction is a compliance action demanded by an assessment.
type RequiredAction string

const (
	ActionEnhancedDueDiligence RequiredAction = "enhanced_due_diligence"
	ActionManualReview         RequiredAction = "manual_review"
	ActionAdditionalMonitoring RequiredAction = "additional_monitoring"
	ActionBlockTransaction     RequiredAction = "block_transaction"
	ActionFileSAR              RequiredAction = "file_sar"
)

// RiskAssessment is the immutable result of scoring one transaction intent.
type RiskAssessment struct {
	ID              uuid.UUID        `json:"id" db:"id"`
	CustomerID      uuid.UUID        `json:"customer_id" db:"customer_id"`
	Score           int              `json:"score" db:"score"`
	Level           RiskLevel        `json:"level" db:"level"`
	Factors         StringList       `json:"factors" db:"factors"`
	RequiredActions []RequiredAction `json:"required_actions"`
	ShouldBlock     bool             `json:"should_block"`
	RequiresReview  bool             `json:"requires_review"`
	RequiresEDD     bool             `json:"requires_edd"`
	AssessedAt      time.Time        `json:"assessed_at" db:"assessed_at"`
}

// HasAction reports whether the assessment demands the given action.
func (a *RiskAssessment) HasAction(action RequiredAction) bool {
	for _, got := range a.RequiredActions {
		if got == action {
			return true
		}
	}
	return false
}

// CustomerRiskProfile aggregates compliance-relevant customer state. It is
// always recomputed from source data, never cached, so blocking decisions
// cannot act on stale state.
type CustomerRiskProfile struct {
	CustomerID    uuid.UUID        `json:"customer_id"`
	Tier          VerificationTier `json:"tier"`
	Jurisdiction  string           `json:"jurisdiction"`
	AccountAge    time.Duration    `json:"account_age"`
	RecentTxCount int              `json:"recent_tx_count"`
	RecentVolume  decimal.Decimal  `json:"recent_volume"`
	SanctionMatch bool             `json:"sanction_match"`
}

// SARStatus is the review state of a filed report.
type SARStatus string

const (
	SARStatusPendingReview SARStatus = "pending_review"
	SARStatusFiled         SARStatus = "filed"
	SARStatusDismissed     SARStatus = "dismissed"
)

// SuspiciousActivityReport is a regulatory filing snapshot. Immutable once
// generated except for its status.
type SuspiciousActivityReport struct {
	ID                    uuid.UUID       `json:"id" db:"id"`
	CustomerID            uuid.UUID       `json:"customer_id" db:"customer_id"`
	CustomerName          string          `json:"customer_name" db:"customer_name"`
	CustomerEmail         string          `json:"customer_email" db:"customer_email"`
	CustomerJurisdiction  string          `json:"customer_jurisdiction" db:"customer_jurisdiction"`
	TransactionID         uuid.UUID       `json:"transaction_id" db:"transaction_id"`
	WalletAddress         string          `json:"wallet_address" db:"wallet_address"`
	Amount                decimal.Decimal `json:"amount" db:"amount"`
	Token                 string          `json:"token" db:"token"`
	ActivityDescription   string          `json:"activity_description" db:"activity_description"`
	Factors               StringList      `json:"factors" db:"factors"`
	RelatedTransactionIDs StringList      `json:"related_transaction_ids" db:"related_transaction_ids"`
	FilingDeadline        time.Time       `json:"filing_deadline" db:"filing_deadline"`
	Status                SARStatus       `json:"status" db:"status"`
	GeneratedAt           time.Time       `json:"generated_at" db:"generated_at"`
}

// ComplianceAlert is a persisted record of a real-time monitoring hit.
type ComplianceAlert struct {
	ID            uuid.UUID  `json:"id" db:"id"`
	TransactionID uuid.UUID  `json:"transaction_id" db:"transaction_id"`
	CustomerID    uuid.UUID  `json:"customer_id" db:"customer_id"`
	Severity      string     `json:"severity" db:"severity"`
	RiskScore     int        `json:"risk_score" db:"risk_score"`
	Reasons       StringList `json:"reasons" db:"reasons"`
	Blocked       bool       `json:"blocked" db:"blocked"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
}

// MonitoringResult is the outcome of the real-time threshold check.
type MonitoringResult struct {
	TransactionID uuid.UUID `json:"transaction_id"`
	Alerts        []string  `json:"alerts"`
	RiskScore     int       `json:"risk_score"`
	ShouldFlag    bool      `json:"should_flag"`
	ShouldBlock   bool      `json:"should_block"`
}

// StructuringPattern is a (customer, calendar day) group of transactions each
// held just under the single-transaction reporting limit.
type StructuringPattern struct {
	CustomerID       uuid.UUID       `json:"customer_id"`
	Day              string          `json:"day"`
	TransactionIDs   []uuid.UUID     `json:"transaction_ids"`
	TransactionCount int             `json:"transaction_count"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
}

// SuspiciousTransaction is one batch-filter hit inside an AMLReport.
type SuspiciousTransaction struct {
	TransactionID uuid.UUID       `json:"transaction_id"`
	CustomerID    uuid.UUID       `json:"customer_id"`
	Amount        decimal.Decimal `json:"amount"`
	Token         string          `json:"token"`
	InitiatedAt   time.Time       `json:"initiated_at"`
	Score         int             `json:"score"`
	Reasons       []string        `json:"reasons"`
}

// HighRiskCustomer is a per-customer aggregate flagged by the batch engine.
type HighRiskCustomer struct {
	CustomerID       uuid.UUID       `json:"customer_id"`
	AggregateScore   int             `json:"aggregate_score"`
	TransactionCount int             `json:"transaction_count"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
}

// AMLReportStats are the summary statistics of one batch sweep. Over the same
// transaction set and range these are reproducible bit for bit.
type AMLReportStats struct {
	TotalTransactions    int             `json:"total_transactions"`
	TotalVolume          decimal.Decimal `json:"total_volume"`
	SuspiciousCount      int             `json:"suspicious_count"`
	SuspiciousVolume     decimal.Decimal `json:"suspicious_volume"`
	SuspiciousRate       decimal.Decimal `json:"suspicious_rate"`
	SuspiciousVolumeRate decimal.Decimal `json:"suspicious_volume_rate"`
	AverageTransaction   decimal.Decimal `json:"average_transaction"`
	MaxTransaction       decimal.Decimal `json:"max_transaction"`
	LargeTransactions    int             `json:"large_transactions"`
}

// AMLReport is the batch compliance engine's output for one time window.
type AMLReport struct {
	From                   time.Time                  `json:"from"`
	To                     time.Time                  `json:"to"`
	GeneratedAt            time.Time                  `json:"generated_at"`
	SuspiciousTransactions []SuspiciousTransaction    `json:"suspicious_transactions"`
	SARs                   []SuspiciousActivityReport `json:"sars"`
	StructuringPatterns    []StructuringPattern       `json:"structuring_patterns"`
	HighRiskCustomers      []HighRiskCustomer         `json:"high_risk_customers"`
	Stats                  AMLReportStats             `json:"stats"`
	Recommendations        []string                   `json:"recommendations"`
}
