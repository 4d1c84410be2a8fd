// Package payment orchestrates the pre-signing authorization flow: structural
// validation, step-up authentication, risk assessment, real-time monitoring
// and atomic daily limit reservation, in that order. A transfer is signed
// only after every gate passes.
package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"custodia/internal/authz"
	"custodia/internal/domain"
	"custodia/internal/risk"
	"custodia/internal/txvalidator"
	pkgerrors "custodia/pkg/errors"
	"custodia/pkg/logger"
)

// TransactionRepository persists authorization outcomes. Created records
// carry the full risk factor list even when the customer only ever sees a
// generic decline.
type TransactionRepository interface {
	Create(ctx context.Context, tx *domain.Transaction) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.TransactionStatus, reason string) error
	Confirm(ctx context.Context, id uuid.UUID, signature string) error
}

type CustomerReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Customer, error)
}

// Validator is the pre-signing structural check.
type Validator interface {
	Validate(ctx context.Context, payload []byte, expectedSigner string, customerID uuid.UUID) *txvalidator.ValidationResult
}

// RiskAssessor scores a transaction intent before signing.
type RiskAssessor interface {
	Assess(ctx context.Context, customerID uuid.UUID, intent risk.Intent) (*domain.RiskAssessment, error)
}

// TransactionMonitor is the real-time threshold monitor, run post-persist so
// alerts reference a durable record.
type TransactionMonitor interface {
	Monitor(ctx context.Context, tx *domain.Transaction) (*domain.MonitoringResult, error)
}

// LimitAuthorizer atomically reserves spend against a wallet's daily limit.
type LimitAuthorizer interface {
	AuthorizeSpend(ctx context.Context, customer *domain.Customer, walletAddress string, amount decimal.Decimal, now time.Time) (decimal.Decimal, error)
}

// SARFiler files a suspicious activity report for a blocked transfer. Filing
// failures propagate: a mandated report must never be silently dropped.
type SARFiler interface {
	FileSAR(ctx context.Context, tx *domain.Transaction, description string) (*domain.SuspiciousActivityReport, error)
}

type Service struct {
	repo      TransactionRepository
	customers CustomerReader
	validator Validator
	assessor  RiskAssessor
	monitor   TransactionMonitor
	limits    LimitAuthorizer
	sars      SARFiler
	stepUp    authz.StepUpVerifier
	logger    logger.Logger
}

func NewService(
	repo TransactionRepository,
	customers CustomerReader,
	validator Validator,
	assessor RiskAssessor,
	monitor TransactionMonitor,
	limits LimitAuthorizer,
	sars SARFiler,
	stepUp authz.StepUpVerifier,
	log logger.Logger,
) *Service {
	return &Service{
		repo:      repo,
		customers: customers,
		validator: validator,
		assessor:  assessor,
		monitor:   monitor,
		limits:    limits,
		sars:      sars,
		stepUp:    stepUp,
		logger:    log,
	}
}

// AuthorizeRequest is one candidate transfer awaiting authorization.
type AuthorizeRequest struct {
	CustomerID    uuid.UUID              `json:"customer_id" validate:"required"`
	WalletAddress string                 `json:"wallet_address" validate:"required,wallet_address"`
	Payload       []byte                 `json:"payload" validate:"required"`
	Amount        decimal.Decimal        `json:"amount" validate:"required"`
	Token         string                 `json:"token" validate:"required"`
	Type          domain.TransactionType `json:"type"`
	StepUpCode    string                 `json:"step_up_code"`
}

// AuthorizeResponse is what the customer sees. Declines carry no risk detail.
type AuthorizeResponse struct {
	Transaction *domain.Transaction `json:"transaction"`
	Authorized  bool                `json:"authorized"`
	Message     string              `json:"message"`
}

// Authorize runs the full pre-signing gate sequence. The customer-visible
// decline is always the generic pkgerrors.ErrTransactionDeclined; the real
// reasons are logged and persisted for compliance review only.
func (s *Service) Authorize(ctx context.Context, req *AuthorizeRequest) (*AuthorizeResponse, error) {
	if req.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, errors.New("amount must be greater than zero")
	}

	customer, err := s.customers.FindByID(ctx, req.CustomerID)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to load customer")
	}

	// 1. Structural validation of the unsigned payload.
	validation := s.validator.Validate(ctx, req.Payload, req.WalletAddress, req.CustomerID)
	if !validation.IsValid {
		s.logger.Warn("transaction failed pre-signing validation", map[string]interface{}{
			"customer_id": req.CustomerID,
			"errors":      validation.Errors,
		})
		return nil, pkgerrors.ErrTransactionDeclined
	}

	// 2. Step-up authentication when the payload demands it.
	if validation.RequiresAdditionalAuth {
		if err := s.stepUp.Verify(ctx, customer, req.StepUpCode); err != nil {
			s.logger.Warn("step-up authentication failed for high-value transfer", map[string]interface{}{
				"customer_id": req.CustomerID,
			})
			return nil, err
		}
	}

	// 3. Risk assessment over the intent.
	txType := req.Type
	if txType == "" {
		txType = domain.TransactionTypeTransfer
	}
	now := time.Now()
	assessment, err := s.assessor.Assess(ctx, req.CustomerID, risk.Intent{
		Amount:    req.Amount,
		Token:     req.Token,
		Type:      txType,
		Timestamp: now,
	})
	if err != nil {
		s.logger.Error("risk assessment failed", map[string]interface{}{
			"customer_id": req.CustomerID,
			"error":       err.Error(),
		})
		return nil, pkgerrors.ErrTransactionDeclined
	}

	tx := &domain.Transaction{
		ID:            uuid.New(),
		CustomerID:    req.CustomerID,
		WalletAddress: req.WalletAddress,
		Amount:        req.Amount,
		Token:         req.Token,
		Type:          txType,
		Status:        domain.TransactionStatusPending,
		RiskScore:     &assessment.Score,
		RiskFactors:   assessment.Factors,
		Flags:         domain.Metadata{},
		InitiatedAt:   now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if assessment.RequiresEDD {
		tx.Flags[domain.FlagEDDRequired] = true
	}
	if assessment.RequiresReview {
		tx.Flags[domain.FlagManualReview] = true
	}

	if assessment.ShouldBlock {
		return s.block(ctx, tx, assessment)
	}

	// 4. Atomic daily limit reservation. A later monitoring block leaves the
	// reservation in place: counting a declined spend is the conservative
	// failure mode.
	if _, err := s.limits.AuthorizeSpend(ctx, customer, req.WalletAddress, req.Amount, now); err != nil {
		if errors.Is(err, pkgerrors.ErrDailyLimitExceeded) {
			return s.decline(ctx, tx, assessment, "daily spending limit exceeded")
		}
		return nil, pkgerrors.Wrap(err, "failed to reserve daily spending")
	}

	if err := s.repo.Create(ctx, tx); err != nil {
		return nil, pkgerrors.Wrap(err, "failed to persist transaction")
	}

	// 5. Real-time monitoring against the durable record. Monitoring owns
	// its own flag/block side effects; a monitor block still declines here.
	monResult, err := s.monitor.Monitor(ctx, tx)
	if err != nil {
		s.logger.Error("real-time monitoring failed", map[string]interface{}{
			"transaction_id": tx.ID,
			"error":          err.Error(),
		})
		return nil, pkgerrors.ErrTransactionDeclined
	}
	if monResult.ShouldBlock {
		s.logger.Warn("transaction blocked by real-time monitoring", map[string]interface{}{
			"transaction_id": tx.ID,
			"alerts":         monResult.Alerts,
			"score":          monResult.RiskScore,
		})
		return nil, pkgerrors.ErrTransactionDeclined
	}

	s.logger.Info("transaction authorized", map[string]interface{}{
		"transaction_id": tx.ID,
		"customer_id":    req.CustomerID,
		"amount":         req.Amount.String(),
		"risk_score":     assessment.Score,
	})

	return &AuthorizeResponse{
		Transaction: tx,
		Authorized:  true,
		Message:     "transaction authorized for signing",
	}, nil
}

// block records the cancelled transfer and, when the assessment mandates it,
// files the suspicious activity report before returning the generic decline.
// The record must land first: the SAR references a durable row.
func (s *Service) block(ctx context.Context, tx *domain.Transaction, assessment *domain.RiskAssessment) (*AuthorizeResponse, error) {
	tx.Status = domain.TransactionStatusCancelled
	tx.StatusReason = "blocked by risk assessment"

	s.logger.Warn("transaction blocked by risk assessment", map[string]interface{}{
		"transaction_id": tx.ID,
		"customer_id":    tx.CustomerID,
		"risk_score":     assessment.Score,
		"risk_factors":   assessment.Factors,
	})

	if err := s.repo.Create(ctx, tx); err != nil {
		return nil, pkgerrors.Wrap(err, "failed to record blocked transaction")
	}

	if assessment.HasAction(domain.ActionFileSAR) {
		if _, err := s.sars.FileSAR(ctx, tx,
			fmt.Sprintf("transaction blocked at authorization with risk score %d", assessment.Score)); err != nil {
			return nil, pkgerrors.Wrap(err, "failed to file SAR for blocked transaction")
		}
	}

	return nil, pkgerrors.ErrTransactionDeclined
}

// decline records the real reasons and returns only the generic decline.
func (s *Service) decline(ctx context.Context, tx *domain.Transaction, assessment *domain.RiskAssessment, reason string) (*AuthorizeResponse, error) {
	tx.Status = domain.TransactionStatusCancelled
	tx.StatusReason = reason

	s.logger.Warn("transaction declined", map[string]interface{}{
		"transaction_id": tx.ID,
		"customer_id":    tx.CustomerID,
		"reason":         reason,
		"risk_score":     assessment.Score,
		"risk_factors":   assessment.Factors,
	})

	if err := s.repo.Create(ctx, tx); err != nil {
		s.logger.Error("failed to record declined transaction", map[string]interface{}{
			"transaction_id": tx.ID,
			"error":          err.Error(),
		})
	}

	return nil, pkgerrors.ErrTransactionDeclined
}

// Confirm records the on-chain signature once the signed transaction lands.
func (s *Service) Confirm(ctx context.Context, id uuid.UUID, signature string) error {
	if signature == "" {
		return errors.New("signature is required")
	}
	if err := s.repo.Confirm(ctx, id, signature); err != nil {
		return pkgerrors.Wrap(err, "failed to confirm transaction")
	}
	s.logger.Info("transaction confirmed", map[string]interface{}{
		"transaction_id": id,
		"signature":      signature,
	})
	return nil
}

// Fail marks an authorized transfer that never landed on chain.
func (s *Service) Fail(ctx context.Context, id uuid.UUID, reason string) error {
	if err := s.repo.UpdateStatus(ctx, id, domain.TransactionStatusFailed, reason); err != nil {
		return pkgerrors.Wrap(err, "failed to mark transaction failed")
	}
	s.logger.Warn("transaction failed", map[string]interface{}{
		"transaction_id": id,
		"reason":         reason,
	})
	return nil
}
