// Package limits enforces tier-based daily spending limits. Limit checks and
// spend recording run against an atomic counter store so concurrent
// authorizations cannot jointly exceed a wallet's limit.
package limits

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"custodia/internal/domain"
	"custodia/pkg/config"
	pkgerrors "custodia/pkg/errors"
	"custodia/pkg/logger"
)

// TierPolicy is the spend limit and documentation requirement for one
// verification tier.
type TierPolicy struct {
	DailyLimit        decimal.Decimal
	RequiredDocuments []string
}

// SpendStore is the per-wallet daily counter store. AuthorizeSpend must apply
// the increment and the limit check in one atomic step, returning
// pkgerrors.ErrDailyLimitExceeded when the increment would cross the limit.
type SpendStore interface {
	AuthorizeSpend(ctx context.Context, walletAddress, day string, amount, limit decimal.Decimal) (decimal.Decimal, error)
	SpentToday(ctx context.Context, walletAddress, day string) (decimal.Decimal, error)
}

type Service struct {
	policies map[domain.VerificationTier]TierPolicy
	spending SpendStore
	logger   logger.Logger
}

func NewService(cfg config.TierConfig, spending SpendStore, log logger.Logger) *Service {
	return &Service{
		policies: map[domain.VerificationTier]TierPolicy{
			domain.TierUnverified: {
				DailyLimit:        cfg.UnverifiedDailyLimit,
				RequiredDocuments: nil,
			},
			domain.TierBasic: {
				DailyLimit:        cfg.BasicDailyLimit,
				RequiredDocuments: []string{"government_id"},
			},
			domain.TierFull: {
				DailyLimit:        cfg.FullDailyLimit,
				RequiredDocuments: []string{"government_id", "proof_of_address", "source_of_funds"},
			},
		},
		spending: spending,
		logger:   log,
	}
}

// PolicyFor resolves the tier policy, falling back to the unverified tier for
// unknown or missing tiers so an unmapped tier can never grant an unlimited
// allowance.
func (s *Service) PolicyFor(tier domain.VerificationTier) TierPolicy {
	if policy, ok := s.policies[tier]; ok {
		return policy
	}
	return s.policies[domain.TierUnverified]
}

// CheckLimit reports whether the wallet could spend amount today without
// crossing its tier limit. Advisory only: the authoritative check happens
// inside AuthorizeSpend.
func (s *Service) CheckLimit(ctx context.Context, customer *domain.Customer, walletAddress string, amount decimal.Decimal, now time.Time) (bool, decimal.Decimal, error) {
	policy := s.PolicyFor(customer.Tier)

	spent, err := s.spending.SpentToday(ctx, walletAddress, dayKey(now))
	if err != nil {
		return false, decimal.Zero, pkgerrors.Wrap(err, "failed to read daily spending")
	}

	remaining := policy.DailyLimit.Sub(spent)
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	return amount.LessThanOrEqual(remaining), remaining, nil
}

// AuthorizeSpend atomically reserves amount against the wallet's daily limit.
// Returns the wallet's new daily total, or ErrDailyLimitExceeded without
// changing the counter.
func (s *Service) AuthorizeSpend(ctx context.Context, customer *domain.Customer, walletAddress string, amount decimal.Decimal, now time.Time) (decimal.Decimal, error) {
	policy := s.PolicyFor(customer.Tier)

	if amount.GreaterThan(policy.DailyLimit) {
		return decimal.Zero, pkgerrors.ErrDailyLimitExceeded
	}

	total, err := s.spending.AuthorizeSpend(ctx, walletAddress, dayKey(now), amount, policy.DailyLimit)
	if err != nil {
		if errors.Is(err, pkgerrors.ErrDailyLimitExceeded) {
			s.logger.Warn("daily spending limit exceeded", map[string]interface{}{
				"customer_id":    customer.ID,
				"wallet_address": walletAddress,
				"tier":           customer.Tier,
				"amount":         amount,
				"limit":          policy.DailyLimit,
			})
			return decimal.Zero, err
		}
		return decimal.Zero, pkgerrors.Wrap(err, "failed to record daily spending")
	}

	return total, nil
}

// dayKey buckets spending by UTC calendar day. The day rollover resets the
// allowance implicitly: a new day means a new counter row.
func dayKey(now time.Time) string {
	return now.UTC().Format("2006-01-02")
}
