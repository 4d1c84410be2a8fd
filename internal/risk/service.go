// Package risk scores transaction intents against AML heuristics. Scoring is
// a pure function of the customer profile snapshot, the intent and the
// trailing history window, so identical inputs always produce identical
// assessments.
package risk

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"custodia/internal/domain"
	"custodia/pkg/config"
	"custodia/pkg/errors"
	"custodia/pkg/logger"
)

// Intent is the transaction under assessment, before it exists as a record.
type Intent struct {
	Amount    decimal.Decimal
	Token     string
	Type      domain.TransactionType
	Timestamp time.Time
}

// HistoryReader is the read-only transaction history query interface.
type HistoryReader interface {
	FindRecent(ctx context.Context, customerID uuid.UUID, since time.Time) ([]*domain.Transaction, error)
	CountRecent(ctx context.Context, customerID uuid.UUID, since time.Time) (int, error)
}

// ProfileReader recomputes a customer risk profile from source data on every
// call; stale cached profiles must never drive blocking decisions.
type ProfileReader interface {
	Profile(ctx context.Context, customerID uuid.UUID) (*domain.CustomerRiskProfile, error)
}

// Screener matches customer identity fields against a sanctions list. A hit
// is a non-negotiable block. PEPScreener is the reserved elevated-scrutiny
// hook; the default policy contributes nothing through it.
type Screener interface {
	Screen(ctx context.Context, customerID uuid.UUID) (bool, error)
}

type PEPScreener interface {
	ScreenPEP(ctx context.Context, customerID uuid.UUID, name string) (int, []string, error)
}

type Engine struct {
	cfg      config.RiskConfig
	history  HistoryReader
	profiles ProfileReader
	screener Screener
	pep      PEPScreener
	logger   logger.Logger
}

func NewEngine(cfg config.RiskConfig, history HistoryReader, profiles ProfileReader, screener Screener, log logger.Logger) *Engine {
	return &Engine{
		cfg:      cfg,
		history:  history,
		profiles: profiles,
		screener: screener,
		logger:   log,
	}
}

// WithPEPScreener installs the PEP extension point.
func (e *Engine) WithPEPScreener(pep PEPScreener) *Engine {
	e.pep = pep
	return e
}

// Assess scores one intent. Profile and sanctions lookups fail closed; a
// failed history lookup degrades to zero pattern/velocity contribution and is
// logged, never treated as a clean history silently.
func (e *Engine) Assess(ctx context.Context, customerID uuid.UUID, intent Intent) (*domain.RiskAssessment, error) {
	profile, err := e.profiles.Profile(ctx, customerID)
	if err != nil {
		return nil, errors.Wrap(err, "risk assessment requires a customer profile")
	}

	now := intent.Timestamp
	if now.IsZero() {
		now = time.Now()
	}

	history, histErr := e.history.FindRecent(ctx, customerID, now.AddDate(0, 0, -30))
	if histErr != nil {
		e.logger.Warn("risk assessment degraded: history unavailable", map[string]interface{}{
			"customer_id": customerID,
			"error":       histErr.Error(),
		})
		history = nil
	}

	velocityCount, velErr := e.history.CountRecent(ctx, customerID, now.Add(-e.cfg.VelocityWindow))
	if velErr != nil {
		e.logger.Warn("risk assessment degraded: velocity window unavailable", map[string]interface{}{
			"customer_id": customerID,
			"error":       velErr.Error(),
		})
		velocityCount = 0
	}

	sanctioned, err := e.screener.Screen(ctx, customerID)
	if err != nil {
		return nil, errors.Wrap(errors.ErrScreeningFailed, err.Error())
	}

	score := 0
	var factors []string

	add := func(points int, fs []string) {
		score += points
		factors = append(factors, fs...)
	}

	add(cddCheck(profile, e.cfg))
	add(amountCheck(intent.Amount, e.cfg))
	add(patternCheck(intent.Amount, history, now, e.cfg))
	add(sanctionsCheck(sanctioned))
	add(e.pepCheck(ctx, customerID))
	add(geographicCheck(profile, e.cfg))
	add(velocityCheck(velocityCount, e.cfg))

	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}

	assessment := &domain.RiskAssessment{
		ID:              uuid.New(),
		CustomerID:      customerID,
		Score:           score,
		Level:           domain.LevelForScore(score),
		Factors:         factors,
		RequiredActions: requiredActions(score),
		ShouldBlock:     score >= e.cfg.BlockScore,
		RequiresReview:  score >= e.cfg.ReviewScore,
		RequiresEDD:     score >= e.cfg.EDDScore,
		AssessedAt:      now,
	}

	if score >= e.cfg.ReviewScore {
		e.logger.Warn("elevated risk assessment", map[string]interface{}{
			"customer_id": customerID,
			"amount":      intent.Amount.String(),
			"score":       score,
			"level":       assessment.Level,
		})
	}

	return assessment, nil
}

// requiredActions applies the cumulative escalation ladder. The ladder's
// bands are fixed; the block/review/EDD booleans are tuned separately.
func requiredActions(score int) []domain.RequiredAction {
	var actions []domain.RequiredAction
	if score >= 85 {
		actions = append(actions, domain.ActionBlockTransaction, domain.ActionFileSAR)
	}
	if score >= 70 {
		actions = append(actions, domain.ActionEnhancedDueDiligence, domain.ActionManualReview)
	}
	if score >= 50 {
		actions = append(actions, domain.ActionAdditionalMonitoring)
	}
	return actions
}

func (e *Engine) pepCheck(ctx context.Context, customerID uuid.UUID) (int, []string) {
	if e.pep == nil {
		return 0, nil
	}
	points, factors, err := e.pep.ScreenPEP(ctx, customerID, "")
	if err != nil {
		e.logger.Warn("pep screening unavailable", map[string]interface{}{
			"customer_id": customerID,
			"error":       err.Error(),
		})
		return 0, nil
	}
	return points, factors
}

// cddCheck covers customer due diligence: verification state and account age.
func cddCheck(profile *domain.CustomerRiskProfile, cfg config.RiskConfig) (int, []string) {
	points := 0
	var factors []string

	if profile.Tier == "" || profile.Tier == domain.TierUnverified {
		points += 25
		factors = append(factors, "customer identity not verified")
	}
	if profile.AccountAge < cfg.NewAccountAge {
		points += 15
		factors = append(factors, "account younger than 30 days")
	}

	return points, factors
}

// amountCheck scores the raw size and shape of the amount. Round multiples of
// 1000 at or above 5000 are a structuring smell.
func amountCheck(amount decimal.Decimal, cfg config.RiskConfig) (int, []string) {
	points := 0
	var factors []string

	if amount.GreaterThanOrEqual(cfg.SingleTxLimit) {
		points += 30
		factors = append(factors, "amount at or above single-transaction reporting limit")
	} else if amount.GreaterThanOrEqual(cfg.DailyThreshold) {
		points += 15
		factors = append(factors, "amount at or above daily monitoring threshold")
	}

	if isRoundThousand(amount) && amount.GreaterThanOrEqual(decimal.NewFromInt(5000)) {
		points += 10
		factors = append(factors, "round-number amount")
	}

	return points, factors
}

// patternCheck scans the trailing 30-day window for same-day bursts and
// spikes over the customer's trailing average.
func patternCheck(amount decimal.Decimal, history []*domain.Transaction, now time.Time, cfg config.RiskConfig) (int, []string) {
	points := 0
	var factors []string

	if len(history) == 0 {
		return 0, nil
	}

	sameDay := 0
	total := decimal.Zero
	day := now.Format("2006-01-02")
	for _, tx := range history {
		if tx.InitiatedAt.Format("2006-01-02") == day {
			sameDay++
		}
		total = total.Add(tx.Amount)
	}

	if sameDay >= cfg.VelocityThreshold {
		points += 20
		factors = append(factors, "high same-day transaction count")
	}

	average := total.Div(decimal.NewFromInt(int64(len(history))))
	if average.IsPositive() && amount.GreaterThan(average.Mul(decimal.NewFromInt(5))) {
		points += 15
		factors = append(factors, "amount exceeds 5x trailing average")
	}

	return points, factors
}

func sanctionsCheck(matched bool) (int, []string) {
	if !matched {
		return 0, nil
	}
	return 100, []string{"sanctions list match"}
}

func geographicCheck(profile *domain.CustomerRiskProfile, cfg config.RiskConfig) (int, []string) {
	for _, j := range cfg.HighRiskJurisdictions {
		if strings.EqualFold(j, profile.Jurisdiction) {
			return 25, []string{"high-risk jurisdiction"}
		}
	}
	return 0, nil
}

// velocityCheck is short-window burst detection, distinct from the 30-day
// pattern scan.
func velocityCheck(count int, cfg config.RiskConfig) (int, []string) {
	if count >= cfg.VelocityThreshold {
		return 25, []string{"transaction velocity limit reached"}
	}
	return 0, nil
}

func isRoundThousand(amount decimal.Decimal) bool {
	thousand := decimal.NewFromInt(1000)
	return amount.Mod(thousand).IsZero()
}
