package compliance

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"custodia/internal/domain"
	"custodia/pkg/config"
	"custodia/pkg/errors"
)

// Monitoring point values. These drive the cheap real-time check; the full
// weighted assessment lives in the risk engine.
const (
	monitorLargeAmountPoints = 50
)

// Monitor runs the real-time threshold check against one transaction. The
// flag and block side effects are idempotent: a second call for the same
// transaction observes the guard and does not duplicate them.
func (s *Service) Monitor(ctx context.Context, tx *domain.Transaction) (*domain.MonitoringResult, error) {
	result := &domain.MonitoringResult{TransactionID: tx.ID}

	if tx.Amount.GreaterThanOrEqual(s.riskCfg.SingleTxLimit) {
		result.RiskScore += monitorLargeAmountPoints
		result.Alerts = append(result.Alerts,
			fmt.Sprintf("amount %s at or above single-transaction limit %s",
				tx.Amount.String(), s.riskCfg.SingleTxLimit.String()))
	}

	if s.detector != nil {
		points, alerts, err := s.detector.Detect(ctx, tx)
		if err != nil {
			// A failed pattern lookup degrades to zero contribution, but the
			// degraded state is always visible in the log.
			s.logger.Warn("monitoring degraded: pattern detection unavailable", map[string]interface{}{
				"transaction_id": tx.ID,
				"error":          err.Error(),
			})
		} else {
			result.RiskScore += points
			result.Alerts = append(result.Alerts, alerts...)
		}
	}

	result.ShouldFlag = result.RiskScore >= s.monCfg.FlagScore
	result.ShouldBlock = result.RiskScore >= s.monCfg.BlockScore

	if result.ShouldFlag {
		if err := s.flagOnce(ctx, tx, result); err != nil {
			return nil, err
		}
	}
	if result.ShouldBlock {
		if err := s.blockOnce(ctx, tx, result); err != nil {
			return nil, err
		}
	}

	return result, nil
}

func (s *Service) flagOnce(ctx context.Context, tx *domain.Transaction, result *domain.MonitoringResult) error {
	acquired, err := s.guard.Acquire(ctx, "monitor:flag:"+tx.ID.String())
	if err != nil {
		return errors.Wrap(err, "failed to acquire flag guard")
	}
	if !acquired {
		return nil
	}

	// Log intent before mutating so a crash between the two is visible
	// during reconciliation.
	s.logger.Warn("flagging suspicious transaction", map[string]interface{}{
		"transaction_id": tx.ID,
		"customer_id":    tx.CustomerID,
		"risk_score":     result.RiskScore,
	})

	reason := "real-time monitoring threshold"
	if len(result.Alerts) > 0 {
		reason = result.Alerts[0]
	}

	if err := s.txs.Flag(ctx, tx.ID, reason); err != nil {
		return errors.Wrap(err, "failed to flag transaction")
	}

	return s.alerts.Create(ctx, &domain.ComplianceAlert{
		ID:            uuid.New(),
		TransactionID: tx.ID,
		CustomerID:    tx.CustomerID,
		Severity:      severityFor(result.RiskScore),
		RiskScore:     result.RiskScore,
		Reasons:       result.Alerts,
		Blocked:       result.ShouldBlock,
		CreatedAt:     time.Now(),
	})
}

func (s *Service) blockOnce(ctx context.Context, tx *domain.Transaction, result *domain.MonitoringResult) error {
	acquired, err := s.guard.Acquire(ctx, "monitor:block:"+tx.ID.String())
	if err != nil {
		return errors.Wrap(err, "failed to acquire block guard")
	}
	if !acquired {
		return nil
	}

	s.logger.Error("blocking transaction", map[string]interface{}{
		"transaction_id": tx.ID,
		"customer_id":    tx.CustomerID,
		"risk_score":     result.RiskScore,
	})

	if err := s.txs.Block(ctx, tx.ID, "real-time monitoring block"); err != nil {
		return errors.Wrap(err, "failed to block transaction")
	}
	return nil
}

func severityFor(score int) string {
	switch {
	case score >= 80:
		return "critical"
	case score >= 60:
		return "high"
	case score >= 40:
		return "medium"
	default:
		return "low"
	}
}

// HistoryCounter counts a customer's recent transactions for burst
// detection.
type HistoryCounter interface {
	CountRecent(ctx context.Context, customerID uuid.UUID, since time.Time) (int, error)
}

// ThresholdDetector is the default pattern hook: round-number amounts and
// short-window bursts.
type ThresholdDetector struct {
	cfg     config.RiskConfig
	history HistoryCounter
}

func NewThresholdDetector(cfg config.RiskConfig, history HistoryCounter) *ThresholdDetector {
	return &ThresholdDetector{cfg: cfg, history: history}
}

const (
	detectorRoundAmountPoints = 15
	detectorBurstPoints       = 35
)

func (d *ThresholdDetector) Detect(ctx context.Context, tx *domain.Transaction) (int, []string, error) {
	points := 0
	var alerts []string

	if isRoundThousand(tx.Amount) && tx.Amount.GreaterThanOrEqual(d.cfg.DailyThreshold) {
		points += detectorRoundAmountPoints
		alerts = append(alerts, "round-number amount")
	}

	if d.history != nil {
		at := tx.InitiatedAt
		if at.IsZero() {
			at = time.Now()
		}
		count, err := d.history.CountRecent(ctx, tx.CustomerID, at.Add(-d.cfg.VelocityWindow))
		if err != nil {
			return points, alerts, err
		}
		if count >= d.cfg.VelocityThreshold {
			points += detectorBurstPoints
			alerts = append(alerts, "transaction burst within velocity window")
		}
	}

	return points, alerts, nil
}

func isRoundThousand(amount decimal.Decimal) bool {
	return amount.Mod(decimal.NewFromInt(1000)).IsZero()
}
