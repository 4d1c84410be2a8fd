package compliance

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"custodia/internal/domain"
	"custodia/pkg/errors"
)

// Batch suspicion filter weights and thresholds.
const (
	suspicionLargeAmountPoints = 40
	suspicionRoundNumberPoints = 15
	suspicionUnverifiedPoints  = 20

	suspicionKeepScore = 30
	suspicionSARScore  = 70
	highRiskAggregate  = 50

	// Recommendation triggers.
	recommendSuspiciousRate    = "0.1"
	recommendLargeTransactions = 10
)

// GenerateReport runs the batch AML sweep over a time window. Over the same
// immutable transaction set and range the numeric fields reproduce bit for
// bit; only GeneratedAt depends on the wall clock.
func (s *Service) GenerateReport(ctx context.Context, from, to time.Time) (*domain.AMLReport, error) {
	txs, err := s.txs.FindCompletedInRange(ctx, from, to)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load transactions for report")
	}

	report := &domain.AMLReport{
		From:        from,
		To:          to,
		GeneratedAt: time.Now(),
	}

	tiers := make(map[uuid.UUID]domain.VerificationTier)
	aggregate := make(map[uuid.UUID]*domain.HighRiskCustomer)

	totalVolume := decimal.Zero
	suspiciousVolume := decimal.Zero
	maxTx := decimal.Zero
	largeCount := 0

	for _, tx := range txs {
		totalVolume = totalVolume.Add(tx.Amount)
		if tx.Amount.GreaterThan(maxTx) {
			maxTx = tx.Amount
		}
		if tx.Amount.GreaterThanOrEqual(s.riskCfg.SingleTxLimit) {
			largeCount++
		}

		score, reasons, err := s.suspicionScore(ctx, tx, tiers)
		if err != nil {
			return nil, err
		}

		agg, ok := aggregate[tx.CustomerID]
		if !ok {
			agg = &domain.HighRiskCustomer{CustomerID: tx.CustomerID, TotalAmount: decimal.Zero}
			aggregate[tx.CustomerID] = agg
		}
		agg.AggregateScore += score
		agg.TransactionCount++
		agg.TotalAmount = agg.TotalAmount.Add(tx.Amount)

		if score < suspicionKeepScore {
			continue
		}

		suspiciousVolume = suspiciousVolume.Add(tx.Amount)
		report.SuspiciousTransactions = append(report.SuspiciousTransactions, domain.SuspiciousTransaction{
			TransactionID: tx.ID,
			CustomerID:    tx.CustomerID,
			Amount:        tx.Amount,
			Token:         tx.Token,
			InitiatedAt:   tx.InitiatedAt,
			Score:         score,
			Reasons:       reasons,
		})

		if score >= suspicionSARScore {
			sar, err := s.fileSAROnce(ctx, tx,
				fmt.Sprintf("batch AML sweep scored transaction at %d: %s", score, strings.Join(reasons, "; ")),
				reasons, relatedIDs(txs, tx))
			if err != nil {
				return nil, err
			}
			if sar != nil {
				report.SARs = append(report.SARs, *sar)
			}
		}
	}

	report.StructuringPatterns = s.detectStructuring(txs)
	report.HighRiskCustomers = highRiskCustomers(aggregate)
	report.Stats = buildStats(len(txs), totalVolume, len(report.SuspiciousTransactions), suspiciousVolume, maxTx, largeCount)
	report.Recommendations = recommendations(report.Stats)

	s.logger.Info("aml report generated", map[string]interface{}{
		"from":        from,
		"to":          to,
		"total":       report.Stats.TotalTransactions,
		"suspicious":  report.Stats.SuspiciousCount,
		"sars":        len(report.SARs),
		"structuring": len(report.StructuringPatterns),
	})

	return report, nil
}

// suspicionScore is the simplified batch filter. Customer verification state
// is recomputed per report, never read from a stale annotation.
func (s *Service) suspicionScore(ctx context.Context, tx *domain.Transaction, tiers map[uuid.UUID]domain.VerificationTier) (int, []string, error) {
	score := 0
	var reasons []string

	if tx.Amount.GreaterThanOrEqual(s.riskCfg.SingleTxLimit) {
		score += suspicionLargeAmountPoints
		reasons = append(reasons, "large transaction")
	}
	if isRoundThousand(tx.Amount) {
		score += suspicionRoundNumberPoints
		reasons = append(reasons, "round-number amount")
	}

	tier, ok := tiers[tx.CustomerID]
	if !ok {
		customer, err := s.customers.FindByID(ctx, tx.CustomerID)
		if err != nil {
			return 0, nil, errors.Wrap(err, "failed to resolve customer for suspicion filter")
		}
		tier = customer.Tier
		tiers[tx.CustomerID] = tier
	}
	if tier == "" || tier == domain.TierUnverified {
		score += suspicionUnverifiedPoints
		reasons = append(reasons, "customer not verified")
	}

	return score, reasons, nil
}

// detectStructuring flags any (customer, calendar day) group with two or more
// transactions each individually inside [structuring threshold, single-tx
// limit): multiple transfers engineered to stay just under the reporting
// trigger.
func (s *Service) detectStructuring(txs []*domain.Transaction) []domain.StructuringPattern {
	type groupKey struct {
		customer uuid.UUID
		day      string
	}

	groups := make(map[groupKey][]*domain.Transaction)
	for _, tx := range txs {
		if tx.Amount.LessThan(s.riskCfg.StructuringThreshold) {
			continue
		}
		if tx.Amount.GreaterThanOrEqual(s.riskCfg.SingleTxLimit) {
			continue
		}
		key := groupKey{customer: tx.CustomerID, day: tx.InitiatedAt.Format("2006-01-02")}
		groups[key] = append(groups[key], tx)
	}

	var patterns []domain.StructuringPattern
	for key, members := range groups {
		if len(members) < 2 {
			continue
		}
		total := decimal.Zero
		ids := make([]uuid.UUID, 0, len(members))
		for _, tx := range members {
			total = total.Add(tx.Amount)
			ids = append(ids, tx.ID)
		}
		patterns = append(patterns, domain.StructuringPattern{
			CustomerID:       key.customer,
			Day:              key.day,
			TransactionIDs:   ids,
			TransactionCount: len(members),
			TotalAmount:      total,
		})
	}

	sort.Slice(patterns, func(i, j int) bool {
		if patterns[i].CustomerID != patterns[j].CustomerID {
			return patterns[i].CustomerID.String() < patterns[j].CustomerID.String()
		}
		return patterns[i].Day < patterns[j].Day
	})

	return patterns
}

func highRiskCustomers(aggregate map[uuid.UUID]*domain.HighRiskCustomer) []domain.HighRiskCustomer {
	var out []domain.HighRiskCustomer
	for _, agg := range aggregate {
		if agg.AggregateScore >= highRiskAggregate {
			out = append(out, *agg)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].AggregateScore != out[j].AggregateScore {
			return out[i].AggregateScore > out[j].AggregateScore
		}
		return out[i].CustomerID.String() < out[j].CustomerID.String()
	})

	return out
}

func buildStats(total int, totalVolume decimal.Decimal, suspicious int, suspiciousVolume, maxTx decimal.Decimal, large int) domain.AMLReportStats {
	stats := domain.AMLReportStats{
		TotalTransactions:    total,
		TotalVolume:          totalVolume,
		SuspiciousCount:      suspicious,
		SuspiciousVolume:     suspiciousVolume,
		SuspiciousRate:       decimal.Zero,
		SuspiciousVolumeRate: decimal.Zero,
		AverageTransaction:   decimal.Zero,
		MaxTransaction:       maxTx,
		LargeTransactions:    large,
	}

	if total > 0 {
		stats.SuspiciousRate = decimal.NewFromInt(int64(suspicious)).Div(decimal.NewFromInt(int64(total))).Round(4)
		stats.AverageTransaction = totalVolume.Div(decimal.NewFromInt(int64(total))).Round(8)
	}
	if totalVolume.IsPositive() {
		stats.SuspiciousVolumeRate = suspiciousVolume.Div(totalVolume).Round(4)
	}

	return stats
}

func recommendations(stats domain.AMLReportStats) []string {
	var recs []string

	rateLimit, _ := decimal.NewFromString(recommendSuspiciousRate)
	if stats.SuspiciousRate.GreaterThan(rateLimit) {
		recs = append(recs, "suspicious transaction rate exceeds 10%: review onboarding and velocity controls")
	}
	if stats.LargeTransactions > recommendLargeTransactions {
		recs = append(recs, "elevated count of reportable large transactions: verify CTR filings are current")
	}
	return recs
}

// relatedIDs collects the customer's other transactions in the window as SAR
// cross references.
func relatedIDs(txs []*domain.Transaction, subject *domain.Transaction) []uuid.UUID {
	var related []uuid.UUID
	for _, tx := range txs {
		if tx.CustomerID == subject.CustomerID && tx.ID != subject.ID {
			related = append(related, tx.ID)
		}
	}
	return related
}
