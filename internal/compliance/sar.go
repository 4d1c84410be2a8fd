package compliance

import (
	"context"
	"time"

	"github.com/google/uuid"

	"custodia/internal/domain"
	"custodia/pkg/errors"
)

// FileSAR generates and persists a suspicious activity report for a single
// transaction. Failures surface to the caller: a SAR that cannot be recorded
// must not be silently dropped.
func (s *Service) FileSAR(ctx context.Context, tx *domain.Transaction, description string) (*domain.SuspiciousActivityReport, error) {
	return s.fileSAR(ctx, tx, description, tx.RiskFactors, nil)
}

// fileSAROnce files at most one SAR per transaction across sweep runs.
// Overlapping scheduler windows and on-demand reports revisit the same rows;
// a transaction already carrying a SAR reference, or one another run claimed
// through the guard, is skipped. Returns nil without error when skipped.
func (s *Service) fileSAROnce(ctx context.Context, tx *domain.Transaction, description string, factors []string, related []uuid.UUID) (*domain.SuspiciousActivityReport, error) {
	if tx.SARID != nil {
		return nil, nil
	}
	acquired, err := s.guard.Acquire(ctx, "sar:"+tx.ID.String())
	if err != nil {
		return nil, errors.Wrap(err, "failed to acquire SAR guard")
	}
	if !acquired {
		return nil, nil
	}
	return s.fileSAR(ctx, tx, description, factors, related)
}

func (s *Service) fileSAR(ctx context.Context, tx *domain.Transaction, description string, factors []string, related []uuid.UUID) (*domain.SuspiciousActivityReport, error) {
	customer, err := s.customers.FindByID(ctx, tx.CustomerID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load customer for SAR")
	}

	now := time.Now()
	sar := &domain.SuspiciousActivityReport{
		ID:                    uuid.New(),
		CustomerID:            customer.ID,
		CustomerName:          customer.FullName(),
		CustomerEmail:         customer.Email,
		CustomerJurisdiction:  customer.Jurisdiction,
		TransactionID:         tx.ID,
		WalletAddress:         tx.WalletAddress,
		Amount:                tx.Amount,
		Token:                 tx.Token,
		ActivityDescription:   description,
		Factors:               domain.StringList(factors),
		RelatedTransactionIDs: idStrings(related),
		FilingDeadline:        now.Add(s.riskCfg.SARFilingWindow),
		Status:                domain.SARStatusPendingReview,
		GeneratedAt:           now,
	}

	if err := s.sars.Create(ctx, sar); err != nil {
		return nil, errors.Wrap(err, "failed to persist SAR")
	}
	if err := s.txs.AttachSAR(ctx, tx.ID, sar.ID); err != nil {
		return nil, errors.Wrap(err, "failed to link SAR to transaction")
	}

	s.logger.Warn("suspicious activity report filed", map[string]interface{}{
		"sar_id":          sar.ID,
		"transaction_id":  tx.ID,
		"customer_id":     customer.ID,
		"filing_deadline": sar.FilingDeadline,
	})

	return sar, nil
}

func idStrings(ids []uuid.UUID) domain.StringList {
	if len(ids) == 0 {
		return nil
	}
	out := make(domain.StringList, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}
