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
)

// CustomerReader resolves customer records for profile building and
// screening.
type CustomerReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Customer, error)
}

// ProfileBuilder recomputes a CustomerRiskProfile from the customer record
// and the trailing 30-day history on every call.
type ProfileBuilder struct {
	customers CustomerReader
	history   HistoryReader
}

func NewProfileBuilder(customers CustomerReader, history HistoryReader) *ProfileBuilder {
	return &ProfileBuilder{
		customers: customers,
		history:   history,
	}
}

func (b *ProfileBuilder) Profile(ctx context.Context, customerID uuid.UUID) (*domain.CustomerRiskProfile, error) {
	customer, err := b.customers.FindByID(ctx, customerID)
	if err != nil {
		return nil, errors.Wrap(errors.ErrProfileUnavailable, err.Error())
	}

	now := time.Now()
	recent, err := b.history.FindRecent(ctx, customerID, now.AddDate(0, 0, -30))
	if err != nil {
		return nil, errors.Wrap(errors.ErrProfileUnavailable, err.Error())
	}

	volume := decimal.Zero
	for _, tx := range recent {
		volume = volume.Add(tx.Amount)
	}

	return &domain.CustomerRiskProfile{
		CustomerID:    customer.ID,
		Tier:          customer.Tier,
		Jurisdiction:  customer.Jurisdiction,
		AccountAge:    now.Sub(customer.CreatedAt),
		RecentTxCount: len(recent),
		RecentVolume:  volume,
	}, nil
}

// ListScreener matches customer identity fields against configured sanctions
// patterns with case-insensitive substring matching. A failed customer lookup
// fails closed: the caller gets an error, never a clean result.
type ListScreener struct {
	customers CustomerReader
	patterns  []string
}

func NewListScreener(cfg config.RiskConfig, customers CustomerReader) *ListScreener {
	return &ListScreener{
		customers: customers,
		patterns:  cfg.SanctionsPatterns,
	}
}

func (s *ListScreener) Screen(ctx context.Context, customerID uuid.UUID) (bool, error) {
	customer, err := s.customers.FindByID(ctx, customerID)
	if err != nil {
		return false, errors.Wrap(err, "sanctions screening lookup failed")
	}

	identity := strings.ToLower(customer.FullName() + " " + customer.Email)
	for _, pattern := range s.patterns {
		p := strings.ToLower(strings.TrimSpace(pattern))
		if p == "" {
			continue
		}
		if strings.Contains(identity, p) {
			return true, nil
		}
	}
	return false, nil
}
