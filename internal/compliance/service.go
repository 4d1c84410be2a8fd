// Package compliance implements real-time transaction monitoring, periodic
// batch AML reporting and suspicious activity report generation.
package compliance

import (
	"context"
	"time"

	"github.com/google/uuid"

	"custodia/internal/domain"
	"custodia/pkg/config"
	"custodia/pkg/logger"
)

// TransactionStore is the transaction record store as the compliance engine
// sees it: range queries plus flag/block/SAR annotation.
type TransactionStore interface {
	FindCompletedInRange(ctx context.Context, from, to time.Time) ([]*domain.Transaction, error)
	Flag(ctx context.Context, id uuid.UUID, reason string) error
	Block(ctx context.Context, id uuid.UUID, reason string) error
	AttachSAR(ctx context.Context, txID, sarID uuid.UUID) error
}

type AlertStore interface {
	Create(ctx context.Context, alert *domain.ComplianceAlert) error
}

type SARStore interface {
	Create(ctx context.Context, sar *domain.SuspiciousActivityReport) error
}

// CustomerReader resolves customers for SAR snapshots and the unverified
// suspicion factor.
type CustomerReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Customer, error)
}

// IdempotencyGuard makes flag/block side effects safe to repeat: Acquire
// returns true exactly once per key.
type IdempotencyGuard interface {
	Acquire(ctx context.Context, key string) (bool, error)
}

// PatternDetector is the real-time monitor's pattern hook.
type PatternDetector interface {
	Detect(ctx context.Context, tx *domain.Transaction) (int, []string, error)
}

type Service struct {
	riskCfg   config.RiskConfig
	monCfg    config.MonitoringConfig
	txs       TransactionStore
	alerts    AlertStore
	sars      SARStore
	customers CustomerReader
	guard     IdempotencyGuard
	detector  PatternDetector
	logger    logger.Logger
}

func NewService(
	riskCfg config.RiskConfig,
	monCfg config.MonitoringConfig,
	txs TransactionStore,
	alerts AlertStore,
	sars SARStore,
	customers CustomerReader,
	guard IdempotencyGuard,
	detector PatternDetector,
	log logger.Logger,
) *Service {
	return &Service{
		riskCfg:   riskCfg,
		monCfg:    monCfg,
		txs:       txs,
		alerts:    alerts,
		sars:      sars,
		customers: customers,
		guard:     guard,
		detector:  detector,
		logger:    log,
	}
}
