package compliance

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"custodia/internal/domain"
	"custodia/pkg/config"
	"custodia/pkg/logger"
)

// --- Mocks ---

type MockTransactionStore struct {
	mock.Mock
}

func (m *MockTransactionStore) FindCompletedInRange(ctx context.Context, from, to time.Time) ([]*domain.Transaction, error) {
	args := m.Called(ctx, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Transaction), args.Error(1)
}

func (m *MockTransactionStore) Flag(ctx context.Context, id uuid.UUID, reason string) error {
	args := m.Called(ctx, id, reason)
	return args.Error(0)
}

func (m *MockTransactionStore) Block(ctx context.Context, id uuid.UUID, reason string) error {
	args := m.Called(ctx, id, reason)
	return args.Error(0)
}

func (m *MockTransactionStore) AttachSAR(ctx context.Context, txID, sarID uuid.UUID) error {
	args := m.Called(ctx, txID, sarID)
	return args.Error(0)
}

type MockAlertStore struct {
	mock.Mock
}

func (m *MockAlertStore) Create(ctx context.Context, alert *domain.ComplianceAlert) error {
	args := m.Called(ctx, alert)
	return args.Error(0)
}

type MockSARStore struct {
	mock.Mock
}

func (m *MockSARStore) Create(ctx context.Context, sar *domain.SuspiciousActivityReport) error {
	args := m.Called(ctx, sar)
	return args.Error(0)
}

type MockCustomerReader struct {
	mock.Mock
}

func (m *MockCustomerReader) FindByID(ctx context.Context, id uuid.UUID) (*domain.Customer, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Customer), args.Error(1)
}

type MockGuard struct {
	mock.Mock
}

func (m *MockGuard) Acquire(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

type MockDetector struct {
	mock.Mock
}

func (m *MockDetector) Detect(ctx context.Context, tx *domain.Transaction) (int, []string, error) {
	args := m.Called(ctx, tx)
	if args.Get(1) == nil {
		return args.Int(0), nil, args.Error(2)
	}
	return args.Int(0), args.Get(1).([]string), args.Error(2)
}

// --- Fixture ---

type fixture struct {
	service   *Service
	txs       *MockTransactionStore
	alerts    *MockAlertStore
	sars      *MockSARStore
	customers *MockCustomerReader
	guard     *MockGuard
	detector  *MockDetector
}

func testRiskConfig() config.RiskConfig {
	return config.RiskConfig{
		SingleTxLimit:        decimal.NewFromInt(10000),
		DailyThreshold:       decimal.NewFromInt(5000),
		StructuringThreshold: decimal.NewFromInt(9000),
		VelocityThreshold:    5,
		VelocityWindow:       time.Hour,
		SARFilingWindow:      720 * time.Hour,
	}
}

func testMonitoringConfig() config.MonitoringConfig {
	return config.MonitoringConfig{
		FlagScore:  40,
		BlockScore: 80,
	}
}

func newFixture() *fixture {
	f := &fixture{
		txs:       new(MockTransactionStore),
		alerts:    new(MockAlertStore),
		sars:      new(MockSARStore),
		customers: new(MockCustomerReader),
		guard:     new(MockGuard),
		detector:  new(MockDetector),
	}
	f.service = NewService(
		testRiskConfig(), testMonitoringConfig(),
		f.txs, f.alerts, f.sars, f.customers,
		f.guard, f.detector, logger.NewNop(),
	)
	return f
}

func confirmedTx(customerID uuid.UUID, amount int64, at time.Time) *domain.Transaction {
	return &domain.Transaction{
		ID:            uuid.New(),
		CustomerID:    customerID,
		WalletAddress: "Wa11et111111111111111111111111111111111111",
		Amount:        decimal.NewFromInt(amount),
		Token:         "SOL",
		Type:          domain.TransactionTypeTransfer,
		Status:        domain.TransactionStatusConfirmed,
		InitiatedAt:   at,
	}
}
