package payment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"custodia/internal/domain"
	"custodia/internal/risk"
	"custodia/internal/txvalidator"
	pkgerrors "custodia/pkg/errors"
	"custodia/pkg/logger"
)

// --- Mocks ---

type MockTransactionRepository struct {
	mock.Mock
}

func (m *MockTransactionRepository) Create(ctx context.Context, tx *domain.Transaction) error {
	args := m.Called(ctx, tx)
	return args.Error(0)
}

func (m *MockTransactionRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.TransactionStatus, reason string) error {
	args := m.Called(ctx, id, status, reason)
	return args.Error(0)
}

func (m *MockTransactionRepository) Confirm(ctx context.Context, id uuid.UUID, signature string) error {
	args := m.Called(ctx, id, signature)
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

type MockValidator struct {
	mock.Mock
}

func (m *MockValidator) Validate(ctx context.Context, payload []byte, expectedSigner string, customerID uuid.UUID) *txvalidator.ValidationResult {
	args := m.Called(ctx, payload, expectedSigner, customerID)
	return args.Get(0).(*txvalidator.ValidationResult)
}

type MockRiskAssessor struct {
	mock.Mock
}

func (m *MockRiskAssessor) Assess(ctx context.Context, customerID uuid.UUID, intent risk.Intent) (*domain.RiskAssessment, error) {
	args := m.Called(ctx, customerID, intent)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RiskAssessment), args.Error(1)
}

type MockTransactionMonitor struct {
	mock.Mock
}

func (m *MockTransactionMonitor) Monitor(ctx context.Context, tx *domain.Transaction) (*domain.MonitoringResult, error) {
	args := m.Called(ctx, tx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.MonitoringResult), args.Error(1)
}

type MockLimitAuthorizer struct {
	mock.Mock
}

func (m *MockLimitAuthorizer) AuthorizeSpend(ctx context.Context, customer *domain.Customer, walletAddress string, amount decimal.Decimal, now time.Time) (decimal.Decimal, error) {
	args := m.Called(ctx, customer, walletAddress, amount, now)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

type MockSARFiler struct {
	mock.Mock
}

func (m *MockSARFiler) FileSAR(ctx context.Context, tx *domain.Transaction, description string) (*domain.SuspiciousActivityReport, error) {
	args := m.Called(ctx, tx, description)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SuspiciousActivityReport), args.Error(1)
}

type MockStepUpVerifier struct {
	mock.Mock
}

func (m *MockStepUpVerifier) Verify(ctx context.Context, customer *domain.Customer, code string) error {
	args := m.Called(ctx, customer, code)
	return args.Error(0)
}

// --- Fixture ---

type fixture struct {
	service   *Service
	repo      *MockTransactionRepository
	customers *MockCustomerReader
	validator *MockValidator
	assessor  *MockRiskAssessor
	monitor   *MockTransactionMonitor
	limits    *MockLimitAuthorizer
	sars      *MockSARFiler
	stepUp    *MockStepUpVerifier
}

func newFixture() *fixture {
	f := &fixture{
		repo:      new(MockTransactionRepository),
		customers: new(MockCustomerReader),
		validator: new(MockValidator),
		assessor:  new(MockRiskAssessor),
		monitor:   new(MockTransactionMonitor),
		limits:    new(MockLimitAuthorizer),
		sars:      new(MockSARFiler),
		stepUp:    new(MockStepUpVerifier),
	}
	f.service = NewService(f.repo, f.customers, f.validator, f.assessor, f.monitor, f.limits, f.sars, f.stepUp, logger.NewNop())
	return f
}

const testWallet = "Wa11et111111111111111111111111111111111111"

func testRequest(customerID uuid.UUID) *AuthorizeRequest {
	return &AuthorizeRequest{
		CustomerID:    customerID,
		WalletAddress: testWallet,
		Payload:       []byte(`{"signatures":[],"message":{}}`),
		Amount:        decimal.NewFromInt(250),
		Token:         "SOL",
		Type:          domain.TransactionTypeTransfer,
	}
}

func testCustomer(id uuid.UUID) *domain.Customer {
	return &domain.Customer{ID: id, Email: "ada.osei@example.com", Tier: domain.TierBasic}
}

func cleanAssessment() *domain.RiskAssessment {
	return &domain.RiskAssessment{
		ID:         uuid.New(),
		Score:      5,
		Level:      domain.RiskLevelMinimal,
		AssessedAt: time.Now(),
	}
}

func (f *fixture) expectHappyPath(customerID uuid.UUID) {
	f.customers.On("FindByID", mock.Anything, customerID).Return(testCustomer(customerID), nil)
	f.validator.On("Validate", mock.Anything, mock.Anything, testWallet, customerID).
		Return(&txvalidator.ValidationResult{IsValid: true})
	f.assessor.On("Assess", mock.Anything, customerID, mock.Anything).Return(cleanAssessment(), nil)
	f.limits.On("AuthorizeSpend", mock.Anything, mock.Anything, testWallet, mock.Anything, mock.Anything).
		Return(decimal.NewFromInt(250), nil)
	f.repo.On("Create", mock.Anything, mock.Anything).Return(nil)
	f.monitor.On("Monitor", mock.Anything, mock.Anything).
		Return(&domain.MonitoringResult{RiskScore: 0}, nil)
}

// --- Tests ---

func TestAuthorize_HappyPath(t *testing.T) {
	f := newFixture()
	customerID := uuid.New()
	f.expectHappyPath(customerID)

	resp, err := f.service.Authorize(context.Background(), testRequest(customerID))

	require.NoError(t, err)
	assert.True(t, resp.Authorized)
	require.NotNil(t, resp.Transaction)
	assert.Equal(t, domain.TransactionStatusPending, resp.Transaction.Status)
	assert.Equal(t, customerID, resp.Transaction.CustomerID)
	f.repo.AssertNumberOfCalls(t, "Create", 1)
	f.stepUp.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything, mock.Anything)
}

func TestAuthorize_RejectsNonPositiveAmount(t *testing.T) {
	f := newFixture()
	req := testRequest(uuid.New())
	req.Amount = decimal.Zero

	_, err := f.service.Authorize(context.Background(), req)

	require.Error(t, err)
	f.customers.AssertNotCalled(t, "FindByID", mock.Anything, mock.Anything)
}

func TestAuthorize_StructuralFailureDeclinesGenerically(t *testing.T) {
	f := newFixture()
	customerID := uuid.New()
	f.customers.On("FindByID", mock.Anything, customerID).Return(testCustomer(customerID), nil)
	f.validator.On("Validate", mock.Anything, mock.Anything, testWallet, customerID).
		Return(&txvalidator.ValidationResult{IsValid: false, Errors: []string{"fee payer is not a required signer"}})

	_, err := f.service.Authorize(context.Background(), testRequest(customerID))

	require.ErrorIs(t, err, pkgerrors.ErrTransactionDeclined)
	f.assessor.AssertNotCalled(t, "Assess", mock.Anything, mock.Anything, mock.Anything)
	f.repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestAuthorize_StepUpRequired(t *testing.T) {
	customerID := uuid.New()

	t.Run("valid code proceeds", func(t *testing.T) {
		f := newFixture()
		f.customers.On("FindByID", mock.Anything, customerID).Return(testCustomer(customerID), nil)
		f.validator.On("Validate", mock.Anything, mock.Anything, testWallet, customerID).
			Return(&txvalidator.ValidationResult{IsValid: true, RequiresAdditionalAuth: true})
		f.stepUp.On("Verify", mock.Anything, mock.Anything, "123456").Return(nil)
		f.assessor.On("Assess", mock.Anything, customerID, mock.Anything).Return(cleanAssessment(), nil)
		f.limits.On("AuthorizeSpend", mock.Anything, mock.Anything, testWallet, mock.Anything, mock.Anything).
			Return(decimal.NewFromInt(250), nil)
		f.repo.On("Create", mock.Anything, mock.Anything).Return(nil)
		f.monitor.On("Monitor", mock.Anything, mock.Anything).
			Return(&domain.MonitoringResult{}, nil)

		req := testRequest(customerID)
		req.StepUpCode = "123456"

		resp, err := f.service.Authorize(context.Background(), req)

		require.NoError(t, err)
		assert.True(t, resp.Authorized)
		f.stepUp.AssertCalled(t, "Verify", mock.Anything, mock.Anything, "123456")
	})

	t.Run("invalid code stops the flow", func(t *testing.T) {
		f := newFixture()
		f.customers.On("FindByID", mock.Anything, customerID).Return(testCustomer(customerID), nil)
		f.validator.On("Validate", mock.Anything, mock.Anything, testWallet, customerID).
			Return(&txvalidator.ValidationResult{IsValid: true, RequiresAdditionalAuth: true})
		f.stepUp.On("Verify", mock.Anything, mock.Anything, "000000").
			Return(pkgerrors.ErrAdditionalAuthInvalid)

		req := testRequest(customerID)
		req.StepUpCode = "000000"

		_, err := f.service.Authorize(context.Background(), req)

		require.ErrorIs(t, err, pkgerrors.ErrAdditionalAuthInvalid)
		f.assessor.AssertNotCalled(t, "Assess", mock.Anything, mock.Anything, mock.Anything)
	})
}

func criticalAssessment() *domain.RiskAssessment {
	return &domain.RiskAssessment{
		ID:      uuid.New(),
		Score:   100,
		Level:   domain.RiskLevelCritical,
		Factors: domain.StringList{"sanctions screening match"},
		RequiredActions: []domain.RequiredAction{
			domain.ActionBlockTransaction, domain.ActionFileSAR,
		},
		ShouldBlock: true,
	}
}

func TestAuthorize_RiskBlockPersistsRecordAndFilesSAR(t *testing.T) {
	f := newFixture()
	customerID := uuid.New()
	f.customers.On("FindByID", mock.Anything, customerID).Return(testCustomer(customerID), nil)
	f.validator.On("Validate", mock.Anything, mock.Anything, testWallet, customerID).
		Return(&txvalidator.ValidationResult{IsValid: true})
	f.assessor.On("Assess", mock.Anything, customerID, mock.Anything).Return(criticalAssessment(), nil)

	var recorded *domain.Transaction
	f.repo.On("Create", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		recorded = args.Get(1).(*domain.Transaction)
	}).Return(nil)
	f.sars.On("FileSAR", mock.Anything, mock.Anything, mock.Anything).
		Return(&domain.SuspiciousActivityReport{ID: uuid.New()}, nil)

	_, err := f.service.Authorize(context.Background(), testRequest(customerID))

	require.ErrorIs(t, err, pkgerrors.ErrTransactionDeclined)
	require.NotNil(t, recorded)
	assert.Equal(t, domain.TransactionStatusCancelled, recorded.Status)
	assert.Equal(t, "blocked by risk assessment", recorded.StatusReason)
	assert.Equal(t, domain.StringList{"sanctions screening match"}, recorded.RiskFactors)
	f.sars.AssertCalled(t, "FileSAR", mock.Anything, recorded, mock.Anything)
	f.limits.AssertNotCalled(t, "AuthorizeSpend",
		mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestAuthorize_RiskBlockSARFilingFailurePropagates(t *testing.T) {
	f := newFixture()
	customerID := uuid.New()
	f.customers.On("FindByID", mock.Anything, customerID).Return(testCustomer(customerID), nil)
	f.validator.On("Validate", mock.Anything, mock.Anything, testWallet, customerID).
		Return(&txvalidator.ValidationResult{IsValid: true})
	f.assessor.On("Assess", mock.Anything, customerID, mock.Anything).Return(criticalAssessment(), nil)
	f.repo.On("Create", mock.Anything, mock.Anything).Return(nil)
	f.sars.On("FileSAR", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("sar store unavailable"))

	_, err := f.service.Authorize(context.Background(), testRequest(customerID))

	require.Error(t, err)
	assert.NotErrorIs(t, err, pkgerrors.ErrTransactionDeclined)
	assert.Contains(t, err.Error(), "failed to file SAR")
}

func TestAuthorize_RiskBlockWithoutFilingMandate(t *testing.T) {
	f := newFixture()
	customerID := uuid.New()
	f.customers.On("FindByID", mock.Anything, customerID).Return(testCustomer(customerID), nil)
	f.validator.On("Validate", mock.Anything, mock.Anything, testWallet, customerID).
		Return(&txvalidator.ValidationResult{IsValid: true})
	f.assessor.On("Assess", mock.Anything, customerID, mock.Anything).Return(&domain.RiskAssessment{
		ID:              uuid.New(),
		Score:           86,
		Level:           domain.RiskLevelCritical,
		RequiredActions: []domain.RequiredAction{domain.ActionBlockTransaction},
		ShouldBlock:     true,
	}, nil)
	f.repo.On("Create", mock.Anything, mock.Anything).Return(nil)

	_, err := f.service.Authorize(context.Background(), testRequest(customerID))

	require.ErrorIs(t, err, pkgerrors.ErrTransactionDeclined)
	f.sars.AssertNotCalled(t, "FileSAR", mock.Anything, mock.Anything, mock.Anything)
}

func TestAuthorize_AssessmentFailureDeclinesGenerically(t *testing.T) {
	f := newFixture()
	customerID := uuid.New()
	f.customers.On("FindByID", mock.Anything, customerID).Return(testCustomer(customerID), nil)
	f.validator.On("Validate", mock.Anything, mock.Anything, testWallet, customerID).
		Return(&txvalidator.ValidationResult{IsValid: true})
	f.assessor.On("Assess", mock.Anything, customerID, mock.Anything).
		Return(nil, pkgerrors.ErrScreeningFailed)

	_, err := f.service.Authorize(context.Background(), testRequest(customerID))

	require.ErrorIs(t, err, pkgerrors.ErrTransactionDeclined)
}

func TestAuthorize_DailyLimitExceededDeclines(t *testing.T) {
	f := newFixture()
	customerID := uuid.New()
	f.customers.On("FindByID", mock.Anything, customerID).Return(testCustomer(customerID), nil)
	f.validator.On("Validate", mock.Anything, mock.Anything, testWallet, customerID).
		Return(&txvalidator.ValidationResult{IsValid: true})
	f.assessor.On("Assess", mock.Anything, customerID, mock.Anything).Return(cleanAssessment(), nil)
	f.limits.On("AuthorizeSpend", mock.Anything, mock.Anything, testWallet, mock.Anything, mock.Anything).
		Return(decimal.Zero, pkgerrors.ErrDailyLimitExceeded)

	var recorded *domain.Transaction
	f.repo.On("Create", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		recorded = args.Get(1).(*domain.Transaction)
	}).Return(nil)

	_, err := f.service.Authorize(context.Background(), testRequest(customerID))

	require.ErrorIs(t, err, pkgerrors.ErrTransactionDeclined)
	require.NotNil(t, recorded)
	assert.Equal(t, "daily spending limit exceeded", recorded.StatusReason)
	f.monitor.AssertNotCalled(t, "Monitor", mock.Anything, mock.Anything)
}

func TestAuthorize_MonitoringBlockDeclines(t *testing.T) {
	f := newFixture()
	customerID := uuid.New()
	f.customers.On("FindByID", mock.Anything, customerID).Return(testCustomer(customerID), nil)
	f.validator.On("Validate", mock.Anything, mock.Anything, testWallet, customerID).
		Return(&txvalidator.ValidationResult{IsValid: true})
	f.assessor.On("Assess", mock.Anything, customerID, mock.Anything).Return(cleanAssessment(), nil)
	f.limits.On("AuthorizeSpend", mock.Anything, mock.Anything, testWallet, mock.Anything, mock.Anything).
		Return(decimal.NewFromInt(250), nil)
	f.repo.On("Create", mock.Anything, mock.Anything).Return(nil)
	f.monitor.On("Monitor", mock.Anything, mock.Anything).
		Return(&domain.MonitoringResult{RiskScore: 85, ShouldFlag: true, ShouldBlock: true}, nil)

	_, err := f.service.Authorize(context.Background(), testRequest(customerID))

	require.ErrorIs(t, err, pkgerrors.ErrTransactionDeclined)
	// The record was already persisted; the monitor owns the block mutation.
	f.repo.AssertNumberOfCalls(t, "Create", 1)
}

func TestAuthorize_ReviewFlagsCarriedOnRecord(t *testing.T) {
	f := newFixture()
	customerID := uuid.New()
	f.customers.On("FindByID", mock.Anything, customerID).Return(testCustomer(customerID), nil)
	f.validator.On("Validate", mock.Anything, mock.Anything, testWallet, customerID).
		Return(&txvalidator.ValidationResult{IsValid: true})
	f.assessor.On("Assess", mock.Anything, customerID, mock.Anything).Return(&domain.RiskAssessment{
		ID:             uuid.New(),
		Score:          75,
		Level:          domain.RiskLevelHigh,
		RequiresReview: true,
		RequiresEDD:    true,
	}, nil)
	f.limits.On("AuthorizeSpend", mock.Anything, mock.Anything, testWallet, mock.Anything, mock.Anything).
		Return(decimal.NewFromInt(250), nil)
	f.repo.On("Create", mock.Anything, mock.Anything).Return(nil)
	f.monitor.On("Monitor", mock.Anything, mock.Anything).
		Return(&domain.MonitoringResult{}, nil)

	resp, err := f.service.Authorize(context.Background(), testRequest(customerID))

	require.NoError(t, err)
	assert.Equal(t, true, resp.Transaction.Flags[domain.FlagEDDRequired])
	assert.Equal(t, true, resp.Transaction.Flags[domain.FlagManualReview])
}

func TestConfirm(t *testing.T) {
	f := newFixture()
	id := uuid.New()
	f.repo.On("Confirm", mock.Anything, id, "5ig").Return(nil)

	require.NoError(t, f.service.Confirm(context.Background(), id, "5ig"))
	require.Error(t, f.service.Confirm(context.Background(), id, ""))
	f.repo.AssertNumberOfCalls(t, "Confirm", 1)
}

func TestFail(t *testing.T) {
	f := newFixture()
	id := uuid.New()
	f.repo.On("UpdateStatus", mock.Anything, id, domain.TransactionStatusFailed, "blockhash expired").Return(nil)

	require.NoError(t, f.service.Fail(context.Background(), id, "blockhash expired"))
	f.repo.AssertCalled(t, "UpdateStatus", mock.Anything, id, domain.TransactionStatusFailed, "blockhash expired")
}
