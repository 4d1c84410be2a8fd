package limits

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
	"custodia/pkg/config"
	pkgerrors "custodia/pkg/errors"
	"custodia/pkg/logger"
)

type MockSpendStore struct {
	mock.Mock
}

func (m *MockSpendStore) AuthorizeSpend(ctx context.Context, walletAddress, day string, amount, limit decimal.Decimal) (decimal.Decimal, error) {
	args := m.Called(ctx, walletAddress, day, amount, limit)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockSpendStore) SpentToday(ctx context.Context, walletAddress, day string) (decimal.Decimal, error) {
	args := m.Called(ctx, walletAddress, day)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

const testWallet = "Wa11et111111111111111111111111111111111111"

func testTierConfig() config.TierConfig {
	return config.TierConfig{
		UnverifiedDailyLimit: decimal.NewFromInt(100),
		BasicDailyLimit:      decimal.NewFromInt(2500),
		FullDailyLimit:       decimal.NewFromInt(50000),
	}
}

func newLimitsService(store *MockSpendStore) *Service {
	return NewService(testTierConfig(), store, logger.NewNop())
}

func tierCustomer(tier domain.VerificationTier) *domain.Customer {
	return &domain.Customer{ID: uuid.New(), Tier: tier}
}

func TestPolicyFor(t *testing.T) {
	svc := newLimitsService(new(MockSpendStore))

	assert.True(t, svc.PolicyFor(domain.TierUnverified).DailyLimit.Equal(decimal.NewFromInt(100)))
	assert.True(t, svc.PolicyFor(domain.TierBasic).DailyLimit.Equal(decimal.NewFromInt(2500)))
	assert.True(t, svc.PolicyFor(domain.TierFull).DailyLimit.Equal(decimal.NewFromInt(50000)))

	assert.Equal(t, []string{"government_id", "proof_of_address", "source_of_funds"},
		svc.PolicyFor(domain.TierFull).RequiredDocuments)
	assert.Empty(t, svc.PolicyFor(domain.TierUnverified).RequiredDocuments)
}

func TestPolicyFor_UnknownTierFallsBackToUnverified(t *testing.T) {
	svc := newLimitsService(new(MockSpendStore))

	policy := svc.PolicyFor(domain.VerificationTier("platinum"))

	assert.True(t, policy.DailyLimit.Equal(decimal.NewFromInt(100)))
}

func TestCheckLimit(t *testing.T) {
	now := time.Date(2025, 3, 1, 15, 0, 0, 0, time.UTC)

	t.Run("within remaining allowance", func(t *testing.T) {
		store := new(MockSpendStore)
		store.On("SpentToday", mock.Anything, testWallet, "2025-03-01").
			Return(decimal.NewFromInt(1000), nil)
		svc := newLimitsService(store)

		ok, remaining, err := svc.CheckLimit(context.Background(), tierCustomer(domain.TierBasic), testWallet, decimal.NewFromInt(1500), now)

		require.NoError(t, err)
		assert.True(t, ok)
		assert.True(t, remaining.Equal(decimal.NewFromInt(1500)))
	})

	t.Run("over remaining allowance", func(t *testing.T) {
		store := new(MockSpendStore)
		store.On("SpentToday", mock.Anything, testWallet, "2025-03-01").
			Return(decimal.NewFromInt(2400), nil)
		svc := newLimitsService(store)

		ok, remaining, err := svc.CheckLimit(context.Background(), tierCustomer(domain.TierBasic), testWallet, decimal.NewFromInt(200), now)

		require.NoError(t, err)
		assert.False(t, ok)
		assert.True(t, remaining.Equal(decimal.NewFromInt(100)))
	})

	t.Run("overspent counter clamps remaining to zero", func(t *testing.T) {
		store := new(MockSpendStore)
		store.On("SpentToday", mock.Anything, testWallet, "2025-03-01").
			Return(decimal.NewFromInt(3000), nil)
		svc := newLimitsService(store)

		ok, remaining, err := svc.CheckLimit(context.Background(), tierCustomer(domain.TierBasic), testWallet, decimal.NewFromInt(1), now)

		require.NoError(t, err)
		assert.False(t, ok)
		assert.True(t, remaining.IsZero())
	})

	t.Run("store failure surfaces", func(t *testing.T) {
		store := new(MockSpendStore)
		store.On("SpentToday", mock.Anything, testWallet, "2025-03-01").
			Return(decimal.Zero, errors.New("db down"))
		svc := newLimitsService(store)

		_, _, err := svc.CheckLimit(context.Background(), tierCustomer(domain.TierBasic), testWallet, decimal.NewFromInt(1), now)

		require.Error(t, err)
	})
}

func TestAuthorizeSpend(t *testing.T) {
	now := time.Date(2025, 3, 1, 15, 0, 0, 0, time.UTC)

	t.Run("reserves against the tier limit", func(t *testing.T) {
		store := new(MockSpendStore)
		store.On("AuthorizeSpend", mock.Anything, testWallet, "2025-03-01",
			decimal.NewFromInt(400), decimal.NewFromInt(2500)).
			Return(decimal.NewFromInt(1400), nil)
		svc := newLimitsService(store)

		total, err := svc.AuthorizeSpend(context.Background(), tierCustomer(domain.TierBasic), testWallet, decimal.NewFromInt(400), now)

		require.NoError(t, err)
		assert.True(t, total.Equal(decimal.NewFromInt(1400)))
	})

	t.Run("rejects amounts above the tier limit without touching the store", func(t *testing.T) {
		store := new(MockSpendStore)
		svc := newLimitsService(store)

		_, err := svc.AuthorizeSpend(context.Background(), tierCustomer(domain.TierUnverified), testWallet, decimal.NewFromInt(101), now)

		require.ErrorIs(t, err, pkgerrors.ErrDailyLimitExceeded)
		store.AssertNotCalled(t, "AuthorizeSpend",
			mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("passes through a store-side limit rejection", func(t *testing.T) {
		store := new(MockSpendStore)
		store.On("AuthorizeSpend", mock.Anything, testWallet, "2025-03-01",
			decimal.NewFromInt(2000), decimal.NewFromInt(2500)).
			Return(decimal.Zero, pkgerrors.ErrDailyLimitExceeded)
		svc := newLimitsService(store)

		_, err := svc.AuthorizeSpend(context.Background(), tierCustomer(domain.TierBasic), testWallet, decimal.NewFromInt(2000), now)

		require.ErrorIs(t, err, pkgerrors.ErrDailyLimitExceeded)
	})

	t.Run("wraps unexpected store failures", func(t *testing.T) {
		store := new(MockSpendStore)
		store.On("AuthorizeSpend", mock.Anything, testWallet, "2025-03-01",
			decimal.NewFromInt(10), decimal.NewFromInt(100)).
			Return(decimal.Zero, errors.New("db down"))
		svc := newLimitsService(store)

		_, err := svc.AuthorizeSpend(context.Background(), tierCustomer(domain.TierUnverified), testWallet, decimal.NewFromInt(10), now)

		require.Error(t, err)
		assert.NotErrorIs(t, err, pkgerrors.ErrDailyLimitExceeded)
	})

	t.Run("day key rolls over in UTC", func(t *testing.T) {
		// 23:30 in UTC-5 is already the next calendar day in UTC.
		late := time.Date(2025, 3, 1, 23, 30, 0, 0, time.FixedZone("EST", -5*3600))
		store := new(MockSpendStore)
		store.On("AuthorizeSpend", mock.Anything, testWallet, "2025-03-02",
			decimal.NewFromInt(10), decimal.NewFromInt(100)).
			Return(decimal.NewFromInt(10), nil)
		svc := newLimitsService(store)

		_, err := svc.AuthorizeSpend(context.Background(), tierCustomer(domain.TierUnverified), testWallet, decimal.NewFromInt(10), late)

		require.NoError(t, err)
	})
}
