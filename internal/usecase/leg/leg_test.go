package leg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/eitanfeifel/stablecoin-exchange/internal/domain"
	"github.com/eitanfeifel/stablecoin-exchange/internal/infrastructure/memory"
	"github.com/eitanfeifel/stablecoin-exchange/internal/infrastructure/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMetrics() *metrics.SagaMetrics {
	return metrics.NewSagaMetrics(prometheus.NewRegistry())
}

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err, "bad decimal %q", s)
	return d
}

func seedRate(t *testing.T, store *memory.Store, quote, rate string) {
	t.Helper()
	err := store.UpsertRates(context.Background(), []*domain.ExchangeRate{{
		Base:          "USD",
		Quote:         quote,
		Rate:          dec(t, rate),
		EffectiveDate: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
	}})
	require.NoError(t, err)
}

func feesFor(t *testing.T, store *memory.Store, paymentID string, legType domain.LegType) []*domain.Fee {
	t.Helper()
	all, err := store.GetFeesByPaymentID(context.Background(), paymentID)
	require.NoError(t, err)
	var out []*domain.Fee
	for _, fee := range all {
		if fee.Leg == legType {
			out = append(out, fee)
		}
	}
	return out
}

func TestFundingRedeliveryIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	funding := NewFunding(store, store, dec(t, "1.00"), "usd", newMetrics())

	for i := 0; i < 3; i++ {
		res, err := funding.Execute(ctx, "pay-1", dec(t, "100"), "MXN")
		require.NoError(t, err, "attempt %d", i)
		completed, ok := res.(domain.LegCompleted)
		require.True(t, ok, "attempt %d: expected LegCompleted, got %T", i, res)
		assert.Equal(t, domain.LegID("pay-1", domain.LegFunding), completed.LegID)
	}

	legs, err := store.GetLegsByPaymentID(ctx, "pay-1")
	require.NoError(t, err)
	require.Len(t, legs, 1)
	fees := feesFor(t, store, "pay-1", domain.LegFunding)
	require.Len(t, fees, 1)
	assert.True(t, fees[0].Amount.Equal(dec(t, "1")), "fee amount %s", fees[0].Amount)
	assert.Equal(t, "USD", fees[0].Currency)
}

func TestFundingRejectsNonPositiveAmount(t *testing.T) {
	store := memory.NewStore()
	funding := NewFunding(store, store, dec(t, "1.00"), "USD", newMetrics())

	for _, amount := range []string{"0", "-5"} {
		_, err := funding.Execute(context.Background(), "pay-x", dec(t, amount), "MXN")
		assert.ErrorIs(t, err, domain.ErrInvalidAmount, "amount %s", amount)
	}
}

type legExecutor interface {
	Execute(ctx context.Context, paymentID string, amount decimal.Decimal, destinationCurrency string) (domain.LegResult, error)
}

func assertSameResult(t *testing.T, want, got domain.LegResult) {
	t.Helper()
	require.IsType(t, want, got)
	switch w := want.(type) {
	case domain.LegCompleted:
		g := got.(domain.LegCompleted)
		assert.Equal(t, w.LegID, g.LegID)
		assert.True(t, w.ConvertedAmount.Equal(g.ConvertedAmount), "converted %s, want %s", g.ConvertedAmount, w.ConvertedAmount)
		assert.True(t, w.Rate.Equal(g.Rate), "rate %s, want %s", g.Rate, w.Rate)
	case domain.LegFailed:
		assert.Equal(t, w, got)
	}
}

func TestLegRedeliveryWritesOnce(t *testing.T) {
	tests := []struct {
		name       string
		legType    domain.LegType
		currency   string
		amount     string
		build      func(store *memory.Store) legExecutor
		wantStatus domain.LegStatus
		wantFees   int
	}{
		{
			name:     "minting completed",
			legType:  domain.LegMinting,
			currency: "MXN",
			amount:   "100",
			build: func(store *memory.Store) legExecutor {
				return NewMinting(store, store, decimal.RequireFromString("0.50"), "USD", "USDC", newMetrics())
			},
			wantStatus: domain.LegStatusCompleted,
			wantFees:   1,
		},
		{
			name:     "minting failed",
			legType:  domain.LegMinting,
			currency: "MXN",
			amount:   "100",
			build: func(store *memory.Store) legExecutor {
				return NewMinting(store, store, decimal.RequireFromString("0.50"), "USD", "USDC", newMetrics(),
					WithFaultPlan(FaultPlan{FailMinting: true}))
			},
			wantStatus: domain.LegStatusFailed,
		},
		{
			name:     "offramp completed",
			legType:  domain.LegOfframp,
			currency: "MXN",
			amount:   "100",
			build: func(store *memory.Store) legExecutor {
				return NewOfframp(store, store, store, decimal.RequireFromString("0.5"), "USD", "USDC", newMetrics())
			},
			wantStatus: domain.LegStatusCompleted,
			wantFees:   1,
		},
		{
			name:     "offramp missing rate",
			legType:  domain.LegOfframp,
			currency: "XYZ",
			amount:   "100",
			build: func(store *memory.Store) legExecutor {
				return NewOfframp(store, store, store, decimal.RequireFromString("0.5"), "USD", "USDC", newMetrics())
			},
			wantStatus: domain.LegStatusFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := memory.NewStore()
			seedRate(t, store, "MXN", "18.344")
			executor := tt.build(store)

			var first domain.LegResult
			for i := 0; i < 3; i++ {
				res, err := executor.Execute(ctx, "pay-redeliver", dec(t, tt.amount), tt.currency)
				require.NoError(t, err, "attempt %d", i)
				if i == 0 {
					first = res
					continue
				}
				assertSameResult(t, first, res)
			}

			legs, err := store.GetLegsByPaymentID(ctx, "pay-redeliver")
			require.NoError(t, err)
			require.Len(t, legs, 1)
			assert.Equal(t, tt.legType, legs[0].Type)
			assert.Equal(t, tt.wantStatus, legs[0].Status)
			assert.Len(t, feesFor(t, store, "pay-redeliver", tt.legType), tt.wantFees)
		})
	}
}

func TestMinting(t *testing.T) {
	tests := []struct {
		name       string
		faults     FaultPlan
		wantStatus domain.LegStatus
		wantFees   int
	}{
		{name: "converts one to one", wantStatus: domain.LegStatusCompleted, wantFees: 1},
		{name: "fault plan fails the leg", faults: FaultPlan{FailMinting: true}, wantStatus: domain.LegStatusFailed, wantFees: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := memory.NewStore()
			minting := NewMinting(store, store, dec(t, "0.50"), "USD", "USDC", newMetrics(), WithFaultPlan(tt.faults))

			res, err := minting.Execute(ctx, "pay-2", dec(t, "250.75"), "EUR")
			require.NoError(t, err)

			leg, err := store.GetLegByID(ctx, domain.LegID("pay-2", domain.LegMinting))
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, leg.Status)
			assert.Len(t, feesFor(t, store, "pay-2", domain.LegMinting), tt.wantFees)

			switch r := res.(type) {
			case domain.LegCompleted:
				assert.True(t, r.ConvertedAmount.Equal(dec(t, "250.75")), "converted %s", r.ConvertedAmount)
				assert.True(t, r.Rate.Equal(decimal.NewFromInt(1)), "rate %s", r.Rate)
				assert.Equal(t, "USDC", r.Currency)
			case domain.LegFailed:
				assert.True(t, leg.ConvertedAmount.IsZero(), "failed leg converted %s", leg.ConvertedAmount)
				assert.NotEmpty(t, r.Reason)
			default:
				t.Fatalf("unexpected result %T", res)
			}
		})
	}
}

func TestOfframp(t *testing.T) {
	tests := []struct {
		name          string
		quote         string
		rate          string
		amount        string
		wantConverted string
		wantFee       string
	}{
		{name: "two decimal currency", quote: "MXN", rate: "18.344", amount: "100", wantConverted: "1834.40", wantFee: "9.17"},
		{name: "zero decimal currency", quote: "JPY", rate: "151.237", amount: "100", wantConverted: "15124", wantFee: "76"},
		{name: "three decimal currency", quote: "KWD", rate: "0.30712", amount: "99.5", wantConverted: "30.558", wantFee: "0.153"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := memory.NewStore()
			seedRate(t, store, tt.quote, tt.rate)
			offramp := NewOfframp(store, store, store, dec(t, "0.5"), "USD", "USDC", newMetrics())

			res, err := offramp.Execute(ctx, "pay-3", dec(t, tt.amount), tt.quote)
			require.NoError(t, err)
			completed, ok := res.(domain.LegCompleted)
			require.True(t, ok, "expected LegCompleted, got %T", res)
			assert.True(t, completed.ConvertedAmount.Equal(dec(t, tt.wantConverted)), "converted %s, want %s", completed.ConvertedAmount, tt.wantConverted)
			assert.True(t, completed.Rate.Equal(dec(t, tt.rate)), "rate %s", completed.Rate)

			fees := feesFor(t, store, "pay-3", domain.LegOfframp)
			require.Len(t, fees, 1)
			assert.True(t, fees[0].Amount.Equal(dec(t, tt.wantFee)), "fee %s, want %s", fees[0].Amount, tt.wantFee)
			assert.Equal(t, tt.quote, fees[0].Currency)
		})
	}
}

func TestOfframpMissingRate(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	offramp := NewOfframp(store, store, store, dec(t, "0.5"), "USD", "USDC", newMetrics())

	res, err := offramp.Execute(ctx, "pay-4", dec(t, "100"), "XYZ")
	require.NoError(t, err)
	require.IsType(t, domain.LegFailed{}, res)

	leg, err := store.GetLegByID(ctx, domain.LegID("pay-4", domain.LegOfframp))
	require.NoError(t, err)
	assert.Equal(t, domain.LegStatusFailed, leg.Status)
	assert.True(t, leg.ConvertedAmount.IsZero())
	assert.True(t, leg.Rate.IsZero())
	assert.Empty(t, feesFor(t, store, "pay-4", domain.LegOfframp))
}

type failingRates struct{}

func (failingRates) GetLatestRate(context.Context, string, string) (*domain.ExchangeRate, error) {
	return nil, errors.New("connection refused")
}

func (failingRates) UpsertRates(context.Context, []*domain.ExchangeRate) error { return nil }

func TestOfframpRateStoreErrorWritesNothing(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	offramp := NewOfframp(store, store, failingRates{}, dec(t, "0.5"), "USD", "USDC", newMetrics())

	_, err := offramp.Execute(ctx, "pay-5", dec(t, "10"), "MXN")
	require.Error(t, err)
	_, err = store.GetLegByID(ctx, domain.LegID("pay-5", domain.LegOfframp))
	assert.ErrorIs(t, err, domain.ErrLegNotFound)
}

func TestCompensation(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	m := newMetrics()
	funding := NewFunding(store, store, dec(t, "1.00"), "USD", m)
	minting := NewMinting(store, store, dec(t, "0.50"), "USD", "USDC", m, WithFaultPlan(FaultPlan{FailMinting: true}))
	compensation := NewCompensation(store, m)

	_, err := funding.Execute(ctx, "pay-6", dec(t, "40"), "MXN")
	require.NoError(t, err)
	_, err = minting.Execute(ctx, "pay-6", dec(t, "40"), "MXN")
	require.NoError(t, err)

	fundingID := domain.LegID("pay-6", domain.LegFunding)
	for i := 0; i < 2; i++ {
		require.NoError(t, compensation.Compensate(ctx, fundingID), "compensate attempt %d", i)
	}
	leg, err := store.GetLegByID(ctx, fundingID)
	require.NoError(t, err)
	assert.Equal(t, domain.LegStatusCompensated, leg.Status)
	assert.Len(t, feesFor(t, store, "pay-6", domain.LegFunding), 1, "compensated funding leg keeps its fee")

	invalid := []struct {
		name  string
		legID string
	}{
		{name: "missing leg", legID: domain.LegID("nope", domain.LegFunding)},
		{name: "non-funding leg", legID: domain.LegID("pay-6", domain.LegMinting)},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, compensation.Compensate(ctx, tt.legID), domain.ErrCompensationNotAllowed)
		})
	}
}

func TestCompensationRejectsFailedFunding(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	failed := &domain.Leg{
		ID:        domain.LegID("pay-7", domain.LegFunding),
		PaymentID: "pay-7",
		Type:      domain.LegFunding,
		Status:    domain.LegStatusFailed,
	}
	_, err := store.CreateLeg(ctx, failed)
	require.NoError(t, err)

	err = NewCompensation(store, newMetrics()).Compensate(ctx, failed.ID)
	assert.ErrorIs(t, err, domain.ErrCompensationNotAllowed)
}
