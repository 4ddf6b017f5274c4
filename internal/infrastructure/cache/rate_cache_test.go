package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/eitanfeifel/stablecoin-exchange/internal/domain"
	"github.com/eitanfeifel/stablecoin-exchange/internal/infrastructure/memory"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingRates records how often lookups reach the wrapped repository.
type countingRates struct {
	domain.ExchangeRateRepository
	lookups int
}

func (c *countingRates) GetLatestRate(ctx context.Context, base, quote string) (*domain.ExchangeRate, error) {
	c.lookups++
	return c.ExchangeRateRepository.GetLatestRate(ctx, base, quote)
}

func newTestCache(t *testing.T) (*RateCache, *countingRates, *miniredis.Miniredis) {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })

	next := &countingRates{ExchangeRateRepository: memory.NewStore()}
	return NewRateCache(next, client, time.Minute), next, server
}

func usdRate(quote, rate string) *domain.ExchangeRate {
	return &domain.ExchangeRate{
		Base:          "USD",
		Quote:         quote,
		Rate:          decimal.RequireFromString(rate),
		EffectiveDate: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestRateKeyNormalizesPair(t *testing.T) {
	assert.Equal(t, "rate:USD:MXN", rateKey(" usd", "mxn "))
}

func TestDecodeRate(t *testing.T) {
	rate, err := decodeRate([]byte(`{"base":"USD","quote":"MXN","rate":"18.344","effective_date":"2024-03-01T00:00:00Z"}`))
	require.NoError(t, err)
	assert.Equal(t, "18.344", rate.Rate.String())
	assert.Equal(t, "MXN", rate.Quote)
	assert.Equal(t, 1, rate.EffectiveDate.Day())

	_, err = decodeRate([]byte(`{"rate":"not-a-number"}`))
	assert.Error(t, err)
}

func TestRateCacheReadsThrough(t *testing.T) {
	ctx := context.Background()
	rc, next, server := newTestCache(t)
	require.NoError(t, next.UpsertRates(ctx, []*domain.ExchangeRate{usdRate("MXN", "18.344")}))

	for i := 0; i < 3; i++ {
		rate, err := rc.GetLatestRate(ctx, "usd", "mxn")
		require.NoError(t, err)
		assert.True(t, rate.Rate.Equal(decimal.RequireFromString("18.344")), "rate %s", rate.Rate)
		assert.Equal(t, "MXN", rate.Quote)
	}

	assert.Equal(t, 1, next.lookups)
	assert.True(t, server.Exists("rate:USD:MXN"))
	assert.Equal(t, time.Minute, server.TTL("rate:USD:MXN"))
}

func TestRateCacheDoesNotCacheMisses(t *testing.T) {
	ctx := context.Background()
	rc, next, server := newTestCache(t)

	_, err := rc.GetLatestRate(ctx, "USD", "BRL")
	require.ErrorIs(t, err, domain.ErrRateNotFound)
	assert.False(t, server.Exists("rate:USD:BRL"))

	require.NoError(t, rc.UpsertRates(ctx, []*domain.ExchangeRate{usdRate("BRL", "5.0123")}))
	rate, err := rc.GetLatestRate(ctx, "USD", "BRL")
	require.NoError(t, err)
	assert.True(t, rate.Rate.Equal(decimal.RequireFromString("5.0123")), "rate %s", rate.Rate)
	assert.Equal(t, 2, next.lookups)
}

func TestRateCacheUpsertInvalidates(t *testing.T) {
	ctx := context.Background()
	rc, next, server := newTestCache(t)
	require.NoError(t, rc.UpsertRates(ctx, []*domain.ExchangeRate{usdRate("EUR", "0.92")}))

	_, err := rc.GetLatestRate(ctx, "USD", "EUR")
	require.NoError(t, err)
	require.True(t, server.Exists("rate:USD:EUR"))

	newer := usdRate("EUR", "0.95")
	newer.EffectiveDate = newer.EffectiveDate.AddDate(0, 0, 1)
	require.NoError(t, rc.UpsertRates(ctx, []*domain.ExchangeRate{newer}))
	assert.False(t, server.Exists("rate:USD:EUR"))

	rate, err := rc.GetLatestRate(ctx, "USD", "EUR")
	require.NoError(t, err)
	assert.True(t, rate.Rate.Equal(decimal.RequireFromString("0.95")), "rate %s", rate.Rate)
	assert.Equal(t, 2, next.lookups)
}

func TestRateCacheDropsUndecodableEntry(t *testing.T) {
	ctx := context.Background()
	rc, next, server := newTestCache(t)
	require.NoError(t, next.UpsertRates(ctx, []*domain.ExchangeRate{usdRate("MXN", "18.344")}))
	require.NoError(t, server.Set("rate:USD:MXN", "{garbage"))

	rate, err := rc.GetLatestRate(ctx, "USD", "MXN")
	require.NoError(t, err)
	assert.True(t, rate.Rate.Equal(decimal.RequireFromString("18.344")), "rate %s", rate.Rate)
	assert.Equal(t, 1, next.lookups)

	cached, err := server.Get("rate:USD:MXN")
	require.NoError(t, err)
	assert.Contains(t, cached, `"rate":"18.344"`)
}

func TestRateCacheFallsBackWhenRedisFails(t *testing.T) {
	ctx := context.Background()
	rc, next, server := newTestCache(t)
	require.NoError(t, next.UpsertRates(ctx, []*domain.ExchangeRate{usdRate("MXN", "18.344")}))
	server.SetError("ERR server unavailable")

	rate, err := rc.GetLatestRate(ctx, "USD", "MXN")
	require.NoError(t, err)
	assert.Equal(t, "MXN", rate.Quote)

	assert.NoError(t, rc.UpsertRates(ctx, []*domain.ExchangeRate{usdRate("JPY", "151.237")}))
	assert.Equal(t, 1, next.lookups)
}
