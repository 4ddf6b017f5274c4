package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ExchangeRate is the number of Quote units per one Base unit.
type ExchangeRate struct {
	Base          string
	Quote         string
	Rate          decimal.Decimal
	EffectiveDate time.Time
}

type ExchangeRateRepository interface {
	// GetLatestRate returns ErrRateNotFound when the pair is absent.
	GetLatestRate(ctx context.Context, base, quote string) (*ExchangeRate, error)
	UpsertRates(ctx context.Context, rates []*ExchangeRate) error
}
