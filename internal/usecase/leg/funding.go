package leg

import (
	"context"
	"time"

	"github.com/eitanfeifel/stablecoin-exchange/internal/domain"
	"github.com/eitanfeifel/stablecoin-exchange/internal/infrastructure/metrics"
	"github.com/shopspring/decimal"
)

// Funding takes the source amount in. There is no bank behind it, so it
// always completes and charges a flat fee in the source currency.
type Funding struct {
	recorder
	flatFee        decimal.Decimal
	sourceCurrency string
}

func NewFunding(
	legs domain.LegRepository,
	fees domain.FeeRepository,
	flatFee decimal.Decimal,
	sourceCurrency string,
	sagaMetrics *metrics.SagaMetrics,
) *Funding {
	return &Funding{
		recorder:       recorder{legs: legs, fees: fees, metrics: sagaMetrics},
		flatFee:        flatFee,
		sourceCurrency: domain.NormalizeCurrency(sourceCurrency),
	}
}

// Execute records the funding leg. destinationCurrency is kept for the log
// line only; funding does not depend on it.
func (f *Funding) Execute(ctx context.Context, paymentID string, amount decimal.Decimal, destinationCurrency string) (domain.LegResult, error) {
	if err := validAmount(amount); err != nil {
		return nil, err
	}

	leg := &domain.Leg{
		ID:              domain.LegID(paymentID, domain.LegFunding),
		PaymentID:       paymentID,
		Type:            domain.LegFunding,
		SourceAmount:    amount,
		ConvertedAmount: amount,
		Rate:            decimal.NewFromInt(1),
		SourceCurrency:  f.sourceCurrency,
		TargetCurrency:  f.sourceCurrency,
		Status:          domain.LegStatusCompleted,
	}
	fee := &domain.Fee{
		ID:        domain.FeeID(paymentID, domain.LegFunding),
		PaymentID: paymentID,
		Leg:       domain.LegFunding,
		Amount:    domain.RoundToMinor(f.flatFee, f.sourceCurrency),
		Currency:  f.sourceCurrency,
		CreatedAt: time.Now().UTC(),
	}

	return f.persist(ctx, leg, fee)
}
