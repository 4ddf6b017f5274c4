package leg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/eitanfeifel/stablecoin-exchange/internal/domain"
	"github.com/eitanfeifel/stablecoin-exchange/internal/infrastructure/metrics"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Offramp delivers the bridge amount in the destination currency at the
// latest table rate for (base, destination).
type Offramp struct {
	recorder
	rates        domain.ExchangeRateRepository
	feePercent   decimal.Decimal
	baseCurrency string
	bridgeAsset  string
}

func NewOfframp(
	legs domain.LegRepository,
	fees domain.FeeRepository,
	rates domain.ExchangeRateRepository,
	feePercent decimal.Decimal,
	baseCurrency, bridgeAsset string,
	sagaMetrics *metrics.SagaMetrics,
) *Offramp {
	return &Offramp{
		recorder:     recorder{legs: legs, fees: fees, metrics: sagaMetrics},
		rates:        rates,
		feePercent:   feePercent,
		baseCurrency: domain.NormalizeCurrency(baseCurrency),
		bridgeAsset:  domain.NormalizeCurrency(bridgeAsset),
	}
}

func (o *Offramp) Execute(ctx context.Context, paymentID string, bridgeAmount decimal.Decimal, destinationCurrency string) (domain.LegResult, error) {
	if err := validAmount(bridgeAmount); err != nil {
		return nil, err
	}
	destination := domain.NormalizeCurrency(destinationCurrency)

	leg := &domain.Leg{
		ID:             domain.LegID(paymentID, domain.LegOfframp),
		PaymentID:      paymentID,
		Type:           domain.LegOfframp,
		SourceAmount:   bridgeAmount,
		SourceCurrency: o.bridgeAsset,
		TargetCurrency: destination,
	}

	rate, err := o.rates.GetLatestRate(ctx, o.baseCurrency, destination)
	switch {
	case errors.Is(err, domain.ErrRateNotFound):
		o.metrics.RecordRateLookup(destination, false)
		leg.ConvertedAmount = decimal.Zero
		leg.Rate = decimal.Zero
		leg.Status = domain.LegStatusFailed
		leg.Reason = fmt.Sprintf("no exchange rate for %s/%s", o.baseCurrency, destination)
		return o.persist(ctx, leg, nil)
	case err != nil:
		return nil, fmt.Errorf("lookup rate %s/%s: %w", o.baseCurrency, destination, err)
	}
	o.metrics.RecordRateLookup(destination, true)

	converted := domain.RoundToMinor(bridgeAmount.Mul(rate.Rate), destination)
	leg.ConvertedAmount = converted
	leg.Rate = rate.Rate
	leg.Status = domain.LegStatusCompleted

	fee := &domain.Fee{
		ID:        domain.FeeID(paymentID, domain.LegOfframp),
		PaymentID: paymentID,
		Leg:       domain.LegOfframp,
		Amount:    domain.RoundToMinor(converted.Mul(o.feePercent).Div(hundred), destination),
		Currency:  destination,
		CreatedAt: time.Now().UTC(),
	}

	return o.persist(ctx, leg, fee)
}
