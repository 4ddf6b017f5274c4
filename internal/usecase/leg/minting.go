package leg

import (
	"context"
	"time"

	"github.com/eitanfeifel/stablecoin-exchange/internal/domain"
	"github.com/eitanfeifel/stablecoin-exchange/internal/infrastructure/metrics"
	"github.com/shopspring/decimal"
)

// FaultPlan forces simulated leg failures. Only tests and local runs set it.
type FaultPlan struct {
	FailMinting bool
}

const mintingFaultReason = "minting rejected by fault plan"

// Minting converts the source amount into the bridge asset at 1:1.
type Minting struct {
	recorder
	flatFee        decimal.Decimal
	sourceCurrency string
	bridgeAsset    string
	faults         FaultPlan
}

type MintingOption func(*Minting)

func WithFaultPlan(plan FaultPlan) MintingOption {
	return func(m *Minting) {
		m.faults = plan
	}
}

func NewMinting(
	legs domain.LegRepository,
	fees domain.FeeRepository,
	flatFee decimal.Decimal,
	sourceCurrency, bridgeAsset string,
	sagaMetrics *metrics.SagaMetrics,
	opts ...MintingOption,
) *Minting {
	m := &Minting{
		recorder:       recorder{legs: legs, fees: fees, metrics: sagaMetrics},
		flatFee:        flatFee,
		sourceCurrency: domain.NormalizeCurrency(sourceCurrency),
		bridgeAsset:    domain.NormalizeCurrency(bridgeAsset),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Minting) Execute(ctx context.Context, paymentID string, amount decimal.Decimal, destinationCurrency string) (domain.LegResult, error) {
	if err := validAmount(amount); err != nil {
		return nil, err
	}

	leg := &domain.Leg{
		ID:             domain.LegID(paymentID, domain.LegMinting),
		PaymentID:      paymentID,
		Type:           domain.LegMinting,
		SourceAmount:   amount,
		SourceCurrency: m.sourceCurrency,
		TargetCurrency: m.bridgeAsset,
	}

	if m.faults.FailMinting {
		leg.ConvertedAmount = decimal.Zero
		leg.Rate = decimal.Zero
		leg.Status = domain.LegStatusFailed
		leg.Reason = mintingFaultReason
		return m.persist(ctx, leg, nil)
	}

	leg.ConvertedAmount = amount
	leg.Rate = decimal.NewFromInt(1)
	leg.Status = domain.LegStatusCompleted
	fee := &domain.Fee{
		ID:        domain.FeeID(paymentID, domain.LegMinting),
		PaymentID: paymentID,
		Leg:       domain.LegMinting,
		Amount:    domain.RoundToMinor(m.flatFee, m.sourceCurrency),
		Currency:  m.sourceCurrency,
		CreatedAt: time.Now().UTC(),
	}

	return m.persist(ctx, leg, fee)
}
