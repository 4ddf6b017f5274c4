// Package leg holds the three conversion steps of a payment and the
// compensation of the funding step. Every executor derives its row IDs from
// (payment, leg type) so a redelivered call lands on the rows it already wrote.
package leg

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/eitanfeifel/stablecoin-exchange/internal/domain"
	"github.com/eitanfeifel/stablecoin-exchange/internal/infrastructure/metrics"
	"github.com/shopspring/decimal"
)

type recorder struct {
	legs    domain.LegRepository
	fees    domain.FeeRepository
	metrics *metrics.SagaMetrics
}

// persist writes the leg first and then, if the stored leg is COMPLETED, its
// fee. The result is built from the stored row so a redelivery reports the
// outcome that was recorded the first time.
func (r *recorder) persist(ctx context.Context, leg *domain.Leg, fee *domain.Fee) (domain.LegResult, error) {
	stored, err := r.legs.CreateLeg(ctx, leg)
	if err != nil {
		return nil, fmt.Errorf("create %s leg: %w", leg.Type, err)
	}

	if stored.Status == domain.LegStatusCompleted && fee != nil {
		storedFee, err := r.fees.CreateFee(ctx, fee)
		if err != nil {
			return nil, fmt.Errorf("create %s fee: %w", leg.Type, err)
		}
		r.metrics.RecordFee(string(stored.Type), storedFee.Currency, storedFee.Amount.InexactFloat64())
	}

	r.metrics.RecordLeg(string(stored.Type), string(stored.Status), stored.TargetCurrency, stored.ConvertedAmount.InexactFloat64())
	slog.Info("leg recorded",
		"payment_id", stored.PaymentID,
		"leg", stored.Type,
		"leg_id", stored.ID,
		"status", stored.Status,
		"converted", stored.ConvertedAmount.String(),
		"rate", stored.Rate.String(),
	)

	return resultOf(stored), nil
}

func resultOf(leg *domain.Leg) domain.LegResult {
	if leg.Status == domain.LegStatusFailed {
		return domain.LegFailed{LegID: leg.ID, Reason: leg.Reason}
	}
	return domain.LegCompleted{
		LegID:           leg.ID,
		SourceAmount:    leg.SourceAmount,
		ConvertedAmount: leg.ConvertedAmount,
		Rate:            leg.Rate,
		Currency:        leg.TargetCurrency,
	}
}

func validAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: got %s", domain.ErrInvalidAmount, amount.String())
	}
	return nil
}
