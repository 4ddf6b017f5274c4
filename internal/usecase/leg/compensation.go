package leg

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/eitanfeifel/stablecoin-exchange/internal/domain"
	"github.com/eitanfeifel/stablecoin-exchange/internal/infrastructure/metrics"
)

// Compensation reverses a completed funding leg. Fees are not refunded.
type Compensation struct {
	legs    domain.LegRepository
	metrics *metrics.SagaMetrics
}

func NewCompensation(legs domain.LegRepository, sagaMetrics *metrics.SagaMetrics) *Compensation {
	return &Compensation{legs: legs, metrics: sagaMetrics}
}

// Compensate moves the funding leg COMPLETED -> COMPENSATED. An already
// compensated leg is left alone. Errors wrapping
// domain.ErrCompensationNotAllowed mean the saga asked for something that
// can never succeed.
func (c *Compensation) Compensate(ctx context.Context, fundingLegID string) error {
	leg, err := c.legs.GetLegByID(ctx, fundingLegID)
	if errors.Is(err, domain.ErrLegNotFound) {
		return fmt.Errorf("%w: funding leg %s does not exist", domain.ErrCompensationNotAllowed, fundingLegID)
	}
	if err != nil {
		return fmt.Errorf("load funding leg %s: %w", fundingLegID, err)
	}
	if leg.Type != domain.LegFunding {
		return fmt.Errorf("%w: leg %s is %s, not FUNDING", domain.ErrCompensationNotAllowed, leg.ID, leg.Type)
	}

	switch leg.Status {
	case domain.LegStatusCompensated:
		return nil
	case domain.LegStatusCompleted:
	default:
		return fmt.Errorf("%w: funding leg %s is %s", domain.ErrCompensationNotAllowed, leg.ID, leg.Status)
	}

	err = c.legs.UpdateLegStatus(ctx, leg.ID, domain.LegStatusCompleted, domain.LegStatusCompensated)
	if errors.Is(err, domain.ErrInvalidLegTransition) {
		// lost a race with another delivery of the same compensation
		current, getErr := c.legs.GetLegByID(ctx, leg.ID)
		if getErr == nil && current.Status == domain.LegStatusCompensated {
			return nil
		}
		return fmt.Errorf("%w: funding leg %s changed concurrently", domain.ErrCompensationNotAllowed, leg.ID)
	}
	if err != nil {
		return fmt.Errorf("compensate funding leg %s: %w", leg.ID, err)
	}

	c.metrics.RecordCompensation(string(leg.Type))
	slog.Info("funding leg compensated", "payment_id", leg.PaymentID, "leg_id", leg.ID)

	return nil
}
