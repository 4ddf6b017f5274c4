package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentCreated    PaymentStatus = "CREATED"
	PaymentInProgress PaymentStatus = "IN_PROGRESS"
	PaymentCompleted  PaymentStatus = "COMPLETED"
	PaymentFailed     PaymentStatus = "FAILED"
)

// IsTerminal reports whether no further transition is allowed.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentCompleted || s == PaymentFailed
}

// CanTransition enforces CREATED -> IN_PROGRESS -> {COMPLETED | FAILED}.
func (s PaymentStatus) CanTransition(to PaymentStatus) bool {
	switch s {
	case PaymentCreated:
		return to == PaymentInProgress
	case PaymentInProgress:
		return to == PaymentCompleted || to == PaymentFailed
	default:
		return false
	}
}

// PreviousStatuses returns the statuses a payment may be in right before moving to s.
func (s PaymentStatus) PreviousStatuses() []PaymentStatus {
	switch s {
	case PaymentInProgress:
		return []PaymentStatus{PaymentCreated}
	case PaymentCompleted, PaymentFailed:
		return []PaymentStatus{PaymentInProgress}
	default:
		return nil
	}
}

type Payment struct {
	ID                  string
	Amount              decimal.Decimal
	SourceCurrency      string
	DestinationCurrency string
	Status              PaymentStatus
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// PaymentDetails is the full persisted picture of one payment.
type PaymentDetails struct {
	Payment *Payment
	Legs    []*Leg
	Fees    []*Fee
}

func (d *PaymentDetails) Leg(legType LegType) *Leg {
	for _, leg := range d.Legs {
		if leg.Type == legType {
			return leg
		}
	}
	return nil
}

type PaymentRepository interface {
	// CreatePayment inserts the payment if absent and returns the stored row.
	CreatePayment(ctx context.Context, payment *Payment) (*Payment, error)
	GetPaymentByID(ctx context.Context, paymentID string) (*Payment, error)
	// UpdatePaymentStatus moves the payment forward. Re-applying the current
	// status is a no-op; any other non-forward move returns ErrInvalidStatusTransition.
	UpdatePaymentStatus(ctx context.Context, paymentID string, status PaymentStatus) error
}
