package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type Fee struct {
	ID        string
	PaymentID string
	Leg       LegType
	Amount    decimal.Decimal
	Currency  string
	CreatedAt time.Time
}

type FeeRepository interface {
	// CreateFee is insert-if-absent keyed by fee ID.
	CreateFee(ctx context.Context, fee *Fee) (*Fee, error)
	GetFeesByPaymentID(ctx context.Context, paymentID string) ([]*Fee, error)
}
