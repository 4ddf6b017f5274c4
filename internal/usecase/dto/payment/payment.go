package paymentdto

import (
	"time"

	"github.com/shopspring/decimal"
)

type StartPaymentInput struct {
	// PaymentID is optional; a UUID is generated when empty.
	PaymentID           string
	Amount              decimal.Decimal
	DestinationCurrency string
}

type StartPaymentOutput struct {
	PaymentID   string
	WorkflowKey string
	RunID       string
}

type PaymentOutput struct {
	ID                  string
	Amount              decimal.Decimal
	SourceCurrency      string
	DestinationCurrency string
	Status              string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

type LegOutput struct {
	ID              string
	Type            string
	SourceAmount    decimal.Decimal
	ConvertedAmount decimal.Decimal
	Rate            decimal.Decimal
	SourceCurrency  string
	TargetCurrency  string
	Status          string
	Reason          string
}

type FeeOutput struct {
	ID       string
	Leg      string
	Amount   decimal.Decimal
	Currency string
}

type PaymentDetailsOutput struct {
	Payment PaymentOutput
	Legs    []LegOutput
	Fees    []FeeOutput
}

type StageOutput struct {
	PaymentID       string
	Stage           string
	CancelRequested bool
	CancelReason    string
	Outcome         string
}
