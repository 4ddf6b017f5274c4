package request

import "github.com/shopspring/decimal"

type StartPaymentRequest struct {
	PaymentID           string          `json:"payment_id,omitempty"`
	Amount              decimal.Decimal `json:"amount"`
	DestinationCurrency string          `json:"destination_currency"`
}

type CancelPaymentRequest struct {
	Reason string `json:"reason,omitempty"`
}
