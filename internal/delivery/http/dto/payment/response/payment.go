package response

import "time"

type StartPaymentResponse struct {
	PaymentID   string `json:"payment_id"`
	WorkflowKey string `json:"workflow_key"`
	RunID       string `json:"run_id"`
}

type PaymentResponse struct {
	ID                  string    `json:"id"`
	Amount              string    `json:"amount"`
	SourceCurrency      string    `json:"source_currency"`
	DestinationCurrency string    `json:"destination_currency"`
	Status              string    `json:"status"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

type LegResponse struct {
	ID              string `json:"id"`
	Type            string `json:"type"`
	SourceAmount    string `json:"source_amount"`
	ConvertedAmount string `json:"converted_amount"`
	Rate            string `json:"rate"`
	SourceCurrency  string `json:"source_currency"`
	TargetCurrency  string `json:"target_currency"`
	Status          string `json:"status"`
	Reason          string `json:"reason,omitempty"`
}

type FeeResponse struct {
	ID       string `json:"id"`
	Leg      string `json:"leg"`
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

type PaymentDetailsResponse struct {
	Payment PaymentResponse `json:"payment"`
	Legs    []LegResponse   `json:"legs"`
	Fees    []FeeResponse   `json:"fees"`
}

type StageResponse struct {
	PaymentID       string `json:"payment_id"`
	Stage           string `json:"stage"`
	CancelRequested bool   `json:"cancel_requested"`
	CancelReason    string `json:"cancel_reason,omitempty"`
	Outcome         string `json:"outcome,omitempty"`
}

type RateResponse struct {
	Base          string `json:"base"`
	Quote         string `json:"quote"`
	Rate          string `json:"rate"`
	EffectiveDate string `json:"effective_date"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
