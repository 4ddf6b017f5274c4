package domain

import (
	"context"
	"time"
)

type Message struct {
	Key   []byte
	Value []byte
}

type PublisherPort interface {
	Publish(ctx context.Context, topic string, msgs ...Message) error
}

type SubscriberPort interface {
	Subscribe(ctx context.Context, topic, groupID string) (<-chan Message, error)
}

// PaymentEvent is emitted once per saga when it reaches a terminal stage.
type PaymentEvent struct {
	PaymentID           string    `json:"payment_id"`
	Status              string    `json:"status"`
	Stage               string    `json:"stage"`
	Outcome             string    `json:"outcome"`
	SourceAmount        string    `json:"source_amount"`
	DestinationAmount   string    `json:"destination_amount,omitempty"`
	DestinationCurrency string    `json:"destination_currency"`
	Compensated         bool      `json:"compensated"`
	OccurredAt          time.Time `json:"occurred_at"`
}

type PaymentEventPublisher interface {
	PublishPaymentEvent(ctx context.Context, event PaymentEvent) error
}

// CancelCommand asks the running saga of PaymentID to stop at its checkpoint.
type CancelCommand struct {
	PaymentID string `json:"payment_id"`
	Reason    string `json:"reason"`
}
