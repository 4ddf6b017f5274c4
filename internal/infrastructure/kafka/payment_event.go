package kafka

import (
	"context"
	"encoding/json"

	"github.com/eitanfeifel/stablecoin-exchange/internal/domain"
)

// PaymentEventPublisher writes saga outcomes keyed by payment ID, so all
// events of one payment land on the same partition.
type PaymentEventPublisher struct {
	publisher domain.PublisherPort
	topic     string
}

func NewPaymentEventPublisher(publisher domain.PublisherPort, topic string) *PaymentEventPublisher {
	return &PaymentEventPublisher{publisher: publisher, topic: topic}
}

func (p *PaymentEventPublisher) PublishPaymentEvent(ctx context.Context, event domain.PaymentEvent) error {
	v, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return p.publisher.Publish(ctx, p.topic, domain.Message{Key: []byte(event.PaymentID), Value: v})
}
