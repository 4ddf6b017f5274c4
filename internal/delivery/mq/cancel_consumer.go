// Package mq feeds broker commands into the payment usecases.
package mq

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/eitanfeifel/stablecoin-exchange/internal/domain"
	"github.com/eitanfeifel/stablecoin-exchange/internal/usecase"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type CancelConsumer struct {
	subscriber     domain.SubscriberPort
	paymentUsecase usecase.PaymentUsecase
	topic          string
	groupID        string
}

func NewCancelConsumer(subscriber domain.SubscriberPort, paymentUsecase usecase.PaymentUsecase, topic, groupID string) *CancelConsumer {
	return &CancelConsumer{
		subscriber:     subscriber,
		paymentUsecase: paymentUsecase,
		topic:          topic,
		groupID:        groupID,
	}
}

// Run consumes cancel commands until ctx is done or the subscription ends.
func (c *CancelConsumer) Run(ctx context.Context) error {
	msgs, err := c.subscriber.Subscribe(ctx, c.topic, c.groupID)
	if err != nil {
		return err
	}
	slog.Info("cancel consumer started", "topic", c.topic, "group_id", c.groupID)

	for msg := range msgs {
		c.handle(ctx, msg)
	}
	return ctx.Err()
}

func (c *CancelConsumer) handle(ctx context.Context, msg domain.Message) {
	var cmd domain.CancelCommand
	if err := json.Unmarshal(msg.Value, &cmd); err != nil {
		slog.Warn("dropping malformed cancel command", "key", string(msg.Key), "error", err)
		return
	}
	if cmd.PaymentID == "" {
		cmd.PaymentID = string(msg.Key)
	}
	if cmd.PaymentID == "" {
		slog.Warn("dropping cancel command without payment id")
		return
	}

	err := c.paymentUsecase.CancelPayment(ctx, cmd.PaymentID, cmd.Reason)
	switch status.Code(err) {
	case codes.OK:
		slog.Info("cancel command delivered", "payment_id", cmd.PaymentID)
	case codes.NotFound:
		slog.Info("cancel command for a payment that is not running", "payment_id", cmd.PaymentID)
	default:
		slog.Error("failed to deliver cancel command", "payment_id", cmd.PaymentID, "error", err)
	}
}
