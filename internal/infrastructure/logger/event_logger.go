package logger

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/eitanfeifel/stablecoin-exchange/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PaymentEventLog is the audit row of one saga outcome. A payment has at most
// one row per stage.
type PaymentEventLog struct {
	ID                  uint   `gorm:"primaryKey"`
	PaymentID           string `gorm:"uniqueIndex:idx_payment_event_logs_once"`
	Status              string
	Stage               string `gorm:"uniqueIndex:idx_payment_event_logs_once"`
	Outcome             string
	SourceAmount        string
	DestinationAmount   string
	DestinationCurrency string
	Compensated         bool
	Timestamp           time.Time
}

type PGPaymentEventLogger struct {
	db *gorm.DB
}

func NewPGPaymentEventLogger(db *gorm.DB) *PGPaymentEventLogger {
	return &PGPaymentEventLogger{db: db}
}

func (l *PGPaymentEventLogger) PublishPaymentEvent(ctx context.Context, event domain.PaymentEvent) error {
	row := PaymentEventLog{
		PaymentID:           event.PaymentID,
		Status:              event.Status,
		Stage:               event.Stage,
		Outcome:             event.Outcome,
		SourceAmount:        event.SourceAmount,
		DestinationAmount:   event.DestinationAmount,
		DestinationCurrency: event.DestinationCurrency,
		Compensated:         event.Compensated,
		Timestamp:           event.OccurredAt,
	}
	// A retried publish lands on the row already written.
	return l.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "payment_id"}, {Name: "stage"}},
			DoNothing: true,
		}).
		Create(&row).Error
}

// SlogPaymentEventLogger only writes the outcome to the process log.
type SlogPaymentEventLogger struct{}

func (SlogPaymentEventLogger) PublishPaymentEvent(_ context.Context, event domain.PaymentEvent) error {
	slog.Info("payment outcome",
		"payment_id", event.PaymentID,
		"status", event.Status,
		"stage", event.Stage,
		"outcome", event.Outcome,
		"compensated", event.Compensated,
	)
	return nil
}

// FanOut delivers every event to each publisher and joins their errors.
type FanOut []domain.PaymentEventPublisher

func (f FanOut) PublishPaymentEvent(ctx context.Context, event domain.PaymentEvent) error {
	var errs []error
	for _, p := range f {
		if err := p.PublishPaymentEvent(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
