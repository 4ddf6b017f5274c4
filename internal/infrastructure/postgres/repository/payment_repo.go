package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/eitanfeifel/stablecoin-exchange/internal/domain"
	"github.com/eitanfeifel/stablecoin-exchange/internal/infrastructure/postgres/mappers"
	"github.com/eitanfeifel/stablecoin-exchange/internal/infrastructure/postgres/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type DefaultPaymentRepository struct {
	DB *gorm.DB
}

func NewDefaultPaymentRepository(db *gorm.DB) *DefaultPaymentRepository {
	return &DefaultPaymentRepository{DB: db}
}

func (r *DefaultPaymentRepository) CreatePayment(ctx context.Context, payment *domain.Payment) (*domain.Payment, error) {
	model := mappers.ToGORMPayment(payment)
	if err := r.DB.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(model).Error; err != nil {
		return nil, err
	}
	return r.GetPaymentByID(ctx, payment.ID)
}

func (r *DefaultPaymentRepository) GetPaymentByID(ctx context.Context, paymentID string) (*domain.Payment, error) {
	var model models.PaymentModel
	err := r.DB.WithContext(ctx).First(&model, "id = ?", paymentID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	return mappers.ToDomainPayment(&model), nil
}

// UpdatePaymentStatus only touches rows sitting in one of the allowed
// previous statuses, so concurrent writers cannot move a payment backwards.
func (r *DefaultPaymentRepository) UpdatePaymentStatus(ctx context.Context, paymentID string, status domain.PaymentStatus) error {
	res := r.DB.WithContext(ctx).
		Model(&models.PaymentModel{}).
		Where("id = ? AND status IN ?", paymentID, status.PreviousStatuses()).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}

	current, err := r.GetPaymentByID(ctx, paymentID)
	if err != nil {
		return err
	}
	if current.Status == status {
		return nil
	}
	return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidStatusTransition, current.Status, status)
}
