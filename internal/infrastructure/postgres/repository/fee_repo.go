package repository

import (
	"context"

	"github.com/eitanfeifel/stablecoin-exchange/internal/domain"
	"github.com/eitanfeifel/stablecoin-exchange/internal/infrastructure/postgres/mappers"
	"github.com/eitanfeifel/stablecoin-exchange/internal/infrastructure/postgres/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type DefaultFeeRepository struct {
	DB *gorm.DB
}

func NewDefaultFeeRepository(db *gorm.DB) *DefaultFeeRepository {
	return &DefaultFeeRepository{DB: db}
}

func (r *DefaultFeeRepository) CreateFee(ctx context.Context, fee *domain.Fee) (*domain.Fee, error) {
	model := mappers.ToGORMFee(fee)
	if err := r.DB.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(model).Error; err != nil {
		return nil, err
	}

	var stored models.FeeModel
	if err := r.DB.WithContext(ctx).First(&stored, "id = ?", fee.ID).Error; err != nil {
		return nil, err
	}
	return mappers.ToDomainFee(&stored), nil
}

func (r *DefaultFeeRepository) GetFeesByPaymentID(ctx context.Context, paymentID string) ([]*domain.Fee, error) {
	var feeModels []models.FeeModel
	if err := r.DB.WithContext(ctx).
		Where("payment_id = ?", paymentID).
		Order("created_at ASC").
		Find(&feeModels).Error; err != nil {
		return nil, err
	}

	fees := make([]*domain.Fee, len(feeModels))
	for i := range feeModels {
		fees[i] = mappers.ToDomainFee(&feeModels[i])
	}
	return fees, nil
}
