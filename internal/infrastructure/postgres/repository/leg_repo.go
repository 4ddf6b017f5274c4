package repository

import (
	"context"
	"errors"
	"time"

	"github.com/eitanfeifel/stablecoin-exchange/internal/domain"
	"github.com/eitanfeifel/stablecoin-exchange/internal/infrastructure/postgres/mappers"
	"github.com/eitanfeifel/stablecoin-exchange/internal/infrastructure/postgres/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type DefaultLegRepository struct {
	DB *gorm.DB
}

func NewDefaultLegRepository(db *gorm.DB) *DefaultLegRepository {
	return &DefaultLegRepository{DB: db}
}

func (r *DefaultLegRepository) CreateLeg(ctx context.Context, leg *domain.Leg) (*domain.Leg, error) {
	model := mappers.ToGORMLeg(leg)
	if err := r.DB.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(model).Error; err != nil {
		return nil, err
	}
	return r.GetLegByID(ctx, leg.ID)
}

func (r *DefaultLegRepository) GetLegByID(ctx context.Context, legID string) (*domain.Leg, error) {
	var model models.LegModel
	err := r.DB.WithContext(ctx).First(&model, "id = ?", legID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrLegNotFound
	}
	if err != nil {
		return nil, err
	}
	return mappers.ToDomainLeg(&model), nil
}

func (r *DefaultLegRepository) GetLegsByPaymentID(ctx context.Context, paymentID string) ([]*domain.Leg, error) {
	var legModels []models.LegModel
	if err := r.DB.WithContext(ctx).
		Where("payment_id = ?", paymentID).
		Order("created_at ASC").
		Find(&legModels).Error; err != nil {
		return nil, err
	}

	legs := make([]*domain.Leg, len(legModels))
	for i := range legModels {
		legs[i] = mappers.ToDomainLeg(&legModels[i])
	}
	return legs, nil
}

func (r *DefaultLegRepository) UpdateLegStatus(ctx context.Context, legID string, from, to domain.LegStatus) error {
	res := r.DB.WithContext(ctx).
		Model(&models.LegModel{}).
		Where("id = ? AND status = ?", legID, from).
		Updates(map[string]interface{}{
			"status":     to,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}

	if _, err := r.GetLegByID(ctx, legID); err != nil {
		return err
	}
	return domain.ErrInvalidLegTransition
}
