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

type DefaultExchangeRateRepository struct {
	DB *gorm.DB
}

func NewDefaultExchangeRateRepository(db *gorm.DB) *DefaultExchangeRateRepository {
	return &DefaultExchangeRateRepository{DB: db}
}

func (r *DefaultExchangeRateRepository) GetLatestRate(ctx context.Context, base, quote string) (*domain.ExchangeRate, error) {
	var model models.ExchangeRateModel
	err := r.DB.WithContext(ctx).
		Where("base = ? AND quote = ?", domain.NormalizeCurrency(base), domain.NormalizeCurrency(quote)).
		Order("effective_date DESC").
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrRateNotFound
	}
	if err != nil {
		return nil, err
	}
	return mappers.ToDomainExchangeRate(&model), nil
}

func (r *DefaultExchangeRateRepository) UpsertRates(ctx context.Context, rates []*domain.ExchangeRate) error {
	if len(rates) == 0 {
		return nil
	}

	now := time.Now().UTC()
	rateModels := make([]*models.ExchangeRateModel, len(rates))
	for i, rate := range rates {
		rateModels[i] = mappers.ToGORMExchangeRate(rate)
		rateModels[i].UpdatedAt = now
	}

	return r.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "base"}, {Name: "quote"}, {Name: "effective_date"}},
			DoUpdates: clause.AssignmentColumns([]string{"rate", "updated_at"}),
		}).
		CreateInBatches(rateModels, 500).Error
}
