package mappers

import (
	"github.com/eitanfeifel/stablecoin-exchange/internal/domain"
	"github.com/eitanfeifel/stablecoin-exchange/internal/infrastructure/postgres/models"
)

func ToDomainPayment(model *models.PaymentModel) *domain.Payment {
	return &domain.Payment{
		ID:                  model.ID,
		Amount:              model.Amount,
		SourceCurrency:      model.SourceCurrency,
		DestinationCurrency: model.DestinationCurrency,
		Status:              model.Status,
		CreatedAt:           model.CreatedAt,
		UpdatedAt:           model.UpdatedAt,
	}
}

func ToGORMPayment(payment *domain.Payment) *models.PaymentModel {
	return &models.PaymentModel{
		ID:                  payment.ID,
		Amount:              payment.Amount,
		SourceCurrency:      payment.SourceCurrency,
		DestinationCurrency: payment.DestinationCurrency,
		Status:              payment.Status,
		CreatedAt:           payment.CreatedAt,
		UpdatedAt:           payment.UpdatedAt,
	}
}

func ToDomainLeg(model *models.LegModel) *domain.Leg {
	return &domain.Leg{
		ID:              model.ID,
		PaymentID:       model.PaymentID,
		Type:            model.Type,
		SourceAmount:    model.SourceAmount,
		ConvertedAmount: model.ConvertedAmount,
		Rate:            model.Rate,
		SourceCurrency:  model.SourceCurrency,
		TargetCurrency:  model.TargetCurrency,
		Status:          model.Status,
		Reason:          model.Reason,
		CreatedAt:       model.CreatedAt,
		UpdatedAt:       model.UpdatedAt,
	}
}

func ToGORMLeg(leg *domain.Leg) *models.LegModel {
	return &models.LegModel{
		ID:              leg.ID,
		PaymentID:       leg.PaymentID,
		Type:            leg.Type,
		SourceAmount:    leg.SourceAmount,
		ConvertedAmount: leg.ConvertedAmount,
		Rate:            leg.Rate,
		SourceCurrency:  leg.SourceCurrency,
		TargetCurrency:  leg.TargetCurrency,
		Status:          leg.Status,
		Reason:          leg.Reason,
		CreatedAt:       leg.CreatedAt,
		UpdatedAt:       leg.UpdatedAt,
	}
}

func ToDomainFee(model *models.FeeModel) *domain.Fee {
	return &domain.Fee{
		ID:        model.ID,
		PaymentID: model.PaymentID,
		Leg:       model.Leg,
		Amount:    model.Amount,
		Currency:  model.Currency,
		CreatedAt: model.CreatedAt,
	}
}

func ToGORMFee(fee *domain.Fee) *models.FeeModel {
	return &models.FeeModel{
		ID:        fee.ID,
		PaymentID: fee.PaymentID,
		Leg:       fee.Leg,
		Amount:    fee.Amount,
		Currency:  fee.Currency,
		CreatedAt: fee.CreatedAt,
	}
}

func ToDomainExchangeRate(model *models.ExchangeRateModel) *domain.ExchangeRate {
	return &domain.ExchangeRate{
		Base:          model.Base,
		Quote:         model.Quote,
		Rate:          model.Rate,
		EffectiveDate: model.EffectiveDate,
	}
}

func ToGORMExchangeRate(rate *domain.ExchangeRate) *models.ExchangeRateModel {
	return &models.ExchangeRateModel{
		Base:          domain.NormalizeCurrency(rate.Base),
		Quote:         domain.NormalizeCurrency(rate.Quote),
		Rate:          rate.Rate,
		EffectiveDate: rate.EffectiveDate,
	}
}
