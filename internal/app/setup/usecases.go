package setup

import (
	"github.com/eitanfeifel/stablecoin-exchange/internal/usecase"
)

type UseCases struct {
	PaymentUsecase      usecase.PaymentUsecase
	ExchangeRateUsecase usecase.ExchangeRateUsecase
}

func InitializeUseCases(deps *Dependencies, sagaSystem *SagaSystem) *UseCases {
	repos := deps.Repositories
	base := deps.Config.Currency.Base

	return &UseCases{
		PaymentUsecase: usecase.NewDefaultPaymentUsecase(
			repos.PaymentRepo,
			repos.LegRepo,
			repos.FeeRepo,
			sagaSystem.Engine,
			base,
		),
		ExchangeRateUsecase: usecase.NewDefaultExchangeRateUsecase(repos.RateRepo, base),
	}
}
