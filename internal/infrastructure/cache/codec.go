package cache

import (
	"encoding/json"

	"github.com/eitanfeifel/stablecoin-exchange/internal/domain"
	"github.com/shopspring/decimal"
)

func decodeRate(raw []byte) (*domain.ExchangeRate, error) {
	var cached cachedRate
	if err := json.Unmarshal(raw, &cached); err != nil {
		return nil, err
	}
	rate, err := decimal.NewFromString(cached.Rate)
	if err != nil {
		return nil, err
	}
	return &domain.ExchangeRate{
		Base:          cached.Base,
		Quote:         cached.Quote,
		Rate:          rate,
		EffectiveDate: cached.EffectiveDate,
	}, nil
}
