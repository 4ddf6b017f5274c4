package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type ExchangeRateModel struct {
	Base          string          `gorm:"primaryKey;size:8"`
	Quote         string          `gorm:"primaryKey;size:8"`
	EffectiveDate time.Time       `gorm:"primaryKey;type:date"`
	Rate          decimal.Decimal `gorm:"type:numeric(36,18);not null"`
	UpdatedAt     time.Time
}
