package models

import (
	"time"

	"github.com/eitanfeifel/stablecoin-exchange/internal/domain"
	"github.com/shopspring/decimal"
)

type LegModel struct {
	ID              string           `gorm:"primaryKey;type:uuid"`
	PaymentID       string           `gorm:"not null;uniqueIndex:idx_leg_payment_type"`
	Type            domain.LegType   `gorm:"size:16;not null;uniqueIndex:idx_leg_payment_type"`
	SourceAmount    decimal.Decimal  `gorm:"type:numeric(36,18);not null"`
	ConvertedAmount decimal.Decimal  `gorm:"type:numeric(36,18);not null"`
	Rate            decimal.Decimal  `gorm:"type:numeric(36,18);not null"`
	SourceCurrency  string           `gorm:"size:8;not null"`
	TargetCurrency  string           `gorm:"size:8;not null"`
	Status          domain.LegStatus `gorm:"size:16;not null"`
	Reason          string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type FeeModel struct {
	ID        string          `gorm:"primaryKey;type:uuid"`
	PaymentID string          `gorm:"not null;index"`
	Leg       domain.LegType  `gorm:"size:16;not null"`
	Amount    decimal.Decimal `gorm:"type:numeric(36,18);not null"`
	Currency  string          `gorm:"size:8;not null"`
	CreatedAt time.Time
}
