package models

import (
	"time"

	"github.com/eitanfeifel/stablecoin-exchange/internal/domain"
	"github.com/shopspring/decimal"
)

type PaymentModel struct {
	ID                  string               `gorm:"primaryKey"`
	Amount              decimal.Decimal      `gorm:"type:numeric(36,18);not null"`
	SourceCurrency      string               `gorm:"size:8;not null"`
	DestinationCurrency string               `gorm:"size:8;not null"`
	Status              domain.PaymentStatus `gorm:"size:16;not null;index"`
	CreatedAt           time.Time
	UpdatedAt           time.Time
}
