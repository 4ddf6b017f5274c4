package models

import (
	"time"

	"github.com/eitanfeifel/stablecoin-exchange/internal/domain"
)

type WorkflowRunModel struct {
	Key       string           `gorm:"primaryKey"`
	RunID     string           `gorm:"not null"`
	Type      string           `gorm:"not null"`
	Input     []byte           `gorm:"type:jsonb"`
	Status    domain.RunStatus `gorm:"size:16;not null;index"`
	Result    string
	Error     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// WorkflowEventModel is one journal entry. Seq keeps append order.
type WorkflowEventModel struct {
	Seq       int64            `gorm:"primaryKey;autoIncrement"`
	Key       string           `gorm:"not null;index"`
	Kind      domain.EventKind `gorm:"size:16;not null"`
	Name      string           `gorm:"not null"`
	Payload   []byte           `gorm:"type:bytea"`
	CreatedAt time.Time
}
