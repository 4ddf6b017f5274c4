package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type LegType string

const (
	LegFunding LegType = "FUNDING"
	LegMinting LegType = "MINTING"
	LegOfframp LegType = "OFFRAMP"
)

type LegStatus string

const (
	LegStatusCompleted   LegStatus = "COMPLETED"
	LegStatusFailed      LegStatus = "FAILED"
	LegStatusCompensated LegStatus = "COMPENSATED"
)

type Leg struct {
	ID              string
	PaymentID       string
	Type            LegType
	SourceAmount    decimal.Decimal
	ConvertedAmount decimal.Decimal
	Rate            decimal.Decimal
	SourceCurrency  string
	TargetCurrency  string
	Status          LegStatus
	Reason          string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// legNamespace scopes the name-based UUIDs derived for leg and fee rows.
var legNamespace = uuid.MustParse("6f1c2a9e-3d4b-5e8f-9a0b-1c2d3e4f5a6b")

// LegID derives the stable leg identifier for (payment, leg type), so a
// redelivered leg invocation lands on the same row.
func LegID(paymentID string, legType LegType) string {
	return uuid.NewSHA1(legNamespace, []byte(paymentID+":"+string(legType))).String()
}

// FeeID derives the stable fee identifier for (payment, leg type).
func FeeID(paymentID string, legType LegType) string {
	return uuid.NewSHA1(legNamespace, []byte(paymentID+":"+string(legType)+":fee")).String()
}

// LegResult is what a leg executor hands back to the orchestrator.
// It is either LegCompleted or LegFailed.
type LegResult interface {
	legResult()
}

type LegCompleted struct {
	LegID           string
	SourceAmount    decimal.Decimal
	ConvertedAmount decimal.Decimal
	Rate            decimal.Decimal
	Currency        string
}

type LegFailed struct {
	LegID  string
	Reason string
}

func (LegCompleted) legResult() {}
func (LegFailed) legResult()    {}

type LegRepository interface {
	// CreateLeg inserts the leg if no row with its ID exists yet and returns
	// whatever row is stored under that ID afterwards.
	CreateLeg(ctx context.Context, leg *Leg) (*Leg, error)
	GetLegByID(ctx context.Context, legID string) (*Leg, error)
	GetLegsByPaymentID(ctx context.Context, paymentID string) ([]*Leg, error)
	// UpdateLegStatus applies the change only if the leg is currently in from.
	// It returns ErrLegNotFound or ErrInvalidLegTransition otherwise.
	UpdateLegStatus(ctx context.Context, legID string, from, to LegStatus) error
}
