package saga

import (
	"sync"

	"github.com/eitanfeifel/stablecoin-exchange/internal/domain"
	"github.com/shopspring/decimal"
)

type Stage string

const (
	StageStarting              Stage = "STARTING"
	StageCreatingPayment       Stage = "CREATING_PAYMENT"
	StageFundingStarting       Stage = "FUNDING_STARTING"
	StageFundingRunning        Stage = "FUNDING_RUNNING"
	StageFailedFunding         Stage = "FAILED_FUNDING"
	StageCancelledAfterFunding Stage = "CANCELLED_AFTER_FUNDING"
	StageMintingStarting       Stage = "MINTING_STARTING"
	StageMintingRunning        Stage = "MINTING_RUNNING"
	StageFailedMinting         Stage = "FAILED_MINTING"
	StageOfframpStarting       Stage = "OFFRAMP_STARTING"
	StageOfframpRunning        Stage = "OFFRAMP_RUNNING"
	StageFailedOfframp         Stage = "FAILED_OFFRAMP"
	StageCompleted             Stage = "COMPLETED"
)

func (s Stage) IsTerminal() bool {
	switch s {
	case StageFailedFunding, StageCancelledAfterFunding, StageFailedMinting, StageFailedOfframp, StageCompleted:
		return true
	}
	return false
}

// Snapshot is what the stage query returns.
type Snapshot struct {
	PaymentID       string `json:"payment_id"`
	Stage           Stage  `json:"stage"`
	CancelRequested bool   `json:"cancel_requested"`
	CancelReason    string `json:"cancel_reason,omitempty"`
	Outcome         string `json:"outcome,omitempty"`
}

// SagaState is the orchestrator's live state. It is rebuilt by replay, so
// nothing here is persisted on its own.
type SagaState struct {
	mu   sync.RWMutex
	snap Snapshot
}

func newSagaState(paymentID string) *SagaState {
	return &SagaState{snap: Snapshot{PaymentID: paymentID, Stage: StageStarting}}
}

func (s *SagaState) setStage(stage Stage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Stage = stage
}

func (s *SagaState) finish(stage Stage, outcome string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Stage = stage
	s.snap.Outcome = outcome
}

func (s *SagaState) markCancelled(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.CancelRequested = true
	s.snap.CancelReason = reason
}

func (s *SagaState) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Input starts one saga.
type Input struct {
	PaymentID           string          `json:"payment_id"`
	Amount              decimal.Decimal `json:"amount"`
	DestinationCurrency string          `json:"destination_currency"`
}

// legOutcome is the journal form of domain.LegResult.
type legOutcome struct {
	Completed *domain.LegCompleted `json:"completed,omitempty"`
	Failed    *domain.LegFailed    `json:"failed,omitempty"`
}

func toOutcome(res domain.LegResult) legOutcome {
	switch r := res.(type) {
	case domain.LegCompleted:
		return legOutcome{Completed: &r}
	case domain.LegFailed:
		return legOutcome{Failed: &r}
	}
	return legOutcome{}
}

func (o legOutcome) result() domain.LegResult {
	if o.Completed != nil {
		return *o.Completed
	}
	if o.Failed != nil {
		return *o.Failed
	}
	return nil
}

type cancelDecision struct {
	Cancelled bool   `json:"cancelled"`
	Reason    string `json:"reason,omitempty"`
}
