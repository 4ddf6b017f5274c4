package domain

import (
	"context"
	"time"
)

type RunStatus string

const (
	RunRunning   RunStatus = "RUNNING"
	RunCompleted RunStatus = "COMPLETED"
	RunFailed    RunStatus = "FAILED"
)

// WorkflowRun is the durable header of one orchestration, keyed by a
// caller-derived key such as "payment-<id>".
type WorkflowRun struct {
	Key       string
	RunID     string
	Type      string
	Input     []byte
	Status    RunStatus
	Result    string
	Error     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type EventKind string

const (
	EventActivity   EventKind = "ACTIVITY"
	EventSideEffect EventKind = "SIDE_EFFECT"
	EventSignal     EventKind = "SIGNAL"
)

// HistoryEvent is one recorded fact of a run. Activity and side effect events
// are unique per (Key, Kind, Name); signals may repeat.
type HistoryEvent struct {
	Key       string
	Kind      EventKind
	Name      string
	Payload   []byte
	CreatedAt time.Time
}

type WorkflowStore interface {
	// CreateRun returns ErrWorkflowAlreadyStarted when the key is taken.
	CreateRun(ctx context.Context, run *WorkflowRun) error
	GetRun(ctx context.Context, key string) (*WorkflowRun, error)
	CloseRun(ctx context.Context, key string, status RunStatus, result, errMsg string) error
	ListOpenRuns(ctx context.Context) ([]*WorkflowRun, error)
	AppendEvent(ctx context.Context, event *HistoryEvent) error
	// ListEvents returns the run's events in append order.
	ListEvents(ctx context.Context, key string) ([]*HistoryEvent, error)
}
