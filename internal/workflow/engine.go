package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/eitanfeifel/stablecoin-exchange/internal/domain"
	"github.com/eitanfeifel/stablecoin-exchange/internal/infrastructure/metrics"
	"github.com/jaevor/go-nanoid"
)

// Func is a workflow body. It must be deterministic with respect to its
// recorded history: every external effect goes through ExecuteActivity and
// every decision that depends on live state goes through SideEffect.
type Func func(wctx *Context, input []byte) (string, error)

// Engine runs workflows durably: each run is keyed by a stable key, its
// activity results are journaled in a WorkflowStore, and open runs are
// resumed from that journal after a restart.
type Engine struct {
	store     domain.WorkflowStore
	policy    RetryPolicy
	metrics   *metrics.SagaMetrics
	workflows map[string]Func
	newRunID  func() string

	mu   sync.Mutex
	runs map[string]*liveRun

	wg      sync.WaitGroup
	baseCtx context.Context
	cancel  context.CancelFunc
}

type liveRun struct {
	key    string
	runID  string
	wfType string
	input  []byte

	mu       sync.RWMutex
	recorded map[string][]byte
	signals  map[string]string
	query    func() any

	done   chan struct{}
	result string
	err    error
}

func NewEngine(store domain.WorkflowStore, policy RetryPolicy, sagaMetrics *metrics.SagaMetrics) (*Engine, error) {
	idGenerator, err := nanoid.Standard(21)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Engine{
		store:     store,
		policy:    policy.normalized(),
		metrics:   sagaMetrics,
		workflows: make(map[string]Func),
		newRunID:  idGenerator,
		runs:      make(map[string]*liveRun),
		baseCtx:   ctx,
		cancel:    cancel,
	}, nil
}

// Register binds a workflow type name to its body. Call before Start/Recover.
func (e *Engine) Register(wfType string, fn Func) {
	e.workflows[wfType] = fn
}

// Start persists a new run under key and launches it. A key can be started
// only once; a second Start returns domain.ErrWorkflowAlreadyStarted.
func (e *Engine) Start(ctx context.Context, wfType, key string, input any) (string, error) {
	if _, ok := e.workflows[wfType]; !ok {
		return "", fmt.Errorf("workflow type %q is not registered", wfType)
	}
	raw, err := json.Marshal(input)
	if err != nil {
		return "", fmt.Errorf("encode workflow input: %w", err)
	}

	now := time.Now().UTC()
	run := &domain.WorkflowRun{
		Key:       key,
		RunID:     e.newRunID(),
		Type:      wfType,
		Input:     raw,
		Status:    domain.RunRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.store.CreateRun(ctx, run); err != nil {
		return "", err
	}

	e.launch(ctx, run, nil)
	e.metrics.RecordSagaStarted()
	slog.Info("workflow started", "key", key, "run_id", run.RunID, "type", wfType)

	return run.RunID, nil
}

// Recover resumes every open run that is not already live in this process.
func (e *Engine) Recover(ctx context.Context) (int, error) {
	runs, err := e.store.ListOpenRuns(ctx)
	if err != nil {
		return 0, fmt.Errorf("list open runs: %w", err)
	}

	recovered := 0
	for _, run := range runs {
		if e.isLive(run.Key) {
			continue
		}
		if _, ok := e.workflows[run.Type]; !ok {
			slog.Error("cannot recover run of unknown workflow type", "key", run.Key, "type", run.Type)
			continue
		}
		events, err := e.store.ListEvents(ctx, run.Key)
		if err != nil {
			slog.Error("failed to load workflow history", "key", run.Key, "error", err)
			continue
		}
		if e.launch(ctx, run, events) {
			recovered++
			e.metrics.RecordRunRecovered()
			slog.Info("workflow recovered", "key", run.Key, "run_id", run.RunID, "events", len(events))
		}
	}

	return recovered, nil
}

// Signal journals the signal and hands it to the live run. Runs that are open
// in the store but not live (awaiting recovery) still get the signal on replay.
func (e *Engine) Signal(ctx context.Context, key, name, payload string) error {
	lr := e.liveRun(key)
	if lr == nil {
		run, err := e.store.GetRun(ctx, key)
		if err != nil {
			return err
		}
		if run.Status != domain.RunRunning {
			return domain.ErrWorkflowNotFound
		}
	}

	event := &domain.HistoryEvent{
		Key:       key,
		Kind:      domain.EventSignal,
		Name:      name,
		Payload:   []byte(payload),
		CreatedAt: time.Now().UTC(),
	}
	if err := e.store.AppendEvent(ctx, event); err != nil {
		return fmt.Errorf("journal signal %s: %w", name, err)
	}

	// A run recovered while the event was being journaled registers after
	// the first lookup; it reads the journal again once registered.
	if lr == nil {
		lr = e.liveRun(key)
	}
	if lr != nil {
		lr.setSignal(name, payload)
	}
	e.metrics.RecordSignal(name)

	return nil
}

// Query invokes the live run's query handler. It never touches the journal.
func (e *Engine) Query(key string) (any, error) {
	lr := e.liveRun(key)
	if lr == nil {
		return nil, domain.ErrWorkflowNotFound
	}

	lr.mu.RLock()
	handler := lr.query
	lr.mu.RUnlock()
	if handler == nil {
		return nil, fmt.Errorf("workflow %s has no query handler yet", key)
	}

	return handler(), nil
}

// Await blocks until the run under key stops in this process, or returns the
// stored result of an already closed run.
func (e *Engine) Await(ctx context.Context, key string) (string, error) {
	lr := e.liveRun(key)
	if lr == nil {
		run, err := e.store.GetRun(ctx, key)
		if err != nil {
			return "", err
		}
		switch run.Status {
		case domain.RunCompleted:
			return run.Result, nil
		case domain.RunFailed:
			return run.Result, NonRetryable(errors.New(run.Error))
		default:
			return "", domain.ErrWorkflowNotFound
		}
	}

	select {
	case <-lr.done:
		return lr.result, lr.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Shutdown cancels in-flight activities and waits for run goroutines to stop.
// Interrupted runs stay open in the store and are picked up by Recover.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.cancel()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) isLive(key string) bool {
	return e.liveRun(key) != nil
}

func (e *Engine) liveRun(key string) *liveRun {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runs[key]
}

func (e *Engine) launch(ctx context.Context, run *domain.WorkflowRun, events []*domain.HistoryEvent) bool {
	lr := &liveRun{
		key:      run.Key,
		runID:    run.RunID,
		wfType:   run.Type,
		input:    run.Input,
		recorded: make(map[string][]byte),
		signals:  make(map[string]string),
		done:     make(chan struct{}),
	}
	for _, event := range events {
		switch event.Kind {
		case domain.EventActivity, domain.EventSideEffect:
			lr.recorded[historyKey(event.Kind, event.Name)] = event.Payload
		case domain.EventSignal:
			lr.signals[event.Name] = string(event.Payload)
		}
	}

	e.mu.Lock()
	if _, exists := e.runs[run.Key]; exists {
		e.mu.Unlock()
		return false
	}
	e.runs[run.Key] = lr
	e.mu.Unlock()

	e.catchUpSignals(ctx, lr)

	e.wg.Add(1)
	go e.execute(e.workflows[run.Type], lr)

	return true
}

// catchUpSignals merges signals journaled between reading the history and
// registering lr, which Signal could not hand to the run directly.
func (e *Engine) catchUpSignals(ctx context.Context, lr *liveRun) {
	events, err := e.store.ListEvents(ctx, lr.key)
	if err != nil {
		slog.Error("failed to re-read workflow signals", "key", lr.key, "error", err)
		return
	}
	for _, event := range events {
		if event.Kind == domain.EventSignal {
			lr.setSignal(event.Name, string(event.Payload))
		}
	}
}

func (e *Engine) execute(fn Func, lr *liveRun) {
	defer e.wg.Done()
	defer close(lr.done)
	defer e.metrics.RecordRunStopped()

	wctx := &Context{ctx: e.baseCtx, engine: e, run: lr}
	result, err := e.invoke(fn, wctx, lr.input)
	lr.result, lr.err = result, err

	switch {
	case err == nil:
		e.closeRun(lr.key, domain.RunCompleted, result, "")
	case IsNonRetryable(err):
		slog.Error("workflow failed", "key", lr.key, "run_id", lr.runID, "error", err)
		e.closeRun(lr.key, domain.RunFailed, result, err.Error())
	default:
		slog.Warn("workflow interrupted, left open for recovery", "key", lr.key, "run_id", lr.runID, "error", err)
	}

	e.mu.Lock()
	delete(e.runs, lr.key)
	e.mu.Unlock()
}

func (e *Engine) invoke(fn Func, wctx *Context, input []byte) (result string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = NonRetryable(fmt.Errorf("workflow panic: %v", r))
		}
	}()
	return fn(wctx, input)
}

func (e *Engine) closeRun(key string, status domain.RunStatus, result, errMsg string) {
	// The base context may already be cancelled on shutdown; closing is
	// still worth attempting so the run is not replayed needlessly.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.store.CloseRun(ctx, key, status, result, errMsg); err != nil {
		slog.Error("failed to close workflow run", "key", key, "status", status, "error", err)
	}
}

func (lr *liveRun) lookup(kind domain.EventKind, name string) ([]byte, bool) {
	lr.mu.RLock()
	defer lr.mu.RUnlock()
	raw, ok := lr.recorded[historyKey(kind, name)]
	return raw, ok
}

func (lr *liveRun) remember(kind domain.EventKind, name string, raw []byte) {
	lr.mu.Lock()
	defer lr.mu.Unlock()
	lr.recorded[historyKey(kind, name)] = raw
}

func (lr *liveRun) setSignal(name, payload string) {
	lr.mu.Lock()
	defer lr.mu.Unlock()
	lr.signals[name] = payload
}

func historyKey(kind domain.EventKind, name string) string {
	return string(kind) + "/" + name
}
