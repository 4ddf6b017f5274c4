package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/eitanfeifel/stablecoin-exchange/internal/domain"
)

// Context is handed to a workflow body. It is only valid inside that body.
type Context struct {
	ctx    context.Context
	engine *Engine
	run    *liveRun
}

func (c *Context) Context() context.Context {
	return c.ctx
}

func (c *Context) Key() string {
	return c.run.key
}

func (c *Context) RunID() string {
	return c.run.runID
}

// SetQueryHandler installs the function Engine.Query calls. The handler runs
// on the caller's goroutine, so it must only read state it can read safely.
func (c *Context) SetQueryHandler(handler func() any) {
	c.run.mu.Lock()
	defer c.run.mu.Unlock()
	c.run.query = handler
}

// Signal returns the latest payload received for name. It reads live state:
// wrap decisions based on it in SideEffect so replay sees the same answer.
func (c *Context) Signal(name string) (string, bool) {
	c.run.mu.RLock()
	defer c.run.mu.RUnlock()
	payload, ok := c.run.signals[name]
	return payload, ok
}

// Replayed reports whether the activity name already has a recorded result.
func (c *Context) Replayed(name string) bool {
	_, ok := c.run.lookup(domain.EventActivity, name)
	return ok
}

// ExecuteActivity runs fn at most once per run as far as the journal is
// concerned: a recorded result is decoded and returned without calling fn.
// Retryable errors are retried per the engine's RetryPolicy; fn must be
// idempotent because a crash between fn returning and the journal write
// makes the next attempt call it again.
func ExecuteActivity[T any](c *Context, name string, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	if raw, ok := c.run.lookup(domain.EventActivity, name); ok {
		if err := json.Unmarshal(raw, &out); err != nil {
			return out, NonRetryable(fmt.Errorf("decode recorded activity %s: %w", name, err))
		}
		return out, nil
	}

	timeout := c.engine.policy.ActivityTimeout
	out, err := retry(c, name, func(ctx context.Context) (T, error) {
		if timeout <= 0 {
			return fn(ctx)
		}
		actx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return fn(actx)
	})
	if err != nil {
		return out, err
	}

	if err := c.record(domain.EventActivity, name, out); err != nil {
		return out, err
	}
	return out, nil
}

// SideEffect records the value fn returns the first time and replays it
// afterwards.
func SideEffect[T any](c *Context, name string, fn func() T) (T, error) {
	var out T
	if raw, ok := c.run.lookup(domain.EventSideEffect, name); ok {
		if err := json.Unmarshal(raw, &out); err != nil {
			return out, NonRetryable(fmt.Errorf("decode recorded side effect %s: %w", name, err))
		}
		return out, nil
	}

	out = fn()
	if err := c.record(domain.EventSideEffect, name, out); err != nil {
		return out, err
	}
	return out, nil
}

func (c *Context) record(kind domain.EventKind, name string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return NonRetryable(fmt.Errorf("encode %s %s: %w", kind, name, err))
	}

	event := &domain.HistoryEvent{
		Key:       c.run.key,
		Kind:      kind,
		Name:      name,
		Payload:   raw,
		CreatedAt: time.Now().UTC(),
	}
	_, err = retry(c, "journal:"+name, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.engine.store.AppendEvent(ctx, event)
	})
	if err != nil {
		return fmt.Errorf("journal %s %s: %w", kind, name, err)
	}

	c.run.remember(kind, name, raw)
	return nil
}
