// Package saga drives one payment through Funding, Minting and Offramp on
// top of the durable workflow engine.
package saga

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/eitanfeifel/stablecoin-exchange/internal/domain"
	"github.com/eitanfeifel/stablecoin-exchange/internal/infrastructure/metrics"
	"github.com/eitanfeifel/stablecoin-exchange/internal/workflow"
	"github.com/shopspring/decimal"
)

const (
	WorkflowType = "payment-saga"
	CancelSignal = "cancel"
)

// WorkflowKey is the durable key of the saga for paymentID.
func WorkflowKey(paymentID string) string {
	return "payment-" + paymentID
}

type LegExecutor interface {
	Execute(ctx context.Context, paymentID string, amount decimal.Decimal, destinationCurrency string) (domain.LegResult, error)
}

type Compensator interface {
	Compensate(ctx context.Context, fundingLegID string) error
}

type Orchestrator struct {
	payments       domain.PaymentRepository
	funding        LegExecutor
	minting        LegExecutor
	offramp        LegExecutor
	compensation   Compensator
	publisher      domain.PaymentEventPublisher
	metrics        *metrics.SagaMetrics
	sourceCurrency string
}

func NewOrchestrator(
	payments domain.PaymentRepository,
	funding, minting, offramp LegExecutor,
	compensation Compensator,
	publisher domain.PaymentEventPublisher,
	sagaMetrics *metrics.SagaMetrics,
	sourceCurrency string,
) *Orchestrator {
	return &Orchestrator{
		payments:       payments,
		funding:        funding,
		minting:        minting,
		offramp:        offramp,
		compensation:   compensation,
		publisher:      publisher,
		metrics:        sagaMetrics,
		sourceCurrency: domain.NormalizeCurrency(sourceCurrency),
	}
}

func (o *Orchestrator) Register(engine *workflow.Engine) {
	engine.Register(WorkflowType, o.Run)
}

// terminal carries what the saga reports once it stops.
type terminal struct {
	stage       Stage
	status      domain.PaymentStatus
	outcome     string
	destination decimal.Decimal
	compensated bool
}

// Run is the workflow body. Leg failures are business outcomes and end the
// saga FAILED; errors returned from here are either non-retryable invariant
// violations or exhausted infrastructure retries that leave the run open.
func (o *Orchestrator) Run(wctx *workflow.Context, raw []byte) (string, error) {
	var in Input
	if err := json.Unmarshal(raw, &in); err != nil {
		return "", workflow.NonRetryable(fmt.Errorf("decode saga input: %w", err))
	}
	in.DestinationCurrency = domain.NormalizeCurrency(in.DestinationCurrency)

	state := newSagaState(in.PaymentID)
	wctx.SetQueryHandler(func() any {
		snap := state.Snapshot()
		if reason, ok := wctx.Signal(CancelSignal); ok {
			snap.CancelRequested = true
			snap.CancelReason = reason
		}
		return snap
	})

	startedAt, err := workflow.SideEffect(wctx, "started-at", func() time.Time { return time.Now().UTC() })
	if err != nil {
		return "", err
	}

	// 1. payment row
	state.setStage(StageCreatingPayment)
	_, err = workflow.ExecuteActivity(wctx, "create-payment", func(ctx context.Context) (domain.PaymentStatus, error) {
		return o.createPayment(ctx, in)
	})
	if err != nil {
		if wctx.Context().Err() != nil {
			return "", err
		}
		return "", workflow.NonRetryable(fmt.Errorf("create payment %s: %w", in.PaymentID, err))
	}

	// 2. funding
	state.setStage(StageFundingStarting)
	state.setStage(StageFundingRunning)
	fundingRes, err := o.runLeg(wctx, "funding", o.funding, in.PaymentID, in.Amount, in.DestinationCurrency)
	if err != nil {
		return o.abort(wctx, in, err)
	}
	funded, ok := fundingRes.(domain.LegCompleted)
	if !ok {
		return o.finish(wctx, state, in, startedAt, terminal{
			stage:   StageFailedFunding,
			status:  domain.PaymentFailed,
			outcome: "failed during funding",
		})
	}

	// 3. cancellation checkpoint
	decision, err := workflow.SideEffect(wctx, "cancel-checkpoint", func() cancelDecision {
		reason, cancelled := wctx.Signal(CancelSignal)
		return cancelDecision{Cancelled: cancelled, Reason: reason}
	})
	if err != nil {
		return "", err
	}
	if decision.Cancelled {
		state.markCancelled(decision.Reason)
		outcome := "cancelled after funding"
		if decision.Reason != "" {
			outcome += ": " + decision.Reason
		}
		return o.finish(wctx, state, in, startedAt, terminal{
			stage:   StageCancelledAfterFunding,
			status:  domain.PaymentFailed,
			outcome: outcome,
		})
	}

	// 4. minting
	state.setStage(StageMintingStarting)
	state.setStage(StageMintingRunning)
	mintingRes, err := o.runLeg(wctx, "minting", o.minting, in.PaymentID, funded.SourceAmount, in.DestinationCurrency)
	if err != nil {
		return o.abort(wctx, in, err)
	}
	minted, ok := mintingRes.(domain.LegCompleted)
	if !ok {
		if err := o.compensateFunding(wctx, funded.LegID); err != nil {
			return o.abort(wctx, in, err)
		}
		return o.finish(wctx, state, in, startedAt, terminal{
			stage:       StageFailedMinting,
			status:      domain.PaymentFailed,
			outcome:     "failed during minting; funding compensated",
			compensated: true,
		})
	}

	// 5. offramp
	state.setStage(StageOfframpStarting)
	state.setStage(StageOfframpRunning)
	offrampRes, err := o.runLeg(wctx, "offramp", o.offramp, in.PaymentID, minted.ConvertedAmount, in.DestinationCurrency)
	if err != nil {
		return o.abort(wctx, in, err)
	}
	delivered, ok := offrampRes.(domain.LegCompleted)
	if !ok {
		if err := o.compensateFunding(wctx, funded.LegID); err != nil {
			return o.abort(wctx, in, err)
		}
		return o.finish(wctx, state, in, startedAt, terminal{
			stage:       StageFailedOfframp,
			status:      domain.PaymentFailed,
			outcome:     "failed during offramp; funding compensated",
			compensated: true,
		})
	}

	// 6. done
	summary := fmt.Sprintf(
		"payment completed: source %s %s, bridge %s %s at rate %s, destination %s %s at rate %s",
		funded.SourceAmount.String(), o.sourceCurrency,
		minted.ConvertedAmount.String(), minted.Currency, minted.Rate.String(),
		delivered.ConvertedAmount.StringFixed(domain.MinorUnits(delivered.Currency)), delivered.Currency, delivered.Rate.String(),
	)
	return o.finish(wctx, state, in, startedAt, terminal{
		stage:       StageCompleted,
		status:      domain.PaymentCompleted,
		outcome:     summary,
		destination: delivered.ConvertedAmount,
	})
}

func (o *Orchestrator) createPayment(ctx context.Context, in Input) (domain.PaymentStatus, error) {
	stored, err := o.payments.CreatePayment(ctx, &domain.Payment{
		ID:                  in.PaymentID,
		Amount:              in.Amount,
		SourceCurrency:      o.sourceCurrency,
		DestinationCurrency: in.DestinationCurrency,
		Status:              domain.PaymentCreated,
		CreatedAt:           time.Now().UTC(),
	})
	if err != nil {
		return "", err
	}
	if stored.Status.IsTerminal() {
		return "", workflow.NonRetryable(fmt.Errorf("payment %s is already %s", stored.ID, stored.Status))
	}

	err = o.payments.UpdatePaymentStatus(ctx, stored.ID, domain.PaymentInProgress)
	if err != nil {
		return "", err
	}
	return domain.PaymentInProgress, nil
}

func (o *Orchestrator) runLeg(
	wctx *workflow.Context,
	name string,
	executor LegExecutor,
	paymentID string,
	amount decimal.Decimal,
	destinationCurrency string,
) (domain.LegResult, error) {
	out, err := workflow.ExecuteActivity(wctx, name, func(ctx context.Context) (legOutcome, error) {
		res, err := executor.Execute(ctx, paymentID, amount, destinationCurrency)
		if errors.Is(err, domain.ErrInvalidAmount) {
			return legOutcome{}, workflow.NonRetryable(err)
		}
		if err != nil {
			return legOutcome{}, err
		}
		return toOutcome(res), nil
	})
	if err != nil {
		return nil, err
	}

	res := out.result()
	if res == nil {
		return nil, workflow.NonRetryable(fmt.Errorf("%s leg returned an empty result", name))
	}
	return res, nil
}

func (o *Orchestrator) compensateFunding(wctx *workflow.Context, fundingLegID string) error {
	_, err := workflow.ExecuteActivity(wctx, "compensate-funding", func(ctx context.Context) (struct{}, error) {
		err := o.compensation.Compensate(ctx, fundingLegID)
		if errors.Is(err, domain.ErrCompensationNotAllowed) {
			return struct{}{}, workflow.NonRetryable(err)
		}
		return struct{}{}, err
	})
	return err
}

func (o *Orchestrator) setPaymentStatus(wctx *workflow.Context, paymentID string, status domain.PaymentStatus) error {
	name := "mark-payment-" + string(status)
	_, err := workflow.ExecuteActivity(wctx, name, func(ctx context.Context) (struct{}, error) {
		err := o.payments.UpdatePaymentStatus(ctx, paymentID, status)
		if errors.Is(err, domain.ErrPaymentNotFound) || errors.Is(err, domain.ErrInvalidStatusTransition) {
			return struct{}{}, workflow.NonRetryable(err)
		}
		return struct{}{}, err
	})
	return err
}

// abort handles an error that stops the saga outside its modeled outcomes.
// A fatal error still marks the payment FAILED so callers see a terminal row.
func (o *Orchestrator) abort(wctx *workflow.Context, in Input, cause error) (string, error) {
	if !workflow.IsNonRetryable(cause) {
		return "", cause
	}
	if err := o.setPaymentStatus(wctx, in.PaymentID, domain.PaymentFailed); err != nil {
		slog.Error("failed to mark aborted payment as FAILED", "payment_id", in.PaymentID, "error", err)
	}
	return "", cause
}

func (o *Orchestrator) finish(wctx *workflow.Context, state *SagaState, in Input, startedAt time.Time, t terminal) (string, error) {
	if err := o.setPaymentStatus(wctx, in.PaymentID, t.status); err != nil {
		return "", err
	}
	state.finish(t.stage, t.outcome)

	event := domain.PaymentEvent{
		PaymentID:           in.PaymentID,
		Status:              string(t.status),
		Stage:               string(t.stage),
		Outcome:             t.outcome,
		SourceAmount:        in.Amount.String(),
		DestinationCurrency: in.DestinationCurrency,
		Compensated:         t.compensated,
	}
	if !t.destination.IsZero() {
		event.DestinationAmount = t.destination.String()
	}
	replayed := wctx.Replayed("publish-outcome")
	_, err := workflow.ExecuteActivity(wctx, "publish-outcome", func(ctx context.Context) (struct{}, error) {
		event.OccurredAt = time.Now().UTC()
		return struct{}{}, o.publisher.PublishPaymentEvent(ctx, event)
	})
	if err != nil {
		slog.Error("failed to publish payment outcome", "payment_id", in.PaymentID, "error", err)
	}

	if !replayed {
		o.metrics.RecordSagaFinished(string(t.stage), time.Since(startedAt).Seconds())
	}
	slog.Info("payment saga finished",
		"payment_id", in.PaymentID,
		"stage", t.stage,
		"status", t.status,
		"outcome", t.outcome,
	)

	return t.outcome, nil
}
