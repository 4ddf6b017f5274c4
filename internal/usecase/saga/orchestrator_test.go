package saga

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/eitanfeifel/stablecoin-exchange/internal/domain"
	"github.com/eitanfeifel/stablecoin-exchange/internal/infrastructure/memory"
	"github.com/eitanfeifel/stablecoin-exchange/internal/infrastructure/metrics"
	"github.com/eitanfeifel/stablecoin-exchange/internal/usecase/leg"
	"github.com/eitanfeifel/stablecoin-exchange/internal/workflow"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.PaymentEvent
}

func (p *recordingPublisher) PublishPaymentEvent(_ context.Context, event domain.PaymentEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) all() []domain.PaymentEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.PaymentEvent(nil), p.events...)
}

type countingExecutor struct {
	inner LegExecutor
	calls atomic.Int32
}

func (c *countingExecutor) Execute(ctx context.Context, paymentID string, amount decimal.Decimal, currency string) (domain.LegResult, error) {
	c.calls.Add(1)
	return c.inner.Execute(ctx, paymentID, amount, currency)
}

// gatedExecutor blocks until release is closed, after announcing on started.
type gatedExecutor struct {
	inner   LegExecutor
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGated(inner LegExecutor) *gatedExecutor {
	return &gatedExecutor{inner: inner, started: make(chan struct{}), release: make(chan struct{})}
}

func (g *gatedExecutor) Execute(ctx context.Context, paymentID string, amount decimal.Decimal, currency string) (domain.LegResult, error) {
	g.once.Do(func() { close(g.started) })
	select {
	case <-g.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return g.inner.Execute(ctx, paymentID, amount, currency)
}

type brokenExecutor struct{}

func (brokenExecutor) Execute(context.Context, string, decimal.Decimal, string) (domain.LegResult, error) {
	return nil, errors.New("connection reset by peer")
}

type SagaTestSuite struct {
	suite.Suite
	store     *memory.Store
	metrics   *metrics.SagaMetrics
	publisher *recordingPublisher
	faults    leg.FaultPlan
	funding   LegExecutor
	minting   LegExecutor
	offramp   LegExecutor
	engine    *workflow.Engine
	engines   []*workflow.Engine
}

func TestSagaTestSuite(t *testing.T) {
	suite.Run(t, new(SagaTestSuite))
}

func (s *SagaTestSuite) SetupTest() {
	s.store = memory.NewStore()
	s.faults = leg.FaultPlan{}
	s.engines = nil
	s.resetExecutors()
	s.seedRate("MXN", "18.344")
	s.seedRate("EUR", "0.92")
	s.seedRate("BRL", "5.0123")
}

func (s *SagaTestSuite) TearDownTest() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for _, engine := range s.engines {
		_ = engine.Shutdown(ctx)
	}
}

// resetExecutors rebuilds the legs over the current store, as a new process would.
func (s *SagaTestSuite) resetExecutors() {
	s.metrics = metrics.NewSagaMetrics(prometheus.NewRegistry())
	s.publisher = &recordingPublisher{}
	s.funding = leg.NewFunding(s.store, s.store, decimal.RequireFromString("1.00"), "USD", s.metrics)
	s.minting = leg.NewMinting(s.store, s.store, decimal.RequireFromString("0.50"), "USD", "USDC", s.metrics, leg.WithFaultPlan(s.faults))
	s.offramp = leg.NewOfframp(s.store, s.store, s.store, decimal.RequireFromString("0.5"), "USD", "USDC", s.metrics)
}

func (s *SagaTestSuite) startEngine(policy workflow.RetryPolicy) {
	engine, err := workflow.NewEngine(s.store, policy, s.metrics)
	s.Require().NoError(err)

	orchestrator := NewOrchestrator(s.store, s.funding, s.minting, s.offramp, leg.NewCompensation(s.store, s.metrics), s.publisher, s.metrics, "USD")
	orchestrator.Register(engine)
	s.engine = engine
	s.engines = append(s.engines, engine)
}

func fastPolicy() workflow.RetryPolicy {
	return workflow.RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}
}

func exhaustingPolicy() workflow.RetryPolicy {
	return workflow.RetryPolicy{MaxAttempts: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}
}

func (s *SagaTestSuite) seedRate(quote, rate string) {
	err := s.store.UpsertRates(context.Background(), []*domain.ExchangeRate{{
		Base:          "USD",
		Quote:         quote,
		Rate:          decimal.RequireFromString(rate),
		EffectiveDate: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}})
	s.Require().NoError(err)
}

func (s *SagaTestSuite) begin(ctx context.Context, paymentID, amount, currency string) string {
	key := WorkflowKey(paymentID)
	input := Input{PaymentID: paymentID, Amount: decimal.RequireFromString(amount), DestinationCurrency: currency}
	_, err := s.engine.Start(ctx, WorkflowType, key, input)
	s.Require().NoError(err)
	return key
}

func (s *SagaTestSuite) run(paymentID, amount, currency string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	key := s.begin(ctx, paymentID, amount, currency)
	return s.engine.Await(ctx, key)
}

func (s *SagaTestSuite) details(paymentID string) *domain.PaymentDetails {
	ctx := context.Background()
	payment, err := s.store.GetPaymentByID(ctx, paymentID)
	s.Require().NoError(err)
	legs, err := s.store.GetLegsByPaymentID(ctx, paymentID)
	s.Require().NoError(err)
	fees, err := s.store.GetFeesByPaymentID(ctx, paymentID)
	s.Require().NoError(err)
	return &domain.PaymentDetails{Payment: payment, Legs: legs, Fees: fees}
}

// assertFeeInvariant checks that a leg has exactly one fee iff it completed.
func (s *SagaTestSuite) assertFeeInvariant(d *domain.PaymentDetails) {
	count := map[domain.LegType]int{}
	for _, fee := range d.Fees {
		count[fee.Leg]++
	}
	for _, l := range d.Legs {
		want := 0
		if l.Status == domain.LegStatusCompleted || l.Status == domain.LegStatusCompensated {
			want = 1
		}
		s.Equal(want, count[l.Type], "fees of leg %s (%s)", l.Type, l.Status)
	}
}

func (s *SagaTestSuite) assertCompleted(paymentID string) {
	d := s.details(paymentID)
	s.Equal(domain.PaymentCompleted, d.Payment.Status)
	s.Len(d.Legs, 3)
	s.Len(d.Fees, 3)
	for _, l := range d.Legs {
		s.Equal(domain.LegStatusCompleted, l.Status, "leg %s", l.Type)
	}
	s.assertFeeInvariant(d)
}

func (s *SagaTestSuite) TestHappyPath() {
	s.startEngine(fastPolicy())

	outcome, err := s.run("pay-happy", "100", "mxn")
	s.Require().NoError(err)
	s.Contains(outcome, "1834.40 MXN at rate 18.344")

	s.assertCompleted("pay-happy")
	d := s.details("pay-happy")
	minting := d.Leg(domain.LegMinting)
	s.True(minting.ConvertedAmount.Equal(decimal.NewFromInt(100)), "minting converted %s", minting.ConvertedAmount)
	s.True(minting.Rate.Equal(decimal.NewFromInt(1)), "minting rate %s", minting.Rate)
	offramp := d.Leg(domain.LegOfframp)
	s.True(offramp.ConvertedAmount.Equal(decimal.RequireFromString("1834.40")), "offramp converted %s", offramp.ConvertedAmount)

	events := s.publisher.all()
	s.Require().Len(events, 1)
	s.Equal(string(StageCompleted), events[0].Stage)
	s.Equal("1834.4", events[0].DestinationAmount)
}

func (s *SagaTestSuite) TestCancelAfterFunding() {
	gate := newGated(s.funding)
	s.funding = gate
	s.startEngine(fastPolicy())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	key := s.begin(ctx, "pay-cancel", "50", "EUR")

	<-gate.started
	snap, err := s.engine.Query(key)
	s.Require().NoError(err)
	s.Equal(StageFundingRunning, snap.(Snapshot).Stage)
	s.False(snap.(Snapshot).CancelRequested)

	s.Require().NoError(s.engine.Signal(ctx, key, CancelSignal, "customer request"))
	snap, _ = s.engine.Query(key)
	s.True(snap.(Snapshot).CancelRequested)
	s.Equal("customer request", snap.(Snapshot).CancelReason)
	close(gate.release)

	outcome, err := s.engine.Await(ctx, key)
	s.Require().NoError(err)
	s.Equal("cancelled after funding: customer request", outcome)

	d := s.details("pay-cancel")
	s.Equal(domain.PaymentFailed, d.Payment.Status)
	s.Require().Len(d.Legs, 1)
	s.Equal(domain.LegFunding, d.Legs[0].Type)
	s.Equal(domain.LegStatusCompleted, d.Legs[0].Status)
	s.assertFeeInvariant(d)

	s.ErrorIs(s.engine.Signal(ctx, key, CancelSignal, "again"), domain.ErrWorkflowNotFound)
}

func (s *SagaTestSuite) TestCancelDuringMintingHasNoEffect() {
	gate := newGated(s.minting)
	s.minting = gate
	s.startEngine(fastPolicy())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	key := s.begin(ctx, "pay-late-cancel", "100", "MXN")

	<-gate.started
	s.Require().NoError(s.engine.Signal(ctx, key, CancelSignal, "too late"))
	snap, err := s.engine.Query(key)
	s.Require().NoError(err)
	s.Equal(StageMintingRunning, snap.(Snapshot).Stage)
	s.True(snap.(Snapshot).CancelRequested)
	close(gate.release)

	outcome, err := s.engine.Await(ctx, key)
	s.Require().NoError(err)
	s.Contains(outcome, "payment completed")
	s.Contains(outcome, "1834.40 MXN at rate 18.344")
	s.assertCompleted("pay-late-cancel")
}

func (s *SagaTestSuite) TestRecoveredRunKeepsRecordedCheckpointDecision() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// first process passes the checkpoint, then stops on minting
	s.minting = brokenExecutor{}
	s.startEngine(exhaustingPolicy())
	_, err := s.run("pay-replay", "100", "MXN")
	s.Require().Error(err)

	key := WorkflowKey("pay-replay")
	run, err := s.store.GetRun(ctx, key)
	s.Require().NoError(err)
	s.Require().Equal(domain.RunRunning, run.Status)

	// the cancel lands in the journal while no process runs the saga
	s.Require().NoError(s.engine.Signal(ctx, key, CancelSignal, "after checkpoint"))

	s.resetExecutors()
	s.startEngine(fastPolicy())
	recovered, err := s.engine.Recover(ctx)
	s.Require().NoError(err)
	s.Require().Equal(1, recovered)

	outcome, err := s.engine.Await(ctx, key)
	s.Require().NoError(err)
	s.Contains(outcome, "payment completed")
	s.assertCompleted("pay-replay")
}

func (s *SagaTestSuite) TestFailuresCompensateFunding() {
	tests := []struct {
		name        string
		currency    string
		faults      leg.FaultPlan
		wantOutcome string
		wantLegs    map[domain.LegType]domain.LegStatus
		wantStage   Stage
	}{
		{
			name:        "missing rate",
			currency:    "XYZ",
			wantOutcome: "failed during offramp; funding compensated",
			wantStage:   StageFailedOfframp,
			wantLegs: map[domain.LegType]domain.LegStatus{
				domain.LegFunding: domain.LegStatusCompensated,
				domain.LegMinting: domain.LegStatusCompleted,
				domain.LegOfframp: domain.LegStatusFailed,
			},
		},
		{
			name:        "minting fault",
			currency:    "MXN",
			faults:      leg.FaultPlan{FailMinting: true},
			wantOutcome: "failed during minting; funding compensated",
			wantStage:   StageFailedMinting,
			wantLegs: map[domain.LegType]domain.LegStatus{
				domain.LegFunding: domain.LegStatusCompensated,
				domain.LegMinting: domain.LegStatusFailed,
			},
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			paymentID := "pay-fail-" + string(tt.wantStage)
			s.faults = tt.faults
			s.resetExecutors()
			s.startEngine(fastPolicy())

			outcome, err := s.run(paymentID, "75.25", tt.currency)
			s.Require().NoError(err)
			s.Equal(tt.wantOutcome, outcome)

			d := s.details(paymentID)
			s.Equal(domain.PaymentFailed, d.Payment.Status)
			s.Require().Len(d.Legs, len(tt.wantLegs))
			for _, l := range d.Legs {
				s.Equal(tt.wantLegs[l.Type], l.Status, "leg %s", l.Type)
				if l.Status == domain.LegStatusFailed {
					s.True(l.ConvertedAmount.IsZero(), "failed leg %s amount %s", l.Type, l.ConvertedAmount)
					s.True(l.Rate.IsZero(), "failed leg %s rate %s", l.Type, l.Rate)
				}
			}
			s.assertFeeInvariant(d)

			events := s.publisher.all()
			s.Require().Len(events, 1)
			s.Equal(string(tt.wantStage), events[0].Stage)
			s.True(events[0].Compensated)
		})
	}
}

func (s *SagaTestSuite) TestResumesWithoutRepeatingLegs() {
	// first process: minting keeps failing until retries run out
	s.minting = brokenExecutor{}
	s.startEngine(exhaustingPolicy())
	_, err := s.run("pay-crash", "20", "BRL")
	s.Require().Error(err)

	run, err := s.store.GetRun(context.Background(), WorkflowKey("pay-crash"))
	s.Require().NoError(err)
	s.Require().Equal(domain.RunRunning, run.Status)

	// second process over the same store
	s.resetExecutors()
	funding := &countingExecutor{inner: s.funding}
	minting := &countingExecutor{inner: s.minting}
	s.funding, s.minting = funding, minting
	s.startEngine(fastPolicy())

	recovered, err := s.engine.Recover(context.Background())
	s.Require().NoError(err)
	s.Require().Equal(1, recovered)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = s.engine.Await(ctx, WorkflowKey("pay-crash"))
	s.Require().NoError(err)

	s.Equal(int32(0), funding.calls.Load(), "funding re-executed after recovery")
	s.Equal(int32(1), minting.calls.Load(), "minting executions after recovery")
	s.assertCompleted("pay-crash")
}

func (s *SagaTestSuite) TestStartIsDeduplicated() {
	s.startEngine(fastPolicy())

	_, err := s.run("pay-dup", "10", "MXN")
	s.Require().NoError(err)

	input := Input{PaymentID: "pay-dup", Amount: decimal.NewFromInt(10), DestinationCurrency: "MXN"}
	_, err = s.engine.Start(context.Background(), WorkflowType, WorkflowKey("pay-dup"), input)
	s.ErrorIs(err, domain.ErrWorkflowAlreadyStarted)
}

func (s *SagaTestSuite) TestRejectsNonPositiveAmount() {
	s.startEngine(fastPolicy())

	_, err := s.run("pay-zero", "0", "MXN")
	s.True(workflow.IsNonRetryable(err), "expected a non-retryable error, got %v", err)

	d := s.details("pay-zero")
	s.Equal(domain.PaymentFailed, d.Payment.Status)
	s.Empty(d.Legs)
	s.Empty(d.Fees)
}
