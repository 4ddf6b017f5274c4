package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SagaMetrics содержит все метрики саг и шагов конвертации
type SagaMetrics struct {
	// Саги
	SagasStartedTotal  prometheus.Counter
	SagasFinishedTotal *prometheus.CounterVec
	SagaDuration       *prometheus.HistogramVec
	SagasInFlight      prometheus.Gauge

	// Шаги (legs)
	LegsExecutedTotal  *prometheus.CounterVec
	LegAmountTotal     *prometheus.CounterVec
	CompensationsTotal *prometheus.CounterVec
	FeesChargedTotal   *prometheus.CounterVec
	FeesChargedAmount  *prometheus.CounterVec
	RateLookupsTotal   *prometheus.CounterVec

	// Durable execution
	ActivityRetriesTotal *prometheus.CounterVec
	RunsRecoveredTotal   prometheus.Counter
	SignalsTotal         *prometheus.CounterVec
}

// NewSagaMetrics registers every collector on reg.
func NewSagaMetrics(reg prometheus.Registerer) *SagaMetrics {
	factory := promauto.With(reg)

	return &SagaMetrics{
		SagasStartedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "payment_sagas_started_total",
				Help: "Total number of payment sagas started",
			},
		),

		SagasFinishedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payment_sagas_finished_total",
				Help: "Total number of payment sagas by terminal stage",
			},
			[]string{"stage"},
		),

		SagaDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "payment_saga_duration_seconds",
				Help:    "Wall time from saga start to its terminal stage",
				Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms ... ~20s
			},
			[]string{"stage"},
		),

		SagasInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "payment_sagas_in_flight",
				Help: "Sagas currently executing in this process",
			},
		),

		LegsExecutedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payment_legs_executed_total",
				Help: "Leg executions by leg type and resulting status",
			},
			[]string{"leg", "status"},
		),

		LegAmountTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payment_leg_converted_amount_total",
				Help: "Sum of converted amounts of completed legs",
			},
			[]string{"leg", "currency"},
		),

		CompensationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payment_compensations_total",
				Help: "Compensations applied to legs",
			},
			[]string{"leg"},
		),

		FeesChargedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payment_fees_charged_total",
				Help: "Number of fee rows written",
			},
			[]string{"leg", "currency"},
		),

		FeesChargedAmount: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payment_fees_charged_amount_total",
				Help: "Sum of fees charged",
			},
			[]string{"leg", "currency"},
		),

		RateLookupsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payment_rate_lookups_total",
				Help: "Exchange rate lookups by quote currency and result",
			},
			[]string{"quote", "found"},
		),

		ActivityRetriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "workflow_activity_retries_total",
				Help: "Activity attempts that failed with a retryable error",
			},
			[]string{"activity"},
		),

		RunsRecoveredTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "workflow_runs_recovered_total",
				Help: "Runs resumed from persisted history",
			},
		),

		SignalsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "workflow_signals_total",
				Help: "Signals delivered to running workflows",
			},
			[]string{"signal"},
		),
	}
}

func (m *SagaMetrics) RecordSagaStarted() {
	m.SagasStartedTotal.Inc()
	m.SagasInFlight.Inc()
}

// RecordSagaFinished записывает терминальную стадию саги
func (m *SagaMetrics) RecordSagaFinished(stage string, durationSeconds float64) {
	m.SagasFinishedTotal.WithLabelValues(stage).Inc()
	m.SagaDuration.WithLabelValues(stage).Observe(durationSeconds)
}

// RecordRunStopped is called whenever a run leaves this process, finished or not.
func (m *SagaMetrics) RecordRunStopped() {
	m.SagasInFlight.Dec()
}

func (m *SagaMetrics) RecordLeg(leg, status, currency string, converted float64) {
	m.LegsExecutedTotal.WithLabelValues(leg, status).Inc()
	if status == "COMPLETED" {
		m.LegAmountTotal.WithLabelValues(leg, currency).Add(converted)
	}
}

func (m *SagaMetrics) RecordCompensation(leg string) {
	m.CompensationsTotal.WithLabelValues(leg).Inc()
}

func (m *SagaMetrics) RecordFee(leg, currency string, amount float64) {
	m.FeesChargedTotal.WithLabelValues(leg, currency).Inc()
	m.FeesChargedAmount.WithLabelValues(leg, currency).Add(amount)
}

func (m *SagaMetrics) RecordRateLookup(quote string, found bool) {
	foundStr := "false"
	if found {
		foundStr = "true"
	}
	m.RateLookupsTotal.WithLabelValues(quote, foundStr).Inc()
}

func (m *SagaMetrics) RecordActivityRetry(activity string) {
	m.ActivityRetriesTotal.WithLabelValues(activity).Inc()
}

func (m *SagaMetrics) RecordRunRecovered() {
	m.RunsRecoveredTotal.Inc()
	m.SagasInFlight.Inc()
}

func (m *SagaMetrics) RecordSignal(signal string) {
	m.SignalsTotal.WithLabelValues(signal).Inc()
}
