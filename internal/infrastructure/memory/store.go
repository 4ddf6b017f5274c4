// Package memory keeps every repository in process memory. It backs the
// "memory" payment_db driver and the package tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/eitanfeifel/stablecoin-exchange/internal/domain"
)

type Store struct {
	mu       sync.RWMutex
	payments map[string]domain.Payment
	legs     map[string]domain.Leg
	legOrder []string
	fees     map[string]domain.Fee
	feeOrder []string
	rates    map[string][]domain.ExchangeRate
	runs     map[string]domain.WorkflowRun
	events   map[string][]domain.HistoryEvent
}

func NewStore() *Store {
	return &Store{
		payments: make(map[string]domain.Payment),
		legs:     make(map[string]domain.Leg),
		fees:     make(map[string]domain.Fee),
		rates:    make(map[string][]domain.ExchangeRate),
		runs:     make(map[string]domain.WorkflowRun),
		events:   make(map[string][]domain.HistoryEvent),
	}
}

func (s *Store) CreatePayment(ctx context.Context, payment *domain.Payment) (*domain.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.payments[payment.ID]; ok {
		return &existing, nil
	}
	stored := *payment
	now := time.Now().UTC()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	s.payments[stored.ID] = stored

	return &stored, nil
}

func (s *Store) GetPaymentByID(ctx context.Context, paymentID string) (*domain.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	payment, ok := s.payments[paymentID]
	if !ok {
		return nil, domain.ErrPaymentNotFound
	}
	return &payment, nil
}

func (s *Store) UpdatePaymentStatus(ctx context.Context, paymentID string, status domain.PaymentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payment, ok := s.payments[paymentID]
	if !ok {
		return domain.ErrPaymentNotFound
	}
	if payment.Status == status {
		return nil
	}
	if !payment.Status.CanTransition(status) {
		return domain.ErrInvalidStatusTransition
	}
	payment.Status = status
	payment.UpdatedAt = time.Now().UTC()
	s.payments[paymentID] = payment

	return nil
}

func (s *Store) CreateLeg(ctx context.Context, leg *domain.Leg) (*domain.Leg, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.legs[leg.ID]; ok {
		return &existing, nil
	}
	stored := *leg
	now := time.Now().UTC()
	stored.CreatedAt, stored.UpdatedAt = now, now
	s.legs[stored.ID] = stored
	s.legOrder = append(s.legOrder, stored.ID)

	return &stored, nil
}

func (s *Store) GetLegByID(ctx context.Context, legID string) (*domain.Leg, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	leg, ok := s.legs[legID]
	if !ok {
		return nil, domain.ErrLegNotFound
	}
	return &leg, nil
}

func (s *Store) GetLegsByPaymentID(ctx context.Context, paymentID string) ([]*domain.Leg, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	legs := make([]*domain.Leg, 0, 3)
	for _, id := range s.legOrder {
		if leg := s.legs[id]; leg.PaymentID == paymentID {
			legs = append(legs, &leg)
		}
	}
	return legs, nil
}

func (s *Store) UpdateLegStatus(ctx context.Context, legID string, from, to domain.LegStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	leg, ok := s.legs[legID]
	if !ok {
		return domain.ErrLegNotFound
	}
	if leg.Status != from {
		return domain.ErrInvalidLegTransition
	}
	leg.Status = to
	leg.UpdatedAt = time.Now().UTC()
	s.legs[legID] = leg

	return nil
}

func (s *Store) CreateFee(ctx context.Context, fee *domain.Fee) (*domain.Fee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.fees[fee.ID]; ok {
		return &existing, nil
	}
	stored := *fee
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	s.fees[stored.ID] = stored
	s.feeOrder = append(s.feeOrder, stored.ID)

	return &stored, nil
}

func (s *Store) GetFeesByPaymentID(ctx context.Context, paymentID string) ([]*domain.Fee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fees := make([]*domain.Fee, 0, 3)
	for _, id := range s.feeOrder {
		if fee := s.fees[id]; fee.PaymentID == paymentID {
			fees = append(fees, &fee)
		}
	}
	return fees, nil
}

func (s *Store) GetLatestRate(ctx context.Context, base, quote string) (*domain.ExchangeRate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rates := s.rates[pairKey(base, quote)]
	if len(rates) == 0 {
		return nil, domain.ErrRateNotFound
	}
	latest := rates[len(rates)-1]
	return &latest, nil
}

func (s *Store) UpsertRates(ctx context.Context, rates []*domain.ExchangeRate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rate := range rates {
		key := pairKey(rate.Base, rate.Quote)
		current := s.rates[key]
		replaced := false
		for i := range current {
			if current[i].EffectiveDate.Equal(rate.EffectiveDate) {
				current[i] = *rate
				replaced = true
			}
		}
		if !replaced {
			current = append(current, *rate)
		}
		sort.Slice(current, func(i, j int) bool {
			return current[i].EffectiveDate.Before(current[j].EffectiveDate)
		})
		s.rates[key] = current
	}
	return nil
}

func (s *Store) CreateRun(ctx context.Context, run *domain.WorkflowRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[run.Key]; ok {
		return domain.ErrWorkflowAlreadyStarted
	}
	s.runs[run.Key] = *run
	return nil
}

func (s *Store) GetRun(ctx context.Context, key string) (*domain.WorkflowRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[key]
	if !ok {
		return nil, domain.ErrWorkflowNotFound
	}
	return &run, nil
}

func (s *Store) CloseRun(ctx context.Context, key string, status domain.RunStatus, result, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[key]
	if !ok {
		return domain.ErrWorkflowNotFound
	}
	run.Status = status
	run.Result = result
	run.Error = errMsg
	run.UpdatedAt = time.Now().UTC()
	s.runs[key] = run
	return nil
}

func (s *Store) ListOpenRuns(ctx context.Context) ([]*domain.WorkflowRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]*domain.WorkflowRun, 0)
	for _, run := range s.runs {
		if run.Status == domain.RunRunning {
			run := run
			runs = append(runs, &run)
		}
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].CreatedAt.Before(runs[j].CreatedAt) })
	return runs, nil
}

func (s *Store) AppendEvent(ctx context.Context, event *domain.HistoryEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if event.Kind != domain.EventSignal {
		for _, existing := range s.events[event.Key] {
			if existing.Kind == event.Kind && existing.Name == event.Name {
				return nil
			}
		}
	}
	s.events[event.Key] = append(s.events[event.Key], *event)
	return nil
}

func (s *Store) ListEvents(ctx context.Context, key string) ([]*domain.HistoryEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := make([]*domain.HistoryEvent, 0, len(s.events[key]))
	for _, event := range s.events[key] {
		event := event
		events = append(events, &event)
	}
	return events, nil
}

func pairKey(base, quote string) string {
	return domain.NormalizeCurrency(base) + "/" + domain.NormalizeCurrency(quote)
}
