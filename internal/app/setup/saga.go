package setup

import (
	"fmt"
	"log/slog"

	"github.com/eitanfeifel/stablecoin-exchange/internal/usecase/leg"
	"github.com/eitanfeifel/stablecoin-exchange/internal/usecase/saga"
	"github.com/eitanfeifel/stablecoin-exchange/internal/workflow"
)

type SagaSystem struct {
	Engine       *workflow.Engine
	Orchestrator *saga.Orchestrator
}

func InitializeSaga(deps *Dependencies) (*SagaSystem, error) {
	cfg := deps.Config
	repos := deps.Repositories

	fees, err := cfg.Fees.Schedule()
	if err != nil {
		return nil, err
	}

	engine, err := workflow.NewEngine(repos.WorkflowStore, workflow.RetryPolicy{
		MaxAttempts:     cfg.Workflow.MaxAttempts,
		InitialBackoff:  cfg.Workflow.InitialBackoff,
		MaxBackoff:      cfg.Workflow.MaxBackoff,
		ActivityTimeout: cfg.Workflow.ActivityTimeout,
	}, deps.Metrics)
	if err != nil {
		return nil, fmt.Errorf("workflow engine: %w", err)
	}

	var mintingOpts []leg.MintingOption
	if cfg.FaultsEnabled() {
		mintingOpts = append(mintingOpts, leg.WithFaultPlan(leg.FaultPlan{FailMinting: cfg.Faults.FailMinting}))
		if cfg.Faults.FailMinting {
			slog.Warn("minting fault injection is enabled", "env", cfg.Env)
		}
	}

	base, bridge := cfg.Currency.Base, cfg.Currency.Bridge
	orchestrator := saga.NewOrchestrator(
		repos.PaymentRepo,
		leg.NewFunding(repos.LegRepo, repos.FeeRepo, fees.FundingFlat, base, deps.Metrics),
		leg.NewMinting(repos.LegRepo, repos.FeeRepo, fees.MintingFlat, base, bridge, deps.Metrics, mintingOpts...),
		leg.NewOfframp(repos.LegRepo, repos.FeeRepo, repos.RateRepo, fees.OfframpPercent, base, bridge, deps.Metrics),
		leg.NewCompensation(repos.LegRepo, deps.Metrics),
		deps.EventPublisher,
		deps.Metrics,
		base,
	)
	orchestrator.Register(engine)

	return &SagaSystem{
		Engine:       engine,
		Orchestrator: orchestrator,
	}, nil
}
