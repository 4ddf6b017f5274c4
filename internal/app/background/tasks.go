package background

import (
	"context"
	"log/slog"
	"time"

	"github.com/eitanfeifel/stablecoin-exchange/internal/config"
	"github.com/eitanfeifel/stablecoin-exchange/internal/usecase"
	"github.com/robfig/cron/v3"
)

const jobTimeout = 2 * time.Minute

// Recoverer resumes open workflow runs from their journal.
type Recoverer interface {
	Recover(ctx context.Context) (int, error)
}

type BackgroundTasks struct {
	RateUsecase usecase.ExchangeRateUsecase
	Recoverer   Recoverer
	cfg         *config.SagaConfig
	cron        *cron.Cron
}

func NewBackgroundTasks(rateUC usecase.ExchangeRateUsecase, recoverer Recoverer, cfg *config.SagaConfig) *BackgroundTasks {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(slog.Default().Handler(), slog.LevelInfo))
	return &BackgroundTasks{
		RateUsecase: rateUC,
		Recoverer:   recoverer,
		cfg:         cfg,
		cron:        cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger))),
	}
}

// StartAll schedules the jobs and stops the scheduler once ctx is done.
func (bt *BackgroundTasks) StartAll(ctx context.Context) error {
	if bt.cfg.RateImport.Path != "" {
		if _, err := bt.cron.AddFunc(bt.cfg.RateImport.Schedule, func() { bt.ImportRates(ctx) }); err != nil {
			return err
		}
		slog.Info("scheduled rate import", "schedule", bt.cfg.RateImport.Schedule, "path", bt.cfg.RateImport.Path)
	}

	if _, err := bt.cron.AddFunc(bt.cfg.Workflow.RecoverySchedule, func() { bt.RecoverRuns(ctx) }); err != nil {
		return err
	}
	slog.Info("scheduled workflow recovery", "schedule", bt.cfg.Workflow.RecoverySchedule)

	bt.cron.Start()
	go func() {
		<-ctx.Done()
		<-bt.cron.Stop().Done()
	}()

	return nil
}

func (bt *BackgroundTasks) ImportRates(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, jobTimeout)
	defer cancel()

	n, err := bt.RateUsecase.ImportFile(ctx, bt.cfg.RateImport.Path)
	if err != nil {
		slog.Error("rate import failed", "path", bt.cfg.RateImport.Path, "error", err)
		return
	}
	slog.Info("rates imported", "path", bt.cfg.RateImport.Path, "count", n)
}

func (bt *BackgroundTasks) RecoverRuns(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, jobTimeout)
	defer cancel()

	n, err := bt.Recoverer.Recover(ctx)
	if err != nil {
		slog.Error("workflow recovery failed", "error", err)
		return
	}
	if n > 0 {
		slog.Info("workflow runs recovered", "count", n)
	}
}
