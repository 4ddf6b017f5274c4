package setup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/eitanfeifel/stablecoin-exchange/internal/config"
	"github.com/eitanfeifel/stablecoin-exchange/internal/domain"
	"github.com/eitanfeifel/stablecoin-exchange/internal/infrastructure/cache"
	"github.com/eitanfeifel/stablecoin-exchange/internal/infrastructure/kafka"
	"github.com/eitanfeifel/stablecoin-exchange/internal/infrastructure/logger"
	"github.com/eitanfeifel/stablecoin-exchange/internal/infrastructure/memory"
	"github.com/eitanfeifel/stablecoin-exchange/internal/infrastructure/metrics"
	"github.com/eitanfeifel/stablecoin-exchange/internal/infrastructure/notifier"
	"github.com/eitanfeifel/stablecoin-exchange/internal/infrastructure/postgres"
	"github.com/eitanfeifel/stablecoin-exchange/internal/infrastructure/postgres/repository"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Dependencies struct {
	Config          *config.SagaConfig
	DB              *gorm.DB
	Redis           *redis.Client
	KafkaPublisher  *kafka.DefaultKafkaPublisher
	KafkaSubscriber *kafka.DefaultKafkaSubscriber
	Registry        *prometheus.Registry
	Metrics         *metrics.SagaMetrics
	EventPublisher  domain.PaymentEventPublisher
	Repositories    *Repositories
}

type Repositories struct {
	PaymentRepo   domain.PaymentRepository
	LegRepo       domain.LegRepository
	FeeRepo       domain.FeeRepository
	RateRepo      domain.ExchangeRateRepository
	WorkflowStore domain.WorkflowStore
}

func InitializeDependencies(ctx context.Context, cfg *config.SagaConfig) (*Dependencies, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	deps := &Dependencies{
		Config:   cfg,
		Registry: registry,
		Metrics:  metrics.NewSagaMetrics(registry),
	}

	switch cfg.PaymentDB.Driver {
	case "memory":
		store := memory.NewStore()
		deps.Repositories = &Repositories{
			PaymentRepo:   store,
			LegRepo:       store,
			FeeRepo:       store,
			RateRepo:      store,
			WorkflowStore: store,
		}
		slog.Warn("using in-memory storage, payments will not survive a restart")
	default:
		db := postgres.MustInitDB(cfg)
		deps.DB = db
		deps.Repositories = &Repositories{
			PaymentRepo:   repository.NewDefaultPaymentRepository(db),
			LegRepo:       repository.NewDefaultLegRepository(db),
			FeeRepo:       repository.NewDefaultFeeRepository(db),
			RateRepo:      repository.NewDefaultExchangeRateRepository(db),
			WorkflowStore: repository.NewDefaultWorkflowRepository(db),
		}
	}

	if cfg.RedisCache.Addr != "" {
		client, err := cache.NewClient(ctx, cfg.RedisCache)
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		deps.Redis = client
		deps.Repositories.RateRepo = cache.NewRateCache(deps.Repositories.RateRepo, client, cfg.RedisCache.RateTTL)
	}

	deps.EventPublisher = initEventPublisher(deps)

	return deps, nil
}

func initEventPublisher(deps *Dependencies) domain.PaymentEventPublisher {
	cfg := deps.Config

	var publishers logger.FanOut
	if deps.DB != nil {
		publishers = append(publishers, logger.NewPGPaymentEventLogger(deps.DB))
	} else {
		publishers = append(publishers, logger.SlogPaymentEventLogger{})
	}

	if cfg.Callback.URL != "" {
		publishers = append(publishers, notifier.NewCallbackNotifier(cfg.Callback.URL, cfg.Callback.Timeout))
	}

	if cfg.KafkaService.Enabled {
		brokers := cfg.KafkaService.Brokers()
		deps.KafkaPublisher = kafka.NewDefaultKafkaPublisher(brokers)
		deps.KafkaSubscriber = kafka.NewDefaultKafkaSubscriber(brokers)
		publishers = append(publishers, kafka.NewPaymentEventPublisher(deps.KafkaPublisher, cfg.KafkaService.EventsTopic))
	}

	return publishers
}

// Close releases broker, cache and database connections.
func (d *Dependencies) Close() error {
	var errs []error
	if d.KafkaPublisher != nil {
		errs = append(errs, d.KafkaPublisher.Close())
	}
	if d.Redis != nil {
		errs = append(errs, d.Redis.Close())
	}
	if d.DB != nil {
		if sqlDB, err := d.DB.DB(); err == nil {
			errs = append(errs, sqlDB.Close())
		}
	}
	return errors.Join(errs...)
}
