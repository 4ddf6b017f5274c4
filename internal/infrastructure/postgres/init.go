package postgres

import (
	"log"
	"log/slog"

	"github.com/eitanfeifel/stablecoin-exchange/internal/config"
	"github.com/eitanfeifel/stablecoin-exchange/internal/infrastructure/migrate"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func MustInitDB(cfg *config.SagaConfig) *gorm.DB {
	dsn := cfg.PaymentDB.Dsn
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		log.Fatalf("failed to init db: %v\n", err.Error())
	}

	report, err := migrate.RunMigrations(db, cfg.PaymentDB.MigrationsPath)
	if err != nil {
		log.Fatalf("failed to apply migrations: %v\n", err)
	}
	slog.Info("database schema ready",
		"from_version", report.From.Version,
		"version", report.To.Version,
		"applied", report.Applied(),
	)

	return db
}
