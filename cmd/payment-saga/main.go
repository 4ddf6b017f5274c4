package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/eitanfeifel/stablecoin-exchange/internal/app/background"
	"github.com/eitanfeifel/stablecoin-exchange/internal/app/setup"
	"github.com/eitanfeifel/stablecoin-exchange/internal/config"
	"github.com/eitanfeifel/stablecoin-exchange/internal/delivery/http/handlers"
	"github.com/eitanfeifel/stablecoin-exchange/internal/delivery/mq"
	"github.com/eitanfeifel/stablecoin-exchange/internal/infrastructure/logger"
	"github.com/joho/godotenv"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const serviceName = "payment-saga"

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("failed to load .env")
	}
	// Reading config
	cfg := config.MustLoad()
	logger.Setup(cfg.LogConfig)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := setup.InitializeDependencies(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to init dependencies: %v", err)
	}
	defer deps.Close()

	sagaSystem, err := setup.InitializeSaga(deps)
	if err != nil {
		log.Fatalf("failed to init saga: %v", err)
	}
	useCases := setup.InitializeUseCases(deps, sagaSystem)

	tasks := background.NewBackgroundTasks(useCases.ExchangeRateUsecase, sagaSystem.Engine, cfg)
	if cfg.RateImport.Path != "" {
		tasks.ImportRates(ctx)
	}
	// Resume runs interrupted by the previous shutdown
	tasks.RecoverRuns(ctx)
	if err := tasks.StartAll(ctx); err != nil {
		log.Fatalf("failed to schedule background tasks: %v", err)
	}

	if deps.KafkaSubscriber != nil {
		consumer := mq.NewCancelConsumer(
			deps.KafkaSubscriber,
			useCases.PaymentUsecase,
			cfg.KafkaService.CommandsTopic,
			cfg.KafkaService.GroupID,
		)
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("cancel consumer stopped", "error", err)
			}
		}()
	}

	// gRPC health
	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(serviceName, healthpb.HealthCheckResponse_SERVING)

	lis, err := net.Listen("tcp", fmt.Sprintf("%s:%s", cfg.GRPCServer.Host, cfg.GRPCServer.Port))
	if err != nil {
		log.Fatalf("failed to listen: %v", err)
	}
	go func() {
		slog.Info("gRPC server started", "addr", lis.Addr().String())
		if err := grpcServer.Serve(lis); err != nil {
			slog.Error("gRPC server stopped", "error", err)
		}
	}()

	// HTTP API
	handler := handlers.NewHTTPPaymentHandler(useCases.PaymentUsecase, useCases.ExchangeRateUsecase)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.HTTPServer.Host, cfg.HTTPServer.Port),
		Handler:           handlers.NewRouter(handler, deps.Registry),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("HTTP server started", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("failed to serve http: %v", err)
		}
	}()

	<-ctx.Done()
	slog.Info("shutdown started")
	healthServer.SetServingStatus(serviceName, healthpb.HealthCheckResponse_NOT_SERVING)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown failed", "error", err)
	}
	grpcServer.GracefulStop()
	if err := sagaSystem.Engine.Shutdown(shutdownCtx); err != nil {
		slog.Error("workflow engine shutdown timed out, open runs resume on next start", "error", err)
	}

	slog.Info("shutdown complete")
}
