package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"atlaswd/config"
	"atlaswd/internal/queue"
	"atlaswd/internal/repository"
	"atlaswd/pkg/logger"
	"atlaswd/pkg/metrics"
	pkgotel "atlaswd/pkg/otel"
	"atlaswd/pkg/sms"
	"atlaswd/storage"
	"atlaswd/storage/database"
)

func main() {
	logger.Init()
	defer logger.Sync()

	cfg := config.Cfg
	if err := config.Validate(); err != nil {
		logger.Logger.Fatal("Invalid configuration", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Logger.Info("Received shutdown signal",
			zap.String("signal", sig.String()),
		)
		cancel()
	}()

	if cfg.OTelEnabled {
		providers, err := pkgotel.Setup(ctx, pkgotel.ConfigFor("worker"))
		if err != nil {
			logger.Logger.Fatal("Failed to initialize OpenTelemetry", zap.Error(err))
		}
		defer func() {
			if err := providers.Shutdown(context.Background()); err != nil {
				logger.Logger.Error("Failed to shutdown OpenTelemetry", zap.Error(err))
			}
		}()

		if err := metrics.InitMetrics(); err != nil {
			logger.Logger.Warn("Failed to initialize metrics", zap.Error(err))
		}
	}

	// worker 负责落库，需要数据库连接
	if err := storage.Init(true); err != nil {
		logger.Logger.Fatal("Failed to initialize storage", zap.Error(err))
	}
	defer storage.Close()

	if err := sms.Init(); err != nil {
		logger.Logger.Warn("Failed to initialize SMS service", zap.Error(err))
		logger.Logger.Info("SMS service will be disabled, welcome SMS will not be sent")
	}

	handler := queue.NewFlowCompletedHandler(
		repository.NewFlowRepository(database.DB()),
		sms.SendWelcomeSMS,
	)

	logger.Logger.Info("Worker service starting",
		zap.String("service", cfg.ServiceName+"-worker"),
		zap.String("environment", cfg.Environment),
	)

	if err := queue.StartFlowCompletedConsumer(ctx, handler); err != nil && !errors.Is(err, context.Canceled) {
		logger.Logger.Error("Flow completed consumer stopped", zap.Error(err))
	}

	logger.Logger.Info("Worker service shutting down gracefully")
}
