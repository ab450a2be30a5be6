package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/config"
	"go.uber.org/zap"

	appcfg "atlaswd/config"
	"atlaswd/internal/middleware"
	"atlaswd/internal/router"
	"atlaswd/pkg/atlasapi"
	"atlaswd/pkg/logger"
	"atlaswd/pkg/metrics"
	pkgotel "atlaswd/pkg/otel"
	"atlaswd/pkg/slider"
	"atlaswd/pkg/snowflake"
	"atlaswd/pkg/token"
	"atlaswd/storage"
)

func main() {
	logger.Init()
	defer logger.Sync()

	cfg := appcfg.Cfg
	if err := appcfg.Validate(); err != nil {
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

	// 链路追踪与指标需在其他组件之前初始化，redis hook 和 hertz tracer 依赖全局 provider
	if cfg.OTelEnabled {
		providers, err := pkgotel.Setup(ctx, pkgotel.ConfigFor("server"))
		if err != nil {
			logger.Logger.Fatal("Failed to initialize OpenTelemetry", zap.Error(err))
		}
		defer func() {
			if err := providers.Shutdown(context.Background()); err != nil {
				logger.Logger.Error("Failed to shutdown OpenTelemetry", zap.Error(err))
			}
		}()

		if err := metrics.InitMetrics(); err != nil {
			logger.Logger.Warn("Failed to initialize flow metrics", zap.Error(err))
		}
		if err := middleware.InitDefaultMetrics(); err != nil {
			logger.Logger.Warn("Failed to initialize HTTP metrics", zap.Error(err))
		}
	}

	// server 不连数据库，完成事件由 worker 落库
	if err := storage.Init(false); err != nil {
		logger.Logger.Fatal("Failed to initialize storage", zap.Error(err))
	}
	defer storage.Close()

	if err := snowflake.Init(cfg.SnowflakeMachineID, cfg.SnowflakeDataCenter); err != nil {
		logger.Logger.Fatal("Failed to initialize snowflake", zap.Error(err))
	}

	apiOpts := []atlasapi.Option{
		atlasapi.WithTimeout(time.Duration(cfg.AtlasAPITimeoutSeconds) * time.Second),
		atlasapi.WithBreaker(cfg.AtlasAPIMaxFailures, time.Duration(cfg.AtlasAPIResetSeconds)*time.Second),
	}
	if cfg.OTelEnabled {
		apiOpts = append(apiOpts, atlasapi.WithTracing())
	}
	if err := atlasapi.Init(cfg.AtlasAPIBaseURL, apiOpts...); err != nil {
		logger.Logger.Fatal("Failed to initialize Atlas API client", zap.Error(err))
	}

	if err := slider.Init(); err != nil {
		logger.Logger.Warn("Failed to initialize slider service", zap.Error(err))
		logger.Logger.Info("Slider service will be disabled, OTP requests above the threshold will be rejected")
	}

	// token 在中间件前初始化，middleware 依赖 token
	if err := token.Init(); err != nil {
		logger.Logger.Fatal("Failed to initialize token package", zap.Error(err))
	}

	if err := middleware.Init(); err != nil {
		logger.Logger.Fatal("Failed to initialize middlewares", zap.Error(err))
	}

	logger.Logger.Info("Server starting",
		zap.String("service", cfg.ServiceName),
		zap.String("port", cfg.ServerPort),
		zap.String("environment", cfg.Environment),
	)

	addr := net.JoinHostPort(cfg.ServerHost, cfg.ServerPort)
	opts := []config.Option{server.WithHostPorts(addr)}

	var tracerMW app.HandlerFunc
	if cfg.OTelEnabled {
		var tracerOpt config.Option
		tracerOpt, tracerMW = middleware.NewServerTracerConfig()
		opts = append(opts, tracerOpt)
	}

	h := server.Default(opts...)
	// tracer 中间件需在其他中间件之前，后续中间件才能取到 span
	if tracerMW != nil {
		h.Use(tracerMW)
	}
	router.Register(h)

	go func() {
		<-ctx.Done()
		logger.Logger.Info("Initiating graceful shutdown...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := h.Shutdown(shutdownCtx); err != nil {
			logger.Logger.Error("Failed to shutdown HTTP server", zap.Error(err))
		}
	}()

	logger.Logger.Info("HTTP server listening", zap.String("addr", addr))

	h.Spin()

	logger.Logger.Info("Server shutting down gracefully")
}
