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
	hertzconfig "github.com/cloudwego/hertz/pkg/common/config"
	"go.uber.org/zap"

	"HealthCheckIn/config"
	"HealthCheckIn/internal/cache"
	"HealthCheckIn/internal/dashboard"
	"HealthCheckIn/internal/event"
	"HealthCheckIn/internal/fetcher"
	"HealthCheckIn/internal/handler"
	"HealthCheckIn/internal/middleware"
	"HealthCheckIn/internal/model"
	"HealthCheckIn/internal/reconcile"
	"HealthCheckIn/internal/repository"
	"HealthCheckIn/internal/router"
	"HealthCheckIn/internal/service"
	"HealthCheckIn/pkg/api"
	"HealthCheckIn/pkg/geo"
	"HealthCheckIn/pkg/logger"
	"HealthCheckIn/pkg/otel"
	"HealthCheckIn/pkg/snowflake"
	"HealthCheckIn/storage"
	"HealthCheckIn/storage/database"
	"HealthCheckIn/storage/redis"
)

var version = "dev"

func main() {
	logger.Init()
	defer logger.Sync()

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

	if err := snowflake.Init(config.Cfg.SnowflakeMachineID, config.Cfg.SnowflakeDataCenter); err != nil {
		logger.Logger.Fatal("Failed to initialize snowflake", zap.Error(err))
	}

	// otel 必须在中间件和客户端之前安装，否则拿到的是 no-op provider
	if config.Cfg.OTelEnabled {
		shutdownOTel, err := otel.InitOpenTelemetry(ctx, otel.ConfigFromEnv(version))
		if err != nil {
			logger.Logger.Warn("Failed to initialize OpenTelemetry, telemetry disabled", zap.Error(err))
		} else {
			defer func() {
				if err := shutdownOTel(context.Background()); err != nil {
					logger.Logger.Error("Failed to shutdown OpenTelemetry", zap.Error(err))
				}
			}()
		}
	}

	if err := storage.Init(); err != nil {
		logger.Logger.Fatal("Failed to initialize storage", zap.Error(err))
	}
	defer storage.Close()

	if err := middleware.Init(); err != nil {
		logger.Logger.Fatal("Failed to initialize middlewares", zap.Error(err))
	}

	client, err := api.NewFromConfig()
	if err != nil {
		logger.Logger.Fatal("Failed to create remote API client", zap.Error(err))
	}

	provider, err := geo.NewFromConfig()
	if err != nil {
		logger.Logger.Fatal("Failed to create location provider", zap.Error(err))
	}

	// 天气缓存，启用 redis 时从镜像预热
	weatherCache := cache.NewExpiring[model.WeatherSnapshot](config.Cfg.WeatherCacheTTL, nil)
	if rdb := redis.Client(); rdb != nil {
		cache.AttachMirror(ctx, weatherCache, cache.NewRedisMirror(rdb, redis.Key), fetcher.DatasetWeather)
	}

	bus := event.NewBus()
	bridgeCtx, stopBridge := context.WithCancel(ctx)
	defer stopBridge()
	if config.Cfg.RabbitMQEnabled {
		bridge := event.NewAMQPBridge(bus, config.Cfg.EventExchange)
		bus.Forward(bridge)
		go bridge.Run(bridgeCtx)
	}

	group := fetcher.NewGroup()
	submissions := fetcher.NewSubmissions(client, group)
	orch := dashboard.New(
		submissions,
		fetcher.NewPoints(client, group),
		fetcher.NewWeather(client, provider, weatherCache, group, fetcher.WeatherConfig{
			Fallback: model.Coordinate{
				Latitude:  config.Cfg.FallbackLatitude,
				Longitude: config.Cfg.FallbackLongitude,
			},
			GracePeriod: config.Cfg.LocationGracePeriod,
		}),
		bus,
		dashboard.Config{
			RefreshInterval:     config.Cfg.RefreshInterval,
			CelebrationDuration: config.Cfg.CelebrationDuration,
			PointsPopupDuration: config.Cfg.PointsPopupDuration,
		},
	)

	// archive 为 nil 接口时 service 跳过归档
	var archive service.Archive
	if db := database.DB(); db != nil {
		archive = repository.NewSubmissionArchive(db)
	}

	schemas := service.NewSchemaCache(fetcher.NewSchema(client, group), config.Cfg.SchemaCacheTTL, nil)
	history := service.NewHistoryService(orch, submissions, archive, schemas, reconcile.New())
	checkIns := service.NewCheckInService(client, schemas, archive, bus)

	if err := provider.RequestPermission(ctx); err != nil {
		logger.Logger.Warn("Location permission request failed", zap.Error(err))
	}
	orch.Start(ctx)
	go orch.LoadInitial(ctx)

	addr := net.JoinHostPort(config.Cfg.ServerHost, config.Cfg.ServerPort)
	opts := []hertzconfig.Option{server.WithHostPorts(addr)}
	var tracing app.HandlerFunc
	if config.Cfg.OTelEnabled {
		var tracer hertzconfig.Option
		tracer, tracing = middleware.NewServerTracerConfig()
		opts = append(opts, tracer)
	}

	h := server.Default(opts...)
	if tracing != nil {
		h.Use(tracing)
	}
	router.Register(h.Engine, handler.New(orch, history, checkIns))

	serve(ctx, h, addr)

	// HTTP server -> 同步核心 -> 事件桥 -> 存储（defer）
	orch.Close()
	stopBridge()
	logger.Logger.Info("Agent shut down gracefully")
}

// serve 阻塞到服务关闭
func serve(ctx context.Context, h *server.Hertz, addr string) {
	go func() {
		<-ctx.Done()
		logger.Logger.Info("Initiating graceful shutdown...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := h.Shutdown(shutdownCtx); err != nil {
			logger.Logger.Error("Failed to shutdown HTTP server", zap.Error(err))
		}
	}()

	logger.Logger.Info("Agent starting",
		zap.String("service", config.Cfg.ServiceName),
		zap.String("addr", addr),
		zap.String("environment", config.Cfg.Environment),
		zap.String("version", version),
	)

	h.Spin()
}
