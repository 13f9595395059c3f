// CommissionService 主程序
// 功能：订单佣金计算、付款请求生成与对账、平台设置管理
// 架构：DDD + HTTP(gin) + Kafka，gRPC 仅提供健康检查
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/wyfcoding/commissionhub/internal/commission/app"
	"github.com/wyfcoding/commissionhub/internal/commission/interfaces/consumer"
	"github.com/wyfcoding/commissionhub/internal/commission/interfaces/health"
	httphandler "github.com/wyfcoding/commissionhub/internal/commission/interfaces/http"
	"github.com/wyfcoding/commissionhub/pkg/config"
	"github.com/wyfcoding/commissionhub/pkg/logger"
	"github.com/wyfcoding/commissionhub/pkg/metrics"
	"github.com/wyfcoding/commissionhub/pkg/middleware"
	"github.com/wyfcoding/commissionhub/pkg/mq"
	"github.com/wyfcoding/commissionhub/pkg/ratelimit"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", config.GetEnv("COMMISSION_CONFIG", "configs/commission/config.toml"), "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "commission service: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	// 1. 加载配置
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// 2. 初始化日志
	log, err := logger.Init(logger.Config{
		Level:      cfg.Logger.Level,
		Format:     cfg.Logger.Format,
		Output:     cfg.Logger.Output,
		FilePath:   cfg.Logger.FilePath,
		MaxSize:    cfg.Logger.MaxSize,
		MaxBackups: cfg.Logger.MaxBackups,
		MaxAge:     cfg.Logger.MaxAge,
		Compress:   cfg.Logger.Compress,
		WithCaller: cfg.Logger.WithCaller,
		Service:    cfg.ServiceName,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info(ctx, "starting commission service",
		"environment", cfg.Environment,
		"database", cfg.Database.Driver,
		"kafka", cfg.Kafka.Enabled,
	)

	// 3. 初始化指标
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(cfg.ServiceName, registry)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	// 4. 初始化存储、缓存、消息队列与应用服务
	svc, err := app.Build(ctx, cfg, m, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.Error(context.Background(), "failed to release resources", "error", err)
		}
	}()

	minAmount, err := app.ScheduledMinAmount(cfg)
	if err != nil {
		return err
	}

	// 5. 创建 HTTP 服务器
	handler := httphandler.NewHandler(svc.Calculator, svc.Aggregator, svc.Lifecycle, svc.Maintenance, svc.Settings, httphandler.Defaults{
		ScheduledMinAmount: minAmount,
		StalePendingMonths: cfg.Commission.StalePendingMonths,
	})
	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:           newRouter(cfg, svc, handler, m),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       time.Duration(cfg.HTTP.ReadTimeout) * time.Second,
		WriteTimeout:      time.Duration(cfg.HTTP.WriteTimeout) * time.Second,
	}

	var (
		healthSrv *health.Server
		grpcLis   net.Listener
	)
	if cfg.GRPC.Enabled {
		grpcAddr := fmt.Sprintf("%s:%d", cfg.GRPC.Host, cfg.GRPC.Port)
		if grpcLis, err = net.Listen("tcp", grpcAddr); err != nil {
			return fmt.Errorf("failed to listen on %s: %w", grpcAddr, err)
		}
		healthSrv = health.NewServer(cfg.ServiceName, cfg.GRPC.MaxConcurrentStreams, svc.Ping)
	}

	g, gctx := errgroup.WithContext(ctx)

	// 6. 启动 HTTP 服务器
	g.Go(func() error {
		logger.Info(gctx, "starting HTTP server", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	// 7. 启动指标服务
	if cfg.Metrics.Enabled {
		g.Go(func() error {
			return metrics.Serve(gctx, cfg.Metrics.Port, cfg.Metrics.Path, registry)
		})
	}

	// 8. gRPC 健康检查
	if healthSrv != nil {
		g.Go(func() error {
			logger.Info(gctx, "starting gRPC health server", "addr", grpcLis.Addr().String())
			return healthSrv.Serve(grpcLis)
		})
		g.Go(func() error {
			healthSrv.Watch(gctx, time.Duration(cfg.GRPC.HealthCheckInterval)*time.Second)
			healthSrv.GracefulStop()
			return nil
		})
	}

	// 9. 订阅订单完成事件
	if cfg.Kafka.Enabled {
		dlq := mq.NewDeadLetterQueue(svc.Producer, cfg.Kafka.DeadLetterTopic)
		orders := mq.NewConsumer(app.KafkaConfig(cfg), cfg.Kafka.OrderCompletedTopic, dlq)
		orderHandler := consumer.NewOrderCompletedHandler(svc.Calculator, log)
		g.Go(func() error {
			defer orders.Close()
			return orders.Run(gctx, orderHandler.Handle)
		})
	}

	// 10. 优雅关停
	g.Go(func() error {
		<-gctx.Done()
		logger.Info(context.Background(), "shutting down commission service")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info(context.Background(), "commission service stopped")
	return nil
}

func newRouter(cfg *config.Config, svc *app.App, handler *httphandler.Handler, m *metrics.Metrics) *gin.Engine {
	if !cfg.IsDev() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.GinRecovery())
	router.Use(middleware.GinLogging(m))
	if cfg.RateLimit.Enabled {
		var limiter ratelimit.RateLimiter = ratelimit.NewLocalRateLimiter(10 * time.Minute)
		if svc.Redis != nil {
			limiter = ratelimit.NewRedisRateLimiter(svc.Redis.Client())
		}
		router.Use(middleware.RateLimit(limiter, cfg.RateLimit))
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": cfg.ServiceName,
		})
	})

	handler.RegisterRoutes(router)
	return router
}
