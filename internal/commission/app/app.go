// Package app 组装佣金服务的仓储、设置与应用服务，供 HTTP 服务和批处理命令共用
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/wyfcoding/commissionhub/internal/commission/application"
	"github.com/wyfcoding/commissionhub/internal/commission/domain"
	"github.com/wyfcoding/commissionhub/internal/commission/infrastructure/messaging"
	"github.com/wyfcoding/commissionhub/internal/commission/infrastructure/persistence/mysql"
	settingsapp "github.com/wyfcoding/commissionhub/internal/settings/application"
	settingsdomain "github.com/wyfcoding/commissionhub/internal/settings/domain"
	settingscache "github.com/wyfcoding/commissionhub/internal/settings/infrastructure/cache"
	settingsmysql "github.com/wyfcoding/commissionhub/internal/settings/infrastructure/persistence/mysql"
	"github.com/wyfcoding/commissionhub/pkg/cache"
	"github.com/wyfcoding/commissionhub/pkg/config"
	"github.com/wyfcoding/commissionhub/pkg/db"
	"github.com/wyfcoding/commissionhub/pkg/metrics"
	"github.com/wyfcoding/commissionhub/pkg/mq"
	"gorm.io/gorm"
)

// App 已组装的服务集合
type App struct {
	Calculator  *application.CalculatorService
	Aggregator  *application.AggregatorService
	Lifecycle   *application.LifecycleService
	Maintenance *application.ReconciliationService
	Settings    *settingsapp.Provider

	// 以下为可选基础设施，未启用时为 nil
	Redis    *cache.RedisCache
	Producer *mq.KafkaProducer

	closers []func() error
	checks  []func(ctx context.Context) error
}

// Ping 检查数据库与 Redis 是否可用
func (a *App) Ping(ctx context.Context) error {
	var errs []error
	for _, check := range a.checks {
		if err := check(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close 逆序释放资源
func (a *App) Close() error {
	if a == nil {
		return nil
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Options 由配置推导的业务参数
func Options(cfg *config.Config) application.Options {
	return application.Options{
		AllowZeroManual:    cfg.Commission.AllowZeroManual,
		ConflictRetryDelay: time.Duration(cfg.Commission.ConflictRetryDelay) * time.Millisecond,
	}
}

// ScheduledMinAmount 批量生成的最小金额
func ScheduledMinAmount(cfg *config.Config) (decimal.Decimal, error) {
	v, err := decimal.NewFromString(cfg.Commission.ScheduledMinAmount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid commission.scheduled_min_amount %q: %w", cfg.Commission.ScheduledMinAmount, err)
	}
	return v, nil
}

// Build 按配置打开数据库、缓存与消息队列并创建应用服务。
// 返回错误时已打开的资源会被释放。
func Build(ctx context.Context, cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) (_ *App, err error) {
	a := &App{}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	defaultRate, err := decimal.NewFromString(cfg.Settings.DefaultPlatformRate)
	if err != nil {
		return nil, fmt.Errorf("invalid settings.default_platform_rate %q: %w", cfg.Settings.DefaultPlatformRate, err)
	}

	repos, settingsDB, err := a.openStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if cfg.Redis.Enabled {
		a.Redis, err = cache.New(ctx, cache.Config{
			Host:         cfg.Redis.Host,
			Port:         cfg.Redis.Port,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			MaxPoolSize:  cfg.Redis.MaxPoolSize,
			ConnTimeout:  cfg.Redis.ConnTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, a.Redis.Close)
		client := a.Redis.Client()
		a.checks = append(a.checks, func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("redis: %w", err)
			}
			return nil
		})
	}

	ttl := time.Duration(cfg.Settings.CacheTTL) * time.Second
	var settingsCache settingsdomain.Cache
	switch cfg.Settings.CacheDriver {
	case "redis":
		settingsCache = settingscache.NewRedisCache(a.Redis)
	default:
		settingsCache = settingscache.NewMemoryCache(ttl)
	}
	a.Settings = settingsapp.NewProvider(settingsmysql.NewSettingStore(settingsDB), settingsCache, ttl, defaultRate, m, logger)

	var publisher domain.EventPublisher = messaging.NoopPublisher{}
	if cfg.Kafka.Enabled {
		a.Producer = mq.NewProducer(KafkaConfig(cfg))
		a.closers = append(a.closers, a.Producer.Close)
		publisher = messaging.NewKafkaEventPublisher(a.Producer, cfg.Kafka.PaymentEventTopic)
	}

	opts := Options(cfg)
	clock := domain.SystemClock{}
	a.Calculator = application.NewCalculatorService(repos, opts, a.Settings, clock, m, logger)
	a.Aggregator = application.NewAggregatorService(repos, opts, clock, publisher, m, logger)
	a.Lifecycle = application.NewLifecycleService(repos, opts, clock, publisher, m, logger)
	a.Maintenance = application.NewReconciliationService(repos, clock, m, logger)
	return a, nil
}

// KafkaConfig 转换为 mq 包的配置
func KafkaConfig(cfg *config.Config) mq.KafkaConfig {
	return mq.KafkaConfig{
		Brokers:        cfg.Kafka.Brokers,
		GroupID:        cfg.Kafka.GroupID,
		SessionTimeout: cfg.Kafka.SessionTimeout,
		MaxRetries:     cfg.Kafka.MaxRetries,
		RetryBackoff:   cfg.Kafka.RetryBackoff,
	}
}

func (a *App) openStorage(ctx context.Context, cfg *config.Config) (application.Repositories, *gorm.DB, error) {
	dbCfg := db.Config{
		Driver:             cfg.Database.Driver,
		DSN:                cfg.Database.DSN,
		MaxOpenConns:       cfg.Database.MaxOpenConns,
		MaxIdleConns:       cfg.Database.MaxIdleConns,
		ConnMaxLifetime:    cfg.Database.ConnMaxLifetime,
		LogEnabled:         cfg.Database.LogEnabled,
		SlowQueryThreshold: cfg.Database.SlowQueryThreshold,
	}
	migrate := cfg.Database.AutoMigrate
	if cfg.Database.Driver == "memory" {
		// memory 即进程内 sqlite，每次 Build 独立一个库
		dbCfg.Driver = "sqlite"
		dbCfg.DSN = fmt.Sprintf("file:commission_%s?mode=memory&cache=shared", uuid.NewString())
		// 共享缓存下并发写会返回 SQLITE_LOCKED，单连接串行执行；
		// 最后一个连接关闭时内存库会被释放
		dbCfg.MaxOpenConns = 1
		dbCfg.MaxIdleConns = 1
		dbCfg.ConnMaxLifetime = 0
		migrate = true
	}

	gormDB, err := db.Open(ctx, dbCfg)
	if err != nil {
		return application.Repositories{}, nil, err
	}
	a.closers = append(a.closers, func() error { return db.Close(gormDB) })
	a.checks = append(a.checks, func(ctx context.Context) error {
		sqlDB, err := gormDB.DB()
		if err == nil {
			err = sqlDB.PingContext(ctx)
		}
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		return nil
	})

	if migrate {
		models := append([]any{&settingsmysql.SettingPO{}}, mysql.Models()...)
		if err := gormDB.WithContext(ctx).AutoMigrate(models...); err != nil {
			return application.Repositories{}, nil, fmt.Errorf("failed to migrate schema: %w", err)
		}
	}

	return application.Repositories{
		Orders:      mysql.NewOrderRepository(gormDB),
		Pairs:       mysql.NewCurrencyPairRepository(gormDB),
		Configs:     mysql.NewPairConfigRepository(gormDB),
		Houses:      mysql.NewExchangeHouseRepository(gormDB),
		Commissions: mysql.NewCommissionRepository(gormDB),
		Payments:    mysql.NewPaymentRepository(gormDB),
		Tx:          db.NewTxManager(gormDB),
	}, gormDB, nil
}
