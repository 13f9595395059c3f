// commissionjob 佣金结算批处理命令，供定时任务与运维人员调用
//
//	commissionjob -task generate [-period-start 2024-01-01 -period-end 2024-01-31] [-min-amount 0.01]
//	commissionjob -task dedup   [-dry-run]
//	commissionjob -task purge   [-dry-run] [-age-months 6] [-confirm-stale]
//	commissionjob -task repair  [-dry-run]
//
// 报告以 JSON 输出到标准输出，存在失败行时退出码为 2
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/commissionhub/internal/commission/app"
	"github.com/wyfcoding/commissionhub/internal/commission/application"
	"github.com/wyfcoding/commissionhub/internal/commission/domain"
	"github.com/wyfcoding/commissionhub/pkg/config"
	"github.com/wyfcoding/commissionhub/pkg/logger"
)

type options struct {
	configPath   string
	task         string
	dryRun       bool
	periodStart  string
	periodEnd    string
	minAmount    string
	ageMonths    int
	confirmStale bool
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", config.GetEnv("COMMISSION_CONFIG", "configs/commission/config.toml"), "path to config file")
	flag.StringVar(&opts.task, "task", "", "task to run: generate, dedup, purge, repair")
	flag.BoolVar(&opts.dryRun, "dry-run", false, "report changes without applying them")
	flag.StringVar(&opts.periodStart, "period-start", "", "generate: period start (YYYY-MM-DD), defaults to previous month")
	flag.StringVar(&opts.periodEnd, "period-end", "", "generate: period end (YYYY-MM-DD)")
	flag.StringVar(&opts.minAmount, "min-amount", "", "generate: skip houses below this total, defaults to config")
	flag.IntVar(&opts.ageMonths, "age-months", -1, "purge: pending age in months treated as stale, defaults to config, 0 disables")
	flag.BoolVar(&opts.confirmStale, "confirm-stale", false, "purge: delete stale pending requests")
	flag.Parse()

	report, err := run(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "commissionjob: %v\n", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		fmt.Fprintf(os.Stderr, "commissionjob: encode report: %v\n", err)
		os.Exit(1)
	}
	if report.Failed > 0 {
		os.Exit(2)
	}
}

var tasks = map[string]bool{"generate": true, "dedup": true, "purge": true, "repair": true}

func run(opts options) (*application.Report, error) {
	if !tasks[opts.task] {
		return nil, fmt.Errorf("unknown task %q (want generate, dedup, purge or repair)", opts.task)
	}

	// 1. 加载配置
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Database.Driver == "memory" {
		return nil, fmt.Errorf("database driver memory has nothing to process")
	}

	// 2. 初始化日志，报告占用标准输出，日志写到文件或 stderr
	logCfg := logger.Config{
		Level:      cfg.Logger.Level,
		Format:     cfg.Logger.Format,
		Output:     cfg.Logger.Output,
		FilePath:   cfg.Logger.FilePath,
		MaxSize:    cfg.Logger.MaxSize,
		MaxBackups: cfg.Logger.MaxBackups,
		MaxAge:     cfg.Logger.MaxAge,
		Compress:   cfg.Logger.Compress,
		WithCaller: cfg.Logger.WithCaller,
		Service:    cfg.ServiceName + "-job",
	}
	if logCfg.Output == "stdout" {
		logCfg.Output = "stderr"
	}
	log, err := logger.Init(logCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. 初始化应用服务
	svc, err := app.Build(ctx, cfg, nil, log)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.Error(context.Background(), "failed to release resources", "error", err)
		}
	}()

	logger.Info(ctx, "running commission job", "task", opts.task, "dry_run", opts.dryRun)
	defer logger.LogDuration(ctx, "commission job finished", "task", opts.task)()

	// 4. 执行任务
	switch opts.task {
	case "generate":
		period, err := jobPeriod(opts)
		if err != nil {
			return nil, err
		}
		minAmount, err := jobMinAmount(cfg, opts)
		if err != nil {
			return nil, err
		}
		return svc.Aggregator.GenerateForPeriod(ctx, period, minAmount)
	case "dedup":
		return svc.Maintenance.DeduplicateOpenRequests(ctx, opts.dryRun)
	case "purge":
		age := opts.ageMonths
		if age < 0 {
			age = cfg.Commission.StalePendingMonths
		}
		return svc.Maintenance.PurgeInvalidRequests(ctx, application.PurgeOptions{
			DryRun:       opts.dryRun,
			AgeMonths:    age,
			ConfirmStale: opts.confirmStale,
		})
	case "repair":
		return svc.Maintenance.RepairPaidCascades(ctx, opts.dryRun)
	default:
		return nil, fmt.Errorf("unknown task %q (want generate, dedup, purge or repair)", opts.task)
	}
}

func jobPeriod(opts options) (domain.Period, error) {
	if opts.periodStart == "" && opts.periodEnd == "" {
		return domain.PreviousMonth(domain.SystemClock{}.Now()), nil
	}
	return domain.ParsePeriod(opts.periodStart, opts.periodEnd)
}

func jobMinAmount(cfg *config.Config, opts options) (decimal.Decimal, error) {
	if opts.minAmount == "" {
		return app.ScheduledMinAmount(cfg)
	}
	v, err := decimal.NewFromString(opts.minAmount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid -min-amount %q: %w", opts.minAmount, err)
	}
	return v, nil
}
