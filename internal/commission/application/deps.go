package application

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/wyfcoding/commissionhub/internal/commission/domain"
	"github.com/wyfcoding/commissionhub/pkg/utils"
)

// Repositories 应用服务依赖的仓储与事务执行器
type Repositories struct {
	Orders      domain.OrderRepository
	Pairs       domain.CurrencyPairRepository
	Configs     domain.PairConfigRepository
	Houses      domain.ExchangeHouseRepository
	Commissions domain.CommissionRepository
	Payments    domain.PaymentRepository
	Tx          domain.TransactionRunner
}

// Options 业务开关
type Options struct {
	// 手动生成是否允许 0 金额请求
	AllowZeroManual bool
	// 并发冲突重试前的等待
	ConflictRetryDelay time.Duration
}

type noopPublisher struct{}

func (noopPublisher) PublishPaymentEvent(context.Context, domain.PaymentRequestEvent) error { return nil }

func publisherOrNoop(p domain.EventPublisher) domain.EventPublisher {
	if p == nil {
		return noopPublisher{}
	}
	return p
}

// publish 事务提交后发布事件，失败只记录日志
func publish(ctx context.Context, pub domain.EventPublisher, logger *slog.Logger, event domain.PaymentRequestEvent) {
	if err := pub.PublishPaymentEvent(ctx, event); err != nil {
		logger.WarnContext(ctx, "failed to publish payment event",
			"event_type", event.Type, "payment_id", event.PaymentID, "error", err)
	}
}

func clockOrSystem(c domain.Clock) domain.Clock {
	if c == nil {
		return domain.SystemClock{}
	}
	return c
}

func isConflict(err error) bool {
	return errors.Is(err, domain.ErrConcurrencyConflict)
}

// retryOnConflict 并发冲突时重新读取并校验一次
func retryOnConflict(ctx context.Context, delay time.Duration, fn func() error) error {
	return utils.RetryIf(ctx, 2, delay, isConflict, fn)
}
