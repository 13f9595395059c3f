package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// OrderRepository 订单只读端口，订单由交易所侧维护
type OrderRepository interface {
	Get(ctx context.Context, id uint64) (*Order, error)
}

// CurrencyPairRepository 货币对只读端口
type CurrencyPairRepository interface {
	Get(ctx context.Context, id uint64) (*CurrencyPair, error)
}

// PairConfigRepository 交易所-货币对定价配置
type PairConfigRepository interface {
	Get(ctx context.Context, exchangeHouseID, currencyPairID uint64) (*PairConfig, error)
}

// ExchangeHouseRepository 交易所
type ExchangeHouseRepository interface {
	Get(ctx context.Context, id uint64) (*ExchangeHouse, error)
	// GetForUpdate 锁定交易所行，作为该租户付款请求生成的串行化点
	GetForUpdate(ctx context.Context, id uint64) (*ExchangeHouse, error)
	// ListWithPendingCommissions 周期内存在 pending 平台佣金的交易所
	ListWithPendingCommissions(ctx context.Context, period Period) ([]uint64, error)
}

// CommissionRepository 佣金
type CommissionRepository interface {
	SaveBatch(ctx context.Context, rows []*Commission) error
	ListByOrder(ctx context.Context, orderID uint64) ([]*Commission, error)
	SumPending(ctx context.Context, filter CommissionFilter) (PendingTotals, error)
	// MarkPaid 把筛选范围内 pending 平台佣金置为 paid，返回影响行数
	MarkPaid(ctx context.Context, filter CommissionFilter, paidAt time.Time) (int64, error)
}

// PaymentFilter 付款请求列表筛选
type PaymentFilter struct {
	ExchangeHouseID uint64
	Status          PaymentStatus
	Offset          int
	Limit           int
}

// PaymentRepository 付款请求，查询均排除已软删除行
type PaymentRepository interface {
	Create(ctx context.Context, p *CommissionPayment) error
	Get(ctx context.Context, id uint64) (*CommissionPayment, error)
	GetForUpdate(ctx context.Context, id uint64) (*CommissionPayment, error)
	// ListByHouseForUpdate 锁定并返回该交易所全部未删除请求
	ListByHouseForUpdate(ctx context.Context, exchangeHouseID uint64) ([]*CommissionPayment, error)
	List(ctx context.Context, filter PaymentFilter) ([]*CommissionPayment, int64, error)
	// Update 以 from 状态为条件写回，0 行受影响返回 ConcurrencyConflict
	Update(ctx context.Context, p *CommissionPayment, from PaymentStatus) error
	// SoftDelete 以当前状态为条件软删除，0 行受影响返回 ConcurrencyConflict
	SoftDelete(ctx context.Context, p *CommissionPayment, at time.Time) error
	ListByStatuses(ctx context.Context, statuses ...PaymentStatus) ([]*CommissionPayment, error)
}

// TransactionRunner 事务执行器，fn 内的仓储调用共享同一事务
type TransactionRunner interface {
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// RateProvider 平台佣金费率来源
type RateProvider interface {
	PlatformRate(ctx context.Context) (decimal.Decimal, error)
}

// Clock 时间来源
type Clock interface {
	Now() time.Time
}

// SystemClock 使用系统 UTC 时间
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }
