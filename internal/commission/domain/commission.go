package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CommissionType 佣金归属
type CommissionType string

const (
	CommissionTypePlatform      CommissionType = "platform"
	CommissionTypeExchangeHouse CommissionType = "exchange_house"
)

// CommissionStatus 佣金状态
type CommissionStatus string

const (
	CommissionStatusPending   CommissionStatus = "pending"
	CommissionStatusPaid      CommissionStatus = "paid"
	CommissionStatusCancelled CommissionStatus = "cancelled"
)

// Commission 每个订单每种类型一行
type Commission struct {
	ID              uint64
	OrderID         uint64
	ExchangeHouseID uint64
	Type            CommissionType
	Amount          decimal.Decimal
	RatePercent     decimal.Decimal
	BaseAmount      decimal.Decimal
	Status          CommissionStatus
	HasPromo        bool
	PaidAt          *time.Time
	CreatedAt       time.Time
}

// PendingTotals 一个结算周期内未结算平台佣金的汇总
type PendingTotals struct {
	TotalAmount decimal.Decimal `json:"total_amount"`
	OrderCount  int64           `json:"order_count"`
	TotalVolume decimal.Decimal `json:"total_volume"`
}

// CommissionFilter 级联/汇总使用的佣金筛选条件：平台佣金、pending、指定交易所、创建时间在周期内
type CommissionFilter struct {
	ExchangeHouseID uint64
	Period          Period
}
