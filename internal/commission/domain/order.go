package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus 订单状态
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Order 一笔已完成的换汇订单，由交易所拥有，佣金只引用它
type Order struct {
	ID              uint64
	ExchangeHouseID uint64
	CurrencyPairID  uint64
	BaseAmount      decimal.Decimal
	QuoteAmount     decimal.Decimal
	ExchangeRate    decimal.Decimal
	Status          OrderStatus
	CreatedAt       time.Time
}

// CalculationType 报价金额由基础金额乘或除以汇率得到
type CalculationType string

const (
	CalculationMultiply CalculationType = "multiply"
	CalculationDivide   CalculationType = "divide"
)

// Valid 是否为已知计算方式
func (t CalculationType) Valid() bool {
	return t == CalculationMultiply || t == CalculationDivide
}

// CurrencyPair 货币对
type CurrencyPair struct {
	ID              uint64
	BaseCurrency    string
	QuoteCurrency   string
	Symbol          string
	CurrentRate     decimal.Decimal
	CalculationType CalculationType
}

// CommissionModel 交易所在货币对上的定价模式
type CommissionModel string

const (
	ModelPercentage CommissionModel = "percentage"
	ModelSpread     CommissionModel = "spread"
	ModelMixed      CommissionModel = "mixed"
)

// PairConfig 交易所-货币对定价配置（exchange_house_currency_pair）
type PairConfig struct {
	ID                uint64
	ExchangeHouseID   uint64
	CurrencyPairID    uint64
	CommissionModel   CommissionModel
	CommissionPercent *decimal.Decimal
	BuyRate           *decimal.Decimal
	SellRate          *decimal.Decimal
	MinAmount         decimal.Decimal
	// 0 表示不限
	MaxAmount decimal.Decimal
	IsActive  bool
}

// Validate 校验定价模式所需字段
func (c *PairConfig) Validate() error {
	if !c.IsActive {
		return NewError(KindInvalidPricingConfig, "pricing config for pair %d is inactive", c.CurrencyPairID)
	}
	switch c.CommissionModel {
	case ModelPercentage:
		if c.CommissionPercent == nil {
			return NewError(KindInvalidPricingConfig, "percentage model requires commission_percent")
		}
	case ModelSpread:
		if c.BuyRate == nil {
			return NewError(KindInvalidPricingConfig, "spread model requires buy_rate")
		}
	case ModelMixed:
		if c.BuyRate == nil || c.CommissionPercent == nil {
			return NewError(KindInvalidPricingConfig, "mixed model requires buy_rate and commission_percent")
		}
	default:
		return NewError(KindInvalidPricingConfig, "unknown commission model %q", c.CommissionModel)
	}
	if c.CommissionPercent != nil && c.CommissionPercent.IsNegative() {
		return NewError(KindInvalidPricingConfig, "commission_percent must not be negative")
	}
	if c.BuyRate != nil && !c.BuyRate.IsPositive() {
		return NewError(KindInvalidPricingConfig, "buy_rate must be positive")
	}
	if c.SellRate != nil && c.BuyRate != nil && c.SellRate.LessThan(*c.BuyRate) {
		return NewError(KindInvalidPricingConfig, "sell_rate %s is below buy_rate %s", c.SellRate, c.BuyRate)
	}
	return nil
}

// CheckAmount 基础金额需落在 [min, max] 内
func (c *PairConfig) CheckAmount(amount decimal.Decimal) error {
	if amount.LessThan(c.MinAmount) {
		return NewError(KindValidation, "base amount %s is below minimum %s", amount, c.MinAmount)
	}
	if c.MaxAmount.IsPositive() && amount.GreaterThan(c.MaxAmount) {
		return NewError(KindValidation, "base amount %s exceeds maximum %s", amount, c.MaxAmount)
	}
	return nil
}

// ExchangeHouseStatus 交易所状态
type ExchangeHouseStatus string

const (
	ExchangeHouseActive    ExchangeHouseStatus = "active"
	ExchangeHouseSuspended ExchangeHouseStatus = "suspended"
)

// ExchangeHouse 平台下的租户
type ExchangeHouse struct {
	ID                  uint64
	Name                string
	Status              ExchangeHouseStatus
	ZeroCommissionPromo bool
	PromoExpiresAt      *time.Time
}

// PromoActiveAt 零佣金促销在 at 时刻是否有效
func (h *ExchangeHouse) PromoActiveAt(at time.Time) bool {
	if !h.ZeroCommissionPromo {
		return false
	}
	return h.PromoExpiresAt == nil || at.Before(*h.PromoExpiresAt)
}
