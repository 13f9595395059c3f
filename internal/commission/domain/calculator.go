package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	// MoneyScale 金额落库精度
	MoneyScale int32 = 2
	// RateScale 费率/汇率精度
	RateScale int32 = 6
	// divisionScale 中间除法结果保留位数，只在落库时才舍入
	divisionScale int32 = 16
)

var hundred = decimal.NewFromInt(100)

// RoundMoney 金额按两位小数半进位
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyScale)
}

// RoundRate 费率按六位小数半进位
func RoundRate(d decimal.Decimal) decimal.Decimal {
	return d.Round(RateScale)
}

// QuoteAmount 按货币对计算方式换算报价金额，与定价模式无关
func QuoteAmount(base, rate decimal.Decimal, calcType CalculationType) (decimal.Decimal, error) {
	if !base.IsPositive() {
		return decimal.Zero, NewError(KindInvalidRate, "base amount must be positive, got %s", base)
	}
	if !rate.IsPositive() {
		return decimal.Zero, NewError(KindInvalidRate, "exchange rate must be positive, got %s", rate)
	}
	switch calcType {
	case CalculationMultiply:
		return base.Mul(rate), nil
	case CalculationDivide:
		return base.DivRound(rate, divisionScale), nil
	default:
		return decimal.Zero, NewError(KindInvalidPricingConfig, "unknown calculation type %q", calcType)
	}
}

// Margin 按定价模式计算交易所利润（未舍入）
//
// percentage: base * percent / 100
// spread:     (sell - buy) * (base / buy)
// mixed:      spread + percentage
//
// 未配置 sell_rate 时以订单成交汇率作为卖出价。
func Margin(base, orderRate decimal.Decimal, cfg *PairConfig) (decimal.Decimal, error) {
	if err := cfg.Validate(); err != nil {
		return decimal.Zero, err
	}

	switch cfg.CommissionModel {
	case ModelPercentage:
		return percentOf(base, *cfg.CommissionPercent), nil
	case ModelSpread:
		return spreadMargin(base, orderRate, cfg)
	case ModelMixed:
		spread, err := spreadMargin(base, orderRate, cfg)
		if err != nil {
			return decimal.Zero, err
		}
		return spread.Add(percentOf(base, *cfg.CommissionPercent)), nil
	}
	return decimal.Zero, NewError(KindInvalidPricingConfig, "unknown commission model %q", cfg.CommissionModel)
}

func spreadMargin(base, orderRate decimal.Decimal, cfg *PairConfig) (decimal.Decimal, error) {
	buy := *cfg.BuyRate
	sell := orderRate
	if cfg.SellRate != nil {
		sell = *cfg.SellRate
	}
	if sell.LessThan(buy) {
		return decimal.Zero, NewError(KindInvalidPricingConfig, "selling rate %s is below buy_rate %s", sell, buy)
	}
	units := base.DivRound(buy, divisionScale)
	return sell.Sub(buy).Mul(units), nil
}

func percentOf(base, percent decimal.Decimal) decimal.Decimal {
	return base.Mul(percent).Div(hundred)
}

// Calculation 单笔订单的计算结果，金额已按落库精度舍入
type Calculation struct {
	Rate                decimal.Decimal `json:"rate"`
	QuoteAmount         decimal.Decimal `json:"quote_amount"`
	ExchangeHouseMargin decimal.Decimal `json:"exchange_house_margin"`
	MarginPercent       decimal.Decimal `json:"margin_percent"`
	PlatformRate        decimal.Decimal `json:"platform_rate"`
	PlatformCommission  decimal.Decimal `json:"platform_commission"`
	HasPromo            bool            `json:"has_promo"`
}

// Compute 计算报价金额、交易所利润与平台佣金。
// 零佣金促销只影响平台佣金，交易所利润照常计算。
func Compute(order *Order, pair *CurrencyPair, cfg *PairConfig, platformRate decimal.Decimal, promo bool) (*Calculation, error) {
	rate := order.ExchangeRate
	if !rate.IsPositive() {
		rate = pair.CurrentRate
	}
	if platformRate.IsNegative() {
		return nil, NewError(KindInvalidRate, "platform rate must not be negative, got %s", platformRate)
	}

	quote, err := QuoteAmount(order.BaseAmount, rate, pair.CalculationType)
	if err != nil {
		return nil, err
	}
	if err := cfg.CheckAmount(order.BaseAmount); err != nil {
		return nil, err
	}
	margin, err := Margin(order.BaseAmount, rate, cfg)
	if err != nil {
		return nil, err
	}

	calc := &Calculation{
		Rate:                RoundRate(rate),
		QuoteAmount:         RoundMoney(quote),
		ExchangeHouseMargin: RoundMoney(margin),
		MarginPercent:       RoundRate(margin.DivRound(order.BaseAmount, divisionScale).Mul(hundred)),
		PlatformRate:        RoundRate(platformRate),
		PlatformCommission:  RoundMoney(percentOf(order.BaseAmount, platformRate)),
	}
	if promo {
		calc.PlatformRate = decimal.Zero
		calc.PlatformCommission = decimal.Zero
		calc.HasPromo = true
	}
	return calc, nil
}

// Commissions 生成交易所与平台两条 pending 佣金行。
// 佣金按订单时间归入结算周期，订单缺少时间时才使用 now。
func (c *Calculation) Commissions(order *Order, now time.Time) (exchangeHouse, platform *Commission) {
	base := RoundMoney(order.BaseAmount)
	accruedAt := order.CreatedAt
	if accruedAt.IsZero() {
		accruedAt = now
	}
	exchangeHouse = &Commission{
		OrderID:         order.ID,
		ExchangeHouseID: order.ExchangeHouseID,
		Type:            CommissionTypeExchangeHouse,
		Amount:          c.ExchangeHouseMargin,
		RatePercent:     c.MarginPercent,
		BaseAmount:      base,
		Status:          CommissionStatusPending,
		CreatedAt:       accruedAt,
	}
	platform = &Commission{
		OrderID:         order.ID,
		ExchangeHouseID: order.ExchangeHouseID,
		Type:            CommissionTypePlatform,
		Amount:          c.PlatformCommission,
		RatePercent:     c.PlatformRate,
		BaseAmount:      base,
		Status:          CommissionStatusPending,
		HasPromo:        c.HasPromo,
		CreatedAt:       accruedAt,
	}
	return exchangeHouse, platform
}
