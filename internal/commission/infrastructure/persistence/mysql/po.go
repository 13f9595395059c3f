package mysql

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/commissionhub/internal/commission/domain"
	"gorm.io/gorm"
)

// OrderPO 订单（只读）
type OrderPO struct {
	ID              uint64          `gorm:"column:id;primaryKey;autoIncrement"`
	ExchangeHouseID uint64          `gorm:"column:exchange_house_id;index;not null"`
	CurrencyPairID  uint64          `gorm:"column:currency_pair_id;index;not null"`
	BaseAmount      decimal.Decimal `gorm:"column:base_amount;type:decimal(20,2);not null"`
	QuoteAmount     decimal.Decimal `gorm:"column:quote_amount;type:decimal(20,2);not null"`
	ExchangeRate    decimal.Decimal `gorm:"column:exchange_rate;type:decimal(20,8);not null"`
	Status          string          `gorm:"column:status;type:varchar(20);not null"`
	CreatedAt       time.Time       `gorm:"column:created_at"`
	UpdatedAt       time.Time       `gorm:"column:updated_at"`
}

func (OrderPO) TableName() string { return "orders" }

func (po *OrderPO) ToDomain() *domain.Order {
	return &domain.Order{
		ID:              po.ID,
		ExchangeHouseID: po.ExchangeHouseID,
		CurrencyPairID:  po.CurrencyPairID,
		BaseAmount:      po.BaseAmount,
		QuoteAmount:     po.QuoteAmount,
		ExchangeRate:    po.ExchangeRate,
		Status:          domain.OrderStatus(po.Status),
		CreatedAt:       po.CreatedAt.UTC(),
	}
}

// CurrencyPairPO 货币对
type CurrencyPairPO struct {
	ID              uint64          `gorm:"column:id;primaryKey;autoIncrement"`
	BaseCurrency    string          `gorm:"column:base_currency;type:varchar(10);not null"`
	QuoteCurrency   string          `gorm:"column:quote_currency;type:varchar(10);not null"`
	Symbol          string          `gorm:"column:symbol;type:varchar(24);uniqueIndex;not null"`
	CurrentRate     decimal.Decimal `gorm:"column:current_rate;type:decimal(20,8);not null"`
	CalculationType string          `gorm:"column:calculation_type;type:varchar(10);not null;default:multiply"`
	CreatedAt       time.Time       `gorm:"column:created_at"`
	UpdatedAt       time.Time       `gorm:"column:updated_at"`
}

func (CurrencyPairPO) TableName() string { return "currency_pairs" }

func (po *CurrencyPairPO) ToDomain() *domain.CurrencyPair {
	return &domain.CurrencyPair{
		ID:              po.ID,
		BaseCurrency:    po.BaseCurrency,
		QuoteCurrency:   po.QuoteCurrency,
		Symbol:          po.Symbol,
		CurrentRate:     po.CurrentRate,
		CalculationType: domain.CalculationType(po.CalculationType),
	}
}

// PairConfigPO 交易所-货币对定价配置
type PairConfigPO struct {
	ID                uint64              `gorm:"column:id;primaryKey;autoIncrement"`
	ExchangeHouseID   uint64              `gorm:"column:exchange_house_id;uniqueIndex:uk_house_pair;not null"`
	CurrencyPairID    uint64              `gorm:"column:currency_pair_id;uniqueIndex:uk_house_pair;not null"`
	CommissionModel   string              `gorm:"column:commission_model;type:varchar(16);not null"`
	CommissionPercent decimal.NullDecimal `gorm:"column:commission_percent;type:decimal(10,6)"`
	BuyRate           decimal.NullDecimal `gorm:"column:buy_rate;type:decimal(20,8)"`
	SellRate          decimal.NullDecimal `gorm:"column:sell_rate;type:decimal(20,8)"`
	MinAmount         decimal.Decimal     `gorm:"column:min_amount;type:decimal(20,2);not null;default:0"`
	MaxAmount         decimal.Decimal     `gorm:"column:max_amount;type:decimal(20,2);not null;default:0"`
	IsActive          bool                `gorm:"column:is_active;not null;default:true"`
	CreatedAt         time.Time           `gorm:"column:created_at"`
	UpdatedAt         time.Time           `gorm:"column:updated_at"`
}

func (PairConfigPO) TableName() string { return "exchange_house_currency_pair" }

func (po *PairConfigPO) ToDomain() *domain.PairConfig {
	return &domain.PairConfig{
		ID:                po.ID,
		ExchangeHouseID:   po.ExchangeHouseID,
		CurrencyPairID:    po.CurrencyPairID,
		CommissionModel:   domain.CommissionModel(po.CommissionModel),
		CommissionPercent: nullToPtr(po.CommissionPercent),
		BuyRate:           nullToPtr(po.BuyRate),
		SellRate:          nullToPtr(po.SellRate),
		MinAmount:         po.MinAmount,
		MaxAmount:         po.MaxAmount,
		IsActive:          po.IsActive,
	}
}

func nullToPtr(n decimal.NullDecimal) *decimal.Decimal {
	if !n.Valid {
		return nil
	}
	d := n.Decimal
	return &d
}

func ptrToNull(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(*d)
}

func (po *PairConfigPO) FromDomain(c *domain.PairConfig) {
	po.ID = c.ID
	po.ExchangeHouseID = c.ExchangeHouseID
	po.CurrencyPairID = c.CurrencyPairID
	po.CommissionModel = string(c.CommissionModel)
	po.CommissionPercent = ptrToNull(c.CommissionPercent)
	po.BuyRate = ptrToNull(c.BuyRate)
	po.SellRate = ptrToNull(c.SellRate)
	po.MinAmount = c.MinAmount
	po.MaxAmount = c.MaxAmount
	po.IsActive = c.IsActive
}

// ExchangeHousePO 交易所
type ExchangeHousePO struct {
	ID                  uint64     `gorm:"column:id;primaryKey;autoIncrement"`
	Name                string     `gorm:"column:name;type:varchar(128);not null"`
	Status              string     `gorm:"column:status;type:varchar(16);not null;default:active"`
	ZeroCommissionPromo bool       `gorm:"column:zero_commission_promo;not null;default:false"`
	PromoExpiresAt      *time.Time `gorm:"column:promo_expires_at"`
	CreatedAt           time.Time  `gorm:"column:created_at"`
	UpdatedAt           time.Time  `gorm:"column:updated_at"`
}

func (ExchangeHousePO) TableName() string { return "exchange_houses" }

func (po *ExchangeHousePO) ToDomain() *domain.ExchangeHouse {
	h := &domain.ExchangeHouse{
		ID:                  po.ID,
		Name:                po.Name,
		Status:              domain.ExchangeHouseStatus(po.Status),
		ZeroCommissionPromo: po.ZeroCommissionPromo,
	}
	if po.PromoExpiresAt != nil {
		t := po.PromoExpiresAt.UTC()
		h.PromoExpiresAt = &t
	}
	return h
}

// CommissionPO 佣金，每个订单每种类型唯一
type CommissionPO struct {
	ID              uint64          `gorm:"column:id;primaryKey;autoIncrement"`
	OrderID         uint64          `gorm:"column:order_id;uniqueIndex:uk_order_type;not null"`
	ExchangeHouseID uint64          `gorm:"column:exchange_house_id;index:idx_house_type_status_created,priority:1;not null"`
	Type            string          `gorm:"column:type;type:varchar(20);uniqueIndex:uk_order_type;index:idx_house_type_status_created,priority:2;not null"`
	Amount          decimal.Decimal `gorm:"column:amount;type:decimal(20,2);not null"`
	RatePercent     decimal.Decimal `gorm:"column:rate_percent;type:decimal(10,6);not null"`
	BaseAmount      decimal.Decimal `gorm:"column:base_amount;type:decimal(20,2);not null"`
	Status          string          `gorm:"column:status;type:varchar(16);index:idx_house_type_status_created,priority:3;not null"`
	HasPromo        bool            `gorm:"column:has_promo;not null;default:false"`
	PaidAt          *time.Time      `gorm:"column:paid_at"`
	CreatedAt       time.Time       `gorm:"column:created_at;index:idx_house_type_status_created,priority:4"`
	UpdatedAt       time.Time       `gorm:"column:updated_at"`
}

func (CommissionPO) TableName() string { return "commissions" }

func (po *CommissionPO) ToDomain() *domain.Commission {
	c := &domain.Commission{
		ID:              po.ID,
		OrderID:         po.OrderID,
		ExchangeHouseID: po.ExchangeHouseID,
		Type:            domain.CommissionType(po.Type),
		Amount:          po.Amount,
		RatePercent:     po.RatePercent,
		BaseAmount:      po.BaseAmount,
		Status:          domain.CommissionStatus(po.Status),
		HasPromo:        po.HasPromo,
		CreatedAt:       po.CreatedAt.UTC(),
	}
	if po.PaidAt != nil {
		t := po.PaidAt.UTC()
		c.PaidAt = &t
	}
	return c
}

func (po *CommissionPO) FromDomain(c *domain.Commission) {
	po.ID = c.ID
	po.OrderID = c.OrderID
	po.ExchangeHouseID = c.ExchangeHouseID
	po.Type = string(c.Type)
	po.Amount = c.Amount
	po.RatePercent = c.RatePercent
	po.BaseAmount = c.BaseAmount
	po.Status = string(c.Status)
	po.HasPromo = c.HasPromo
	po.PaidAt = c.PaidAt
	po.CreatedAt = c.CreatedAt
}

// CommissionPaymentPO 付款请求，支持软删除
type CommissionPaymentPO struct {
	ID               uint64          `gorm:"column:id;primaryKey;autoIncrement"`
	ExchangeHouseID  uint64          `gorm:"column:exchange_house_id;index:idx_house_period;not null"`
	PeriodStart      time.Time       `gorm:"column:period_start;type:date;index:idx_house_period;not null"`
	PeriodEnd        time.Time       `gorm:"column:period_end;type:date;index:idx_house_period;not null"`
	TotalCommissions decimal.Decimal `gorm:"column:total_commissions;type:decimal(20,2);not null"`
	TotalOrders      int64           `gorm:"column:total_orders;not null;default:0"`
	TotalVolume      decimal.Decimal `gorm:"column:total_volume;type:decimal(20,2);not null"`
	Status           string          `gorm:"column:status;type:varchar(20);index;not null"`
	PaymentMethod    string          `gorm:"column:payment_method;type:varchar(64)"`
	PaymentReference string          `gorm:"column:payment_reference;type:varchar(128)"`
	PaymentProof     string          `gorm:"column:payment_proof;type:varchar(512)"`
	PaymentSentAt    *time.Time      `gorm:"column:payment_sent_at"`
	ConfirmedAt      *time.Time      `gorm:"column:confirmed_at"`
	ConfirmedBy      uint64          `gorm:"column:confirmed_by"`
	AdminNotes       string          `gorm:"column:admin_notes;type:text"`
	RejectionReason  string          `gorm:"column:rejection_reason;type:text"`
	CreatedAt        time.Time       `gorm:"column:created_at"`
	UpdatedAt        time.Time       `gorm:"column:updated_at"`
	DeletedAt        gorm.DeletedAt  `gorm:"column:deleted_at;index"`
}

func (CommissionPaymentPO) TableName() string { return "commission_payments" }

func (po *CommissionPaymentPO) ToDomain() *domain.CommissionPayment {
	p := &domain.CommissionPayment{
		ID:               po.ID,
		ExchangeHouseID:  po.ExchangeHouseID,
		Period:           domain.Period{Start: asDate(po.PeriodStart), End: asDate(po.PeriodEnd)},
		TotalCommissions: po.TotalCommissions,
		TotalOrders:      po.TotalOrders,
		TotalVolume:      po.TotalVolume,
		Status:           domain.PaymentStatus(po.Status),
		PaymentMethod:    po.PaymentMethod,
		PaymentReference: po.PaymentReference,
		PaymentProof:     po.PaymentProof,
		PaymentSentAt:    utcPtr(po.PaymentSentAt),
		ConfirmedAt:      utcPtr(po.ConfirmedAt),
		ConfirmedBy:      po.ConfirmedBy,
		AdminNotes:       po.AdminNotes,
		RejectionReason:  po.RejectionReason,
		CreatedAt:        po.CreatedAt.UTC(),
		UpdatedAt:        po.UpdatedAt.UTC(),
	}
	if po.DeletedAt.Valid {
		t := po.DeletedAt.Time.UTC()
		p.DeletedAt = &t
	}
	return p
}

func (po *CommissionPaymentPO) FromDomain(p *domain.CommissionPayment) {
	po.ID = p.ID
	po.ExchangeHouseID = p.ExchangeHouseID
	po.PeriodStart = p.Period.Start
	po.PeriodEnd = p.Period.End
	po.TotalCommissions = p.TotalCommissions
	po.TotalOrders = p.TotalOrders
	po.TotalVolume = p.TotalVolume
	po.Status = string(p.Status)
	po.PaymentMethod = p.PaymentMethod
	po.PaymentReference = p.PaymentReference
	po.PaymentProof = p.PaymentProof
	po.PaymentSentAt = p.PaymentSentAt
	po.ConfirmedAt = p.ConfirmedAt
	po.ConfirmedBy = p.ConfirmedBy
	po.AdminNotes = p.AdminNotes
	po.RejectionReason = p.RejectionReason
	po.CreatedAt = p.CreatedAt
	po.UpdatedAt = p.UpdatedAt
}

// DATE 列按 UTC 日期还原，避免驱动时区设置带来偏移
func asDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// Models 需要迁移的表
func Models() []any {
	return []any{
		&OrderPO{},
		&CurrencyPairPO{},
		&PairConfigPO{},
		&ExchangeHousePO{},
		&CommissionPO{},
		&CommissionPaymentPO{},
	}
}
