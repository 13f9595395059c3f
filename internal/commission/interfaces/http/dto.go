package http

import (
	"time"

	"github.com/wyfcoding/commissionhub/internal/commission/application"
	"github.com/wyfcoding/commissionhub/internal/commission/domain"
)

// PeriodRequest 结算周期，日期格式 YYYY-MM-DD
type PeriodRequest struct {
	PeriodStart string `json:"period_start" form:"period_start" binding:"required"`
	PeriodEnd   string `json:"period_end" form:"period_end" binding:"required"`
}

func (r PeriodRequest) period() (domain.Period, error) {
	return domain.ParsePeriod(r.PeriodStart, r.PeriodEnd)
}

// GenerateRequest 人工生成付款请求
type GenerateRequest struct {
	ExchangeHouseID uint64 `json:"exchange_house_id" binding:"required"`
	PeriodRequest
}

// GenerateBatchRequest 为所有有待结算佣金的交易所批量生成
type GenerateBatchRequest struct {
	PeriodRequest
	// 为空时使用配置的最小金额
	MinAmount string `json:"min_amount"`
}

// ConfirmRequest 管理员确认收款
type ConfirmRequest struct {
	AdminID uint64 `json:"admin_id" binding:"required"`
	Notes   string `json:"admin_notes"`
}

// RejectRequest 管理员驳回
type RejectRequest struct {
	Reason string `json:"rejection_reason" binding:"required"`
}

// DryRunRequest 维护操作通用参数
type DryRunRequest struct {
	DryRun bool `json:"dry_run"`
}

// PurgeRequest 清理无效请求
type PurgeRequest struct {
	DryRun       bool `json:"dry_run"`
	AgeMonths    *int `json:"age_months"`
	ConfirmStale bool `json:"confirm_stale"`
}

// SetSettingRequest 写入平台设置
type SetSettingRequest struct {
	Value string `json:"value"`
	Type  string `json:"type"`
}

// ClearCacheRequest 为空时清空全部缓存
type ClearCacheRequest struct {
	Keys []string `json:"keys"`
}

type commissionResponse struct {
	ID              uint64     `json:"id"`
	OrderID         uint64     `json:"order_id"`
	ExchangeHouseID uint64     `json:"exchange_house_id"`
	Type            string     `json:"type"`
	Amount          string     `json:"amount"`
	RatePercent     string     `json:"rate_percent"`
	BaseAmount      string     `json:"base_amount"`
	Status          string     `json:"status"`
	HasPromo        bool       `json:"has_promo"`
	PaidAt          *time.Time `json:"paid_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

func toCommissionResponse(c *domain.Commission) *commissionResponse {
	if c == nil {
		return nil
	}
	return &commissionResponse{
		ID:              c.ID,
		OrderID:         c.OrderID,
		ExchangeHouseID: c.ExchangeHouseID,
		Type:            string(c.Type),
		Amount:          c.Amount.StringFixed(domain.MoneyScale),
		RatePercent:     c.RatePercent.String(),
		BaseAmount:      c.BaseAmount.StringFixed(domain.MoneyScale),
		Status:          string(c.Status),
		HasPromo:        c.HasPromo,
		PaidAt:          c.PaidAt,
		CreatedAt:       c.CreatedAt,
	}
}

type calculationResponse struct {
	OrderID                 uint64              `json:"order_id"`
	Created                 bool                `json:"created"`
	Calculation             *domain.Calculation `json:"calculation,omitempty"`
	ExchangeHouseCommission *commissionResponse `json:"exchange_house_commission"`
	PlatformCommission      *commissionResponse `json:"platform_commission"`
}

func toCalculationResponse(r *application.CalculationResult) calculationResponse {
	return calculationResponse{
		OrderID:                 r.OrderID,
		Created:                 r.Created,
		Calculation:             r.Calculation,
		ExchangeHouseCommission: toCommissionResponse(r.ExchangeHouseCommission),
		PlatformCommission:      toCommissionResponse(r.PlatformCommission),
	}
}

type paymentResponse struct {
	ID               uint64     `json:"id"`
	ExchangeHouseID  uint64     `json:"exchange_house_id"`
	PeriodStart      string     `json:"period_start"`
	PeriodEnd        string     `json:"period_end"`
	TotalCommissions string     `json:"total_commissions"`
	TotalOrders      int64      `json:"total_orders"`
	TotalVolume      string     `json:"total_volume"`
	Status           string     `json:"status"`
	PaymentMethod    string     `json:"payment_method,omitempty"`
	PaymentReference string     `json:"payment_reference,omitempty"`
	PaymentProof     string     `json:"payment_proof,omitempty"`
	PaymentSentAt    *time.Time `json:"payment_sent_at,omitempty"`
	ConfirmedAt      *time.Time `json:"confirmed_at,omitempty"`
	ConfirmedBy      uint64     `json:"confirmed_by,omitempty"`
	AdminNotes       string     `json:"admin_notes,omitempty"`
	RejectionReason  string     `json:"rejection_reason,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func toPaymentResponse(p *domain.CommissionPayment) paymentResponse {
	return paymentResponse{
		ID:               p.ID,
		ExchangeHouseID:  p.ExchangeHouseID,
		PeriodStart:      p.Period.Start.Format(domain.DateLayout),
		PeriodEnd:        p.Period.End.Format(domain.DateLayout),
		TotalCommissions: p.TotalCommissions.StringFixed(domain.MoneyScale),
		TotalOrders:      p.TotalOrders,
		TotalVolume:      p.TotalVolume.StringFixed(domain.MoneyScale),
		Status:           string(p.Status),
		PaymentMethod:    p.PaymentMethod,
		PaymentReference: p.PaymentReference,
		PaymentProof:     p.PaymentProof,
		PaymentSentAt:    p.PaymentSentAt,
		ConfirmedAt:      p.ConfirmedAt,
		ConfirmedBy:      p.ConfirmedBy,
		AdminNotes:       p.AdminNotes,
		RejectionReason:  p.RejectionReason,
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
	}
}

func toPaymentList(rows []*domain.CommissionPayment) []paymentResponse {
	out := make([]paymentResponse, 0, len(rows))
	for _, p := range rows {
		out = append(out, toPaymentResponse(p))
	}
	return out
}
