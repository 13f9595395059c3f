package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus 付款请求状态
type PaymentStatus string

const (
	PaymentStatusPending         PaymentStatus = "pending"
	PaymentStatusApproved        PaymentStatus = "approved" // 历史数据遗留状态，视同 pending
	PaymentStatusPaymentInfoSent PaymentStatus = "payment_info_sent"
	PaymentStatusPaid            PaymentStatus = "paid"
	PaymentStatusRejected        PaymentStatus = "rejected"
)

// OpenStatuses 参与周期重叠约束的状态
var OpenStatuses = []PaymentStatus{PaymentStatusPending, PaymentStatusApproved, PaymentStatusPaymentInfoSent}

// IsOpen 是否处于未完结状态
func (s PaymentStatus) IsOpen() bool {
	for _, st := range OpenStatuses {
		if s == st {
			return true
		}
	}
	return false
}

// Valid 是否为已知状态
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusApproved, PaymentStatusPaymentInfoSent, PaymentStatusPaid, PaymentStatusRejected:
		return true
	}
	return false
}

// CommissionPayment 一个交易所一个结算周期的付款请求
type CommissionPayment struct {
	ID               uint64
	ExchangeHouseID  uint64
	Period           Period
	TotalCommissions decimal.Decimal
	TotalOrders      int64
	TotalVolume      decimal.Decimal
	Status           PaymentStatus
	PaymentMethod    string
	PaymentReference string
	PaymentProof     string
	PaymentSentAt    *time.Time
	ConfirmedAt      *time.Time
	ConfirmedBy      uint64
	AdminNotes       string
	RejectionReason  string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	DeletedAt        *time.Time
}

// NewCommissionPayment 由汇总结果生成 pending 付款请求，金额在创建时快照
func NewCommissionPayment(houseID uint64, period Period, totals PendingTotals, now time.Time) (*CommissionPayment, error) {
	if houseID == 0 {
		return nil, NewError(KindValidation, "exchange_house_id is required")
	}
	p := &CommissionPayment{
		ExchangeHouseID:  houseID,
		Period:           period,
		TotalCommissions: RoundMoney(totals.TotalAmount),
		TotalOrders:      totals.OrderCount,
		TotalVolume:      RoundMoney(totals.TotalVolume),
		Status:           PaymentStatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate 每次变更前的结构校验
func (p *CommissionPayment) Validate() error {
	if err := p.Period.Validate(); err != nil {
		return err
	}
	if p.TotalCommissions.IsNegative() {
		return NewError(KindValidation, "total_commissions must not be negative, got %s", p.TotalCommissions)
	}
	if p.TotalOrders < 0 {
		return NewError(KindValidation, "total_orders must not be negative")
	}
	return nil
}

// SubmitPayment 交易所提交付款信息：pending/rejected -> payment_info_sent
func (p *CommissionPayment) SubmitPayment(method, reference, proof string, now time.Time) error {
	switch p.Status {
	case PaymentStatusPending, PaymentStatusApproved, PaymentStatusRejected:
	default:
		return NewError(KindInvalidTransition, "cannot submit payment info for request %d in status %s", p.ID, p.Status)
	}
	if err := p.Validate(); err != nil {
		return err
	}
	if !p.TotalCommissions.IsPositive() {
		return NewError(KindValidation, "request %d has no commission to pay", p.ID)
	}
	method = strings.TrimSpace(method)
	reference = strings.TrimSpace(reference)
	if method == "" {
		return NewError(KindValidation, "payment_method is required")
	}
	if reference == "" {
		return NewError(KindValidation, "payment_reference is required")
	}

	p.PaymentMethod = method
	p.PaymentReference = reference
	p.PaymentProof = strings.TrimSpace(proof)
	sentAt := now
	p.PaymentSentAt = &sentAt
	p.RejectionReason = ""
	p.Status = PaymentStatusPaymentInfoSent
	p.UpdatedAt = now
	return nil
}

// Confirm 管理员确认到账：payment_info_sent -> paid
func (p *CommissionPayment) Confirm(adminID uint64, notes string, now time.Time) error {
	if p.Status != PaymentStatusPaymentInfoSent {
		return NewError(KindInvalidTransition, "cannot confirm request %d in status %s", p.ID, p.Status)
	}
	if adminID == 0 {
		return NewError(KindValidation, "admin id is required")
	}
	if err := p.Validate(); err != nil {
		return err
	}
	confirmedAt := now
	p.ConfirmedAt = &confirmedAt
	p.ConfirmedBy = adminID
	p.AdminNotes = strings.TrimSpace(notes)
	p.Status = PaymentStatusPaid
	p.UpdatedAt = now
	return nil
}

// Reject 管理员驳回：payment_info_sent -> rejected，原因必填
func (p *CommissionPayment) Reject(reason string, now time.Time) error {
	if p.Status != PaymentStatusPaymentInfoSent {
		return NewError(KindInvalidTransition, "cannot reject request %d in status %s", p.ID, p.Status)
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return NewError(KindValidation, "rejection reason is required")
	}
	if err := p.Validate(); err != nil {
		return err
	}
	p.RejectionReason = reason
	p.Status = PaymentStatusRejected
	p.UpdatedAt = now
	return nil
}

// CanDelete 只有 pending 的请求可以被软删除
func (p *CommissionPayment) CanDelete() error {
	if p.Status != PaymentStatusPending {
		return NewError(KindInvalidTransition, "request %d in status %s cannot be deleted", p.ID, p.Status)
	}
	return nil
}

// CascadePaidAt 级联时佣金的 paid_at：优先付款提交时间，其次确认时间
func (p *CommissionPayment) CascadePaidAt(now time.Time) time.Time {
	switch {
	case p.PaymentSentAt != nil:
		return *p.PaymentSentAt
	case p.ConfirmedAt != nil:
		return *p.ConfirmedAt
	default:
		return now
	}
}

// CommissionFilter 该请求对应的佣金范围
func (p *CommissionPayment) CommissionFilter() CommissionFilter {
	return CommissionFilter{ExchangeHouseID: p.ExchangeHouseID, Period: p.Period}
}

// IsStale 创建超过 months 个月仍为 pending
func (p *CommissionPayment) IsStale(months int, now time.Time) bool {
	if months <= 0 || p.Status != PaymentStatusPending {
		return false
	}
	return p.CreatedAt.Before(now.AddDate(0, -months, 0))
}

// StructurallyInvalid 金额非正或周期倒置
func (p *CommissionPayment) StructurallyInvalid() (bool, string) {
	if p.Period.End.Before(p.Period.Start) {
		return true, "inverted_period"
	}
	if !p.TotalCommissions.IsPositive() {
		return true, "non_positive_total"
	}
	return false, ""
}
