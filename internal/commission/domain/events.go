package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// PaymentEventType 付款请求事件类型
type PaymentEventType string

const (
	EventPaymentRequestCreated PaymentEventType = "PaymentRequestCreated"
	EventPaymentInfoSubmitted  PaymentEventType = "PaymentInfoSubmitted"
	EventPaymentConfirmed      PaymentEventType = "PaymentConfirmed"
	EventPaymentRejected       PaymentEventType = "PaymentRejected"
	EventPaymentRequestDeleted PaymentEventType = "PaymentRequestDeleted"
)

// PaymentRequestEvent 付款请求状态变更事件，供通知/看板订阅
type PaymentRequestEvent struct {
	EventID         string           `json:"event_id"`
	Type            PaymentEventType `json:"type"`
	PaymentID       uint64           `json:"payment_id"`
	ExchangeHouseID uint64           `json:"exchange_house_id"`
	FromStatus      PaymentStatus    `json:"from_status,omitempty"`
	ToStatus        PaymentStatus    `json:"to_status"`
	OccurredAt      time.Time        `json:"occurred_at"`
}

// NewPaymentRequestEvent 构造事件
func NewPaymentRequestEvent(typ PaymentEventType, p *CommissionPayment, from PaymentStatus, at time.Time) PaymentRequestEvent {
	return PaymentRequestEvent{
		EventID:         uuid.NewString(),
		Type:            typ,
		PaymentID:       p.ID,
		ExchangeHouseID: p.ExchangeHouseID,
		FromStatus:      from,
		ToStatus:        p.Status,
		OccurredAt:      at,
	}
}

// EventPublisher 事件发布端口，提交后调用
type EventPublisher interface {
	PublishPaymentEvent(ctx context.Context, event PaymentRequestEvent) error
}
