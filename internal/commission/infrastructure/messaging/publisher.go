// Package messaging 把付款请求事件发布到 Kafka
package messaging

import (
	"context"
	"fmt"
	"strconv"

	"github.com/wyfcoding/commissionhub/internal/commission/domain"
	"github.com/wyfcoding/commissionhub/pkg/mq"
)

var _ Sender = (*mq.KafkaProducer)(nil)

// Sender 发送 JSON 消息，mq.KafkaProducer 实现了该接口
type Sender interface {
	SendMessage(ctx context.Context, topic, key string, value any) error
}

// KafkaEventPublisher 以交易所 ID 为消息 key，保证同一交易所的事件有序
type KafkaEventPublisher struct {
	sender Sender
	topic  string
}

// NewKafkaEventPublisher 创建事件发布器
func NewKafkaEventPublisher(sender Sender, topic string) *KafkaEventPublisher {
	return &KafkaEventPublisher{sender: sender, topic: topic}
}

// PublishPaymentEvent 发布付款请求状态变更事件
func (p *KafkaEventPublisher) PublishPaymentEvent(ctx context.Context, event domain.PaymentRequestEvent) error {
	key := strconv.FormatUint(event.ExchangeHouseID, 10)
	if err := p.sender.SendMessage(ctx, p.topic, key, event); err != nil {
		return fmt.Errorf("publish %s for payment request %d: %w", event.Type, event.PaymentID, err)
	}
	return nil
}

// NoopPublisher 未配置 Kafka 时使用
type NoopPublisher struct{}

func (NoopPublisher) PublishPaymentEvent(context.Context, domain.PaymentRequestEvent) error {
	return nil
}
