// Package consumer 订阅订单完成事件并计算佣金
package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/wyfcoding/commissionhub/internal/commission/application"
	"github.com/wyfcoding/commissionhub/internal/commission/domain"
	"github.com/wyfcoding/commissionhub/pkg/mq"
)

// OrderCompletedEvent 上游订单服务发布的消息体，只有 order_id 参与计算，其余字段用于日志
type OrderCompletedEvent struct {
	OrderID         uint64    `json:"order_id"`
	ExchangeHouseID uint64    `json:"exchange_house_id"`
	CurrencyPairID  uint64    `json:"currency_pair_id"`
	BaseAmount      string    `json:"base_amount"`
	CreatedAt       time.Time `json:"created_at"`
}

// Calculator 佣金计算入口
type Calculator interface {
	CalculateCommission(ctx context.Context, orderID uint64) (*application.CalculationResult, error)
}

// OrderCompletedHandler 把订单完成事件转换为一次幂等的佣金计算
type OrderCompletedHandler struct {
	calculator Calculator
	logger     *slog.Logger
}

func NewOrderCompletedHandler(calculator Calculator, logger *slog.Logger) *OrderCompletedHandler {
	return &OrderCompletedHandler{calculator: calculator, logger: logger.With("consumer", "orders_completed")}
}

// Handle 实现 mq.Handler。格式错误与业务上不可重试的错误标记为 permanent，直接进入死信队列
func (h *OrderCompletedHandler) Handle(ctx context.Context, msg kafka.Message) error {
	var event OrderCompletedEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return mq.Permanent(fmt.Errorf("decode order completed event at offset %d: %w", msg.Offset, err))
	}
	if event.OrderID == 0 {
		return mq.Permanent(fmt.Errorf("order completed event at offset %d has no order_id", msg.Offset))
	}

	res, err := h.calculator.CalculateCommission(ctx, event.OrderID)
	if err != nil {
		if retryable(err) {
			return err
		}
		h.logger.WarnContext(ctx, "order completed event rejected",
			"order_id", event.OrderID, "kind", domain.KindOf(err), "error", err)
		return mq.Permanent(err)
	}

	h.logger.InfoContext(ctx, "order completed event handled",
		"order_id", event.OrderID,
		"exchange_house_id", event.ExchangeHouseID,
		"created", res.Created)
	return nil
}

// retryable 并发冲突与基础设施错误可重试，其余领域错误重试也不会成功
func retryable(err error) bool {
	switch domain.KindOf(err) {
	case "", domain.KindConcurrencyConflict:
		return true
	}
	return false
}
