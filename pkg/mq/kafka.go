// Package mq 提供 Kafka producer/consumer 通用实现，支持重试与死信队列
package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/wyfcoding/commissionhub/pkg/logger"
)

// KafkaConfig Kafka 配置
type KafkaConfig struct {
	Brokers        []string
	GroupID        string
	SessionTimeout int
	MaxRetries     int
	// 毫秒
	RetryBackoff int
}

// KafkaProducer Kafka 生产者
type KafkaProducer struct {
	writer *kafka.Writer
}

// NewProducer 创建 Kafka 生产者
func NewProducer(cfg KafkaConfig) *KafkaProducer {
	backoff := time.Duration(cfg.RetryBackoff) * time.Millisecond
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		AllowAutoTopicCreation: true,
		Balancer:               &kafka.Hash{},
		Compression:            kafka.Gzip,
		RequiredAcks:           kafka.RequireAll,
		MaxAttempts:            cfg.MaxRetries,
		WriteBackoffMin:        backoff,
		WriteBackoffMax:        backoff * 10,
	}

	logger.Info(context.Background(), "kafka producer created", "brokers", cfg.Brokers)
	return &KafkaProducer{writer: writer}
}

// SendMessage 发送单条 JSON 消息
func (kp *KafkaProducer) SendMessage(ctx context.Context, topic, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	err = kp.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: data,
	})
	if err != nil {
		logger.Error(ctx, "failed to send kafka message", "topic", topic, "key", key, "error", err)
		return err
	}

	logger.Debug(ctx, "kafka message sent", "topic", topic, "key", key)
	return nil
}

// Close 关闭生产者
func (kp *KafkaProducer) Close() error {
	return kp.writer.Close()
}

// Handler 消息处理函数
type Handler func(ctx context.Context, msg kafka.Message) error

// KafkaConsumer Kafka 消费者，手动提交位移
type KafkaConsumer struct {
	reader     *kafka.Reader
	dlq        *DeadLetterQueue
	maxRetries int
	backoff    time.Duration
}

// NewConsumer 创建 Kafka 消费者，dlq 可以为 nil
func NewConsumer(cfg KafkaConfig, topic string, dlq *DeadLetterQueue) *KafkaConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          topic,
		GroupID:        cfg.GroupID,
		SessionTimeout: time.Duration(cfg.SessionTimeout) * time.Second,
		StartOffset:    kafka.FirstOffset,
		MaxBytes:       10e6,
	})

	logger.Info(context.Background(), "kafka consumer created",
		"brokers", cfg.Brokers,
		"topic", topic,
		"group_id", cfg.GroupID,
	)
	return &KafkaConsumer{
		reader:     reader,
		dlq:        dlq,
		maxRetries: max(cfg.MaxRetries, 1),
		backoff:    time.Duration(cfg.RetryBackoff) * time.Millisecond,
	}
}

// Run 循环拉取消息直到 ctx 取消。处理失败的消息按配置重试，仍失败则进入死信队列后提交位移。
func (kc *KafkaConsumer) Run(ctx context.Context, handle Handler) error {
	for {
		msg, err := kc.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			logger.Error(ctx, "failed to fetch kafka message", "error", err)
			return err
		}

		if err := kc.process(ctx, msg, handle); err != nil {
			return err
		}

		if err := kc.reader.CommitMessages(ctx, msg); err != nil {
			logger.Warn(ctx, "failed to commit kafka offset", "topic", msg.Topic, "offset", msg.Offset, "error", err)
		}
	}
}

func (kc *KafkaConsumer) process(ctx context.Context, msg kafka.Message, handle Handler) error {
	var lastErr error
	for attempt := 1; attempt <= kc.maxRetries; attempt++ {
		lastErr = handle(ctx, msg)
		if lastErr == nil || errors.Is(lastErr, ErrPermanent) {
			break
		}
		logger.Warn(ctx, "kafka message handling failed",
			"topic", msg.Topic,
			"offset", msg.Offset,
			"attempt", attempt,
			"error", lastErr,
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(kc.backoff * time.Duration(attempt)):
		}
	}
	if lastErr == nil {
		return nil
	}
	if kc.dlq == nil {
		logger.Error(ctx, "dropping kafka message without dead letter queue", "topic", msg.Topic, "offset", msg.Offset, "error", lastErr)
		return nil
	}
	return kc.dlq.Send(ctx, msg, "handler_failed", lastErr)
}

// Close 关闭消费者
func (kc *KafkaConsumer) Close() error {
	return kc.reader.Close()
}

// ErrPermanent 标记不需要重试的处理错误（如消息格式错误）
var ErrPermanent = errors.New("permanent message error")

// Permanent 包装不可重试错误
func Permanent(err error) error {
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// DeadLetterQueue 死信队列
type DeadLetterQueue struct {
	producer *KafkaProducer
	topic    string
}

// NewDeadLetterQueue 创建死信队列
func NewDeadLetterQueue(producer *KafkaProducer, topic string) *DeadLetterQueue {
	return &DeadLetterQueue{producer: producer, topic: topic}
}

// Send 发送消息到死信队列
func (dlq *DeadLetterQueue) Send(ctx context.Context, original kafka.Message, reason string, err error) error {
	return dlq.producer.SendMessage(ctx, dlq.topic, string(original.Key), map[string]any{
		"original_topic":    original.Topic,
		"original_key":      string(original.Key),
		"original_value":    string(original.Value),
		"original_offset":   original.Offset,
		"original_time":     original.Time,
		"failure_reason":    reason,
		"failure_error":     err.Error(),
		"failure_timestamp": time.Now(),
	})
}
