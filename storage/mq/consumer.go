package mq

import (
	"context"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	pkgerrors "atlaswd/pkg/errors"
	"atlaswd/pkg/logger"
	"atlaswd/pkg/metrics"
	mqotel "atlaswd/pkg/mq"
)

type MessageHandler func(ctx context.Context, body []byte) error

type ConsumeOptions struct {
	Queue         string
	ConsumerTag   string
	PrefetchCount int
	Handler       MessageHandler
}

// Consume 阻塞消费直到 ctx 取消或 channel 关闭。
// 处理成功 Ack；返回 SkipMessageError 时 Reject 进入死信；其他错误首次重投，再次失败进入死信
func Consume(ctx context.Context, opts ConsumeOptions) error {
	c := Connection()
	if c == nil {
		return fmt.Errorf("RabbitMQ connection is nil")
	}

	ch, err := c.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	if opts.PrefetchCount > 0 {
		if err := ch.Qos(opts.PrefetchCount, 0, false); err != nil {
			return fmt.Errorf("failed to set QoS: %w", err)
		}
	}

	msgs, err := ch.Consume(
		opts.Queue,
		opts.ConsumerTag,
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	logger.Logger.Info("Started consuming messages",
		zap.String("queue", opts.Queue),
		zap.String("consumer_tag", opts.ConsumerTag),
		zap.Int("prefetch_count", opts.PrefetchCount),
	)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("consumer channel closed: %s", opts.Queue)
			}
			handleDelivery(ctx, opts, msg)
		}
	}
}

func handleDelivery(ctx context.Context, opts ConsumeOptions, msg amqp.Delivery) {
	msgCtx, span := mqotel.StartProcess(ctx, opts.Queue, msg)
	err := opts.Handler(msgCtx, msg.Body)
	mqotel.EndSpan(span, err)

	m := metrics.GetMetrics()
	if err == nil {
		m.RecordConsumed(ctx, opts.Queue, "ack")
		_ = msg.Ack(false)
		return
	}

	var skip *pkgerrors.SkipMessageError
	requeue := !errors.As(err, &skip) && !msg.Redelivered

	logger.Logger.Error("Failed to process message",
		zap.String("queue", opts.Queue),
		zap.String("message_id", msg.MessageId),
		zap.Bool("redelivered", msg.Redelivered),
		zap.Bool("requeue", requeue),
		zap.Error(err),
	)

	if requeue {
		m.RecordConsumed(ctx, opts.Queue, "requeue")
	} else {
		m.RecordConsumed(ctx, opts.Queue, "drop")
	}
	_ = msg.Nack(false, requeue)
}
