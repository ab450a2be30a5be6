package mq

import (
	"context"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"atlaswd/config"
	"atlaswd/pkg/logger"
)

// 拓扑：topic 交换机 auth.events，完成事件队列绑定 auth.flow.completed，
// 处理失败且不可重试的消息进入 auth.events.dlx 对应的死信队列
const (
	ExchangeAuthEvents  = "auth.events"
	ExchangeDeadLetter  = "auth.events.dlx"
	RoutingFlowComplete = "auth.flow.completed"
	QueueFlowCompleted  = "auth.flow.completed"
	QueueDeadLetter     = "auth.flow.completed.dlq"
)

var (
	conn   *amqp.Connection
	connMu sync.RWMutex
)

func Init() error {
	c, err := amqp.Dial(config.Cfg.GetRabbitMQURL())
	if err != nil {
		return fmt.Errorf("failed to dial rabbitmq: %w", err)
	}

	ch, err := c.Channel()
	if err != nil {
		_ = c.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	if err := declareTopology(ch); err != nil {
		_ = c.Close()
		return err
	}

	connMu.Lock()
	conn = c
	connMu.Unlock()

	logger.Logger.Info("RabbitMQ connected",
		zap.String("exchange", ExchangeAuthEvents),
		zap.String("queue", QueueFlowCompleted),
	)
	return nil
}

func declareTopology(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(ExchangeAuthEvents, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}
	if err := ch.ExchangeDeclare(ExchangeDeadLetter, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare dead letter exchange: %w", err)
	}

	if _, err := ch.QueueDeclare(QueueDeadLetter, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare dead letter queue: %w", err)
	}
	if err := ch.QueueBind(QueueDeadLetter, "", ExchangeDeadLetter, false, nil); err != nil {
		return fmt.Errorf("failed to bind dead letter queue: %w", err)
	}

	if _, err := ch.QueueDeclare(QueueFlowCompleted, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange": ExchangeDeadLetter,
	}); err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}
	if err := ch.QueueBind(QueueFlowCompleted, RoutingFlowComplete, ExchangeAuthEvents, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue: %w", err)
	}
	return nil
}

// Connection 未初始化时为 nil
func Connection() *amqp.Connection {
	connMu.RLock()
	defer connMu.RUnlock()
	return conn
}

func Close(ctx context.Context) error {
	connMu.Lock()
	defer connMu.Unlock()

	pubMutex.Lock()
	if publisherCh != nil {
		_ = publisherCh.Close()
		publisherCh = nil
	}
	pubMutex.Unlock()

	if conn == nil || conn.IsClosed() {
		return nil
	}
	err := conn.Close()
	conn = nil
	return err
}
