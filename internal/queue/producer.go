package queue

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"atlaswd/internal/model"
	"atlaswd/pkg/logger"
	"atlaswd/pkg/snowflake"
	"atlaswd/storage/mq"
)

// Publisher 把终态事件投递到 auth.events
type Publisher struct{}

// PublishFlowCompleted 发布认证流程完成事件
func (Publisher) PublishFlowCompleted(ctx context.Context, msg model.FlowCompletedMessage) error {
	return PublishFlowCompleted(ctx, msg)
}

// PublishFlowCompleted 发布认证流程完成事件，MessageID 为空时生成
func PublishFlowCompleted(ctx context.Context, msg model.FlowCompletedMessage) error {
	if msg.MessageID == "" {
		id, err := snowflake.NextMessageID()
		if err != nil {
			logger.Logger.Error("Failed to generate message ID",
				zap.String("flow_id", msg.FlowID),
				zap.Error(err),
			)
			return fmt.Errorf("failed to generate message ID: %w", err)
		}
		msg.MessageID = id
	}
	if msg.OccurredAt == "" {
		msg.OccurredAt = time.Now().UTC().Format(time.RFC3339)
	}

	err := mq.PublishMessage(ctx, mq.ExchangeAuthEvents, mq.RoutingFlowComplete, msg.MessageID, msg)
	if err != nil {
		logger.Logger.Error("Failed to publish flow completed message",
			zap.String("flow_id", msg.FlowID),
			zap.String("outcome", msg.Outcome),
			zap.Error(err),
		)
		return err
	}

	logger.Logger.Info("Published flow completed message",
		zap.String("message_id", msg.MessageID),
		zap.String("flow_id", msg.FlowID),
		zap.String("outcome", msg.Outcome),
	)
	return nil
}
