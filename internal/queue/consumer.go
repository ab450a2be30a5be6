package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"atlaswd/internal/authflow"
	"atlaswd/internal/cache"
	"atlaswd/internal/model"
	"atlaswd/pkg/errors"
	"atlaswd/pkg/logger"
	"atlaswd/storage/mq"
)

// CompletionStore worker 落库依赖，*repository.FlowRepository 实现
type CompletionStore interface {
	RecordCompletion(ctx context.Context, c *model.FlowCompletion) (bool, error)
	AttributeReferral(ctx context.Context, a *model.ReferralAttribution) (bool, error)
	CountReferrals(ctx context.Context, code string) (int64, error)
}

// WelcomeSender 注册成功后的欢迎短信
type WelcomeSender func(ctx context.Context, phone, firstName string) error

// FlowCompletedHandler 处理 auth.flow.completed 消息
type FlowCompletedHandler struct {
	store   CompletionStore
	welcome WelcomeSender
}

func NewFlowCompletedHandler(store CompletionStore, welcome WelcomeSender) *FlowCompletedHandler {
	return &FlowCompletedHandler{store: store, welcome: welcome}
}

// Handle 先用 redis 标记去重，落库失败时撤销标记让消息重投
func (h *FlowCompletedHandler) Handle(ctx context.Context, body []byte) error {
	var msg model.FlowCompletedMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return &errors.SkipMessageError{Reason: fmt.Sprintf("invalid flow completed message: %v", err)}
	}
	if msg.MessageID == "" || msg.FlowID == "" {
		return &errors.SkipMessageError{Reason: "flow completed message without message_id or flow_id"}
	}

	first, err := cache.MarkProcessed(ctx, msg.MessageID)
	if err != nil {
		return fmt.Errorf("failed to mark message processed: %w", err)
	}
	if !first {
		logger.Logger.Info("Message already processed, skipping",
			zap.String("message_id", msg.MessageID),
			zap.String("flow_id", msg.FlowID),
		)
		return nil
	}

	if err := h.persist(ctx, msg); err != nil {
		if uerr := cache.UnmarkProcessed(ctx, msg.MessageID); uerr != nil {
			logger.Logger.Warn("Failed to unmark message",
				zap.String("message_id", msg.MessageID),
				zap.Error(uerr),
			)
		}
		return err
	}

	// 短信失败不影响已落库的记录
	if msg.Outcome == string(authflow.OutcomeRegistered) && msg.Phone != "" && h.welcome != nil {
		if err := h.welcome(ctx, msg.Phone, msg.FirstName); err != nil {
			logger.Logger.Warn("Welcome SMS not sent",
				zap.String("flow_id", msg.FlowID),
				zap.Error(err),
			)
		}
	}
	return nil
}

func (h *FlowCompletedHandler) persist(ctx context.Context, msg model.FlowCompletedMessage) error {
	occurredAt, err := time.Parse(time.RFC3339, msg.OccurredAt)
	if err != nil {
		occurredAt = time.Now().UTC()
	}

	created, err := h.store.RecordCompletion(ctx, &model.FlowCompletion{
		MessageID:    msg.MessageID,
		FlowID:       msg.FlowID,
		Outcome:      msg.Outcome,
		EmailHash:    msg.EmailHash,
		ReferralCode: msg.ReferralCode,
		OccurredAt:   occurredAt,
	})
	if err != nil {
		return err
	}
	if !created {
		logger.Logger.Info("Flow completion already recorded", zap.String("message_id", msg.MessageID))
	}

	if msg.Outcome != string(authflow.OutcomeRegistered) || msg.ReferralCode == "" || msg.EmailHash == "" {
		return nil
	}

	attributed, err := h.store.AttributeReferral(ctx, &model.ReferralAttribution{
		EmailHash:    msg.EmailHash,
		ReferralCode: msg.ReferralCode,
		FlowID:       msg.FlowID,
		MessageID:    msg.MessageID,
		RegisteredAt: occurredAt,
	})
	if err != nil {
		return err
	}

	fields := []zap.Field{
		zap.String("flow_id", msg.FlowID),
		zap.String("referral_code", msg.ReferralCode),
		zap.Bool("created", attributed),
	}
	// 统计失败不影响消息确认
	if total, err := h.store.CountReferrals(ctx, msg.ReferralCode); err == nil {
		fields = append(fields, zap.Int64("referral_total", total))
	}
	logger.Logger.Info("Referral attribution processed", fields...)
	return nil
}

// StartFlowCompletedConsumer 阻塞直到 ctx 取消
func StartFlowCompletedConsumer(ctx context.Context, h *FlowCompletedHandler) error {
	return mq.Consume(ctx, mq.ConsumeOptions{
		Queue:         mq.QueueFlowCompleted,
		ConsumerTag:   "flow_completed_consumer",
		PrefetchCount: 10,
		Handler:       h.Handle,
	})
}
