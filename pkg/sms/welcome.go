package sms

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"atlaswd/config"
	"atlaswd/pkg/logger"
	"atlaswd/pkg/metrics"
)

// SendWelcomeSMS 注册成功后的欢迎短信。签名或模板未配置时直接跳过
func SendWelcomeSMS(ctx context.Context, phone, firstName string) error {
	cfg := config.Cfg
	if phone == "" {
		return nil
	}
	if cfg.SMSSignName == "" || cfg.SMSWelcomeTemplateCode == "" {
		logger.Logger.Debug("Welcome SMS skipped, template not configured")
		return nil
	}
	if smsClient == nil {
		logger.Logger.Warn("Welcome SMS skipped, SMS client not initialized")
		return nil
	}

	paramJSON, err := json.Marshal(map[string]string{"name": firstName})
	if err != nil {
		return fmt.Errorf("failed to marshal template param: %w", err)
	}

	start := time.Now()
	_, err = SendSingle(ctx, phone, cfg.SMSSignName, cfg.SMSWelcomeTemplateCode, string(paramJSON))
	metrics.GetMetrics().RecordSMS(ctx, cfg.SMSWelcomeTemplateCode, cfg.SMSProvider, err == nil, time.Since(start).Seconds())
	if err != nil {
		logger.Logger.Warn("Failed to send welcome SMS", zap.Error(err))
		return err
	}
	return nil
}
