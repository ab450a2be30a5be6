package sms

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"atlaswd/config"
	"atlaswd/pkg/errors"
	"atlaswd/pkg/logger"
)

// Client SMS 客户端接口
type Client interface {
	// SendSingle 发送单条短信
	// templateParam: 模板参数（JSON 字符串）
	SendSingle(ctx context.Context, phone, signName, templateCode, templateParam string) (*SendResponse, error)
}

// SendResponse 短信发送响应
type SendResponse struct {
	MessageID string // 阿里云返回的 BizId
	Code      string // "OK" 或 isv.* 错误码
	Message   string
	RequestID string
	Provider  string
	Template  string
}

var (
	smsClient Client
	smsOnce   sync.Once
	smsErr    error
)

// Init 初始化 SMS 客户端，none 时使用只记录调用的 MockClient
func Init() error {
	smsOnce.Do(func() {
		cfg := config.Cfg

		switch cfg.SMSProvider {
		case "aliyun":
			smsClient, smsErr = NewAliyunClient()
		case "none":
			smsClient = NewMockClient()
		default:
			smsErr = fmt.Errorf("%w: %s", errors.ErrUnsupportedSMSProvider, cfg.SMSProvider)
		}

		if smsErr != nil {
			logger.Logger.Error("Failed to initialize SMS client", zap.Error(smsErr))
			return
		}

		logger.Logger.Info("SMS client initialized successfully",
			zap.String("provider", cfg.SMSProvider),
		)
	})

	return smsErr
}

// SetClient 测试时注入
func SetClient(c Client) {
	smsClient = c
}

func GetClient() Client {
	if smsClient == nil {
		panic("SMS client not initialized, call sms.Init() first")
	}
	return smsClient
}

func SendSingle(ctx context.Context, phone, signName, templateCode, templateParam string) (*SendResponse, error) {
	return GetClient().SendSingle(ctx, phone, signName, templateCode, templateParam)
}
