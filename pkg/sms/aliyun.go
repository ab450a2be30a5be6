package sms

import (
	"context"
	"encoding/json"
	"fmt"

	openapi "github.com/alibabacloud-go/darabonba-openapi/v2/client"
	openapiutil "github.com/alibabacloud-go/openapi-util/service"
	util "github.com/alibabacloud-go/tea-utils/v2/service"
	"github.com/alibabacloud-go/tea/tea"
	credential "github.com/aliyun/credentials-go/credentials"
	"go.uber.org/zap"

	"atlaswd/pkg/errors"
	"atlaswd/pkg/logger"
)

type AliyunClient struct {
	client *openapi.Client
}

// NewAliyunClient 凭据从环境变量读取：
// ALIBABA_CLOUD_ACCESS_KEY_ID / ALIBABA_CLOUD_ACCESS_KEY_SECRET
func NewAliyunClient() (*AliyunClient, error) {
	cred, err := credential.NewCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create aliyun credential: %w", err)
	}

	client, err := openapi.NewClient(&openapi.Config{
		Credential: cred,
		Endpoint:   tea.String("dysmsapi.aliyuncs.com"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create aliyun client: %w", err)
	}

	return &AliyunClient{client: client}, nil
}

func (c *AliyunClient) createApiInfo(action string) *openapi.Params {
	return &openapi.Params{
		Action:      tea.String(action),
		Version:     tea.String("2017-05-25"),
		Protocol:    tea.String("HTTPS"),
		Method:      tea.String("POST"),
		AuthType:    tea.String("AK"),
		Style:       tea.String("RPC"),
		Pathname:    tea.String("/"),
		ReqBodyType: tea.String("json"),
		BodyType:    tea.String("json"),
	}
}

// SendSingle 发送单条短信
func (c *AliyunClient) SendSingle(ctx context.Context, phone, signName, templateCode, templateParam string) (*SendResponse, error) {
	if signName == "" {
		return nil, errors.ErrSignNameRequired
	}
	if templateCode == "" {
		return nil, errors.ErrTemplateCodeRequired
	}

	queries := map[string]interface{}{
		"PhoneNumbers":  tea.String(phone),
		"SignName":      tea.String(signName),
		"TemplateCode":  tea.String(templateCode),
		"TemplateParam": tea.String(templateParam),
	}

	resp, err := c.client.CallApi(c.createApiInfo("SendSms"), &openapi.OpenApiRequest{
		Query: openapiutil.Query(queries),
	}, &util.RuntimeOptions{})
	if err != nil {
		logger.Logger.Error("Failed to send SMS",
			zap.String("template", templateCode),
			zap.Error(err),
		)
		return nil, fmt.Errorf("failed to send SMS: %w", err)
	}

	response, err := parseResponse(resp, templateCode)
	if err != nil {
		logger.Logger.Error("SMS send failed",
			zap.String("template", templateCode),
			zap.Error(err),
		)
		return nil, err
	}

	logger.Logger.Debug("SMS sent successfully",
		zap.String("template", templateCode),
		zap.String("message_id", response.MessageID),
	)
	return response, nil
}

// parseResponse 解析 CallApi 返回的 statusCode/body
func parseResponse(resp map[string]interface{}, templateCode string) (*SendResponse, error) {
	if raw, ok := resp["statusCode"]; ok && raw != nil {
		statusCode, err := parseStatusCode(raw)
		if err != nil {
			return nil, err
		}
		if statusCode != 200 {
			return nil, fmt.Errorf("SMS API error: statusCode=%d", statusCode)
		}
	}

	response := &SendResponse{
		Provider: "aliyun",
		Template: templateCode,
	}

	if resp["body"] == nil {
		return response, nil
	}

	bodyBytes, err := json.Marshal(resp["body"])
	if err != nil {
		return nil, fmt.Errorf("failed to marshal response body: %w", err)
	}
	var body struct {
		BizID     string `json:"BizId"`
		Code      string `json:"Code"`
		Message   string `json:"Message"`
		RequestID string `json:"RequestId"`
	}
	if err := json.Unmarshal(bodyBytes, &body); err != nil {
		return nil, fmt.Errorf("failed to decode response body: %w", err)
	}

	response.MessageID = body.BizID
	response.Code = body.Code
	response.Message = body.Message
	response.RequestID = body.RequestID

	if response.Code != "OK" {
		// 模板或签名配置错误，重发没有意义
		if isNonRetryableError(response.Code) {
			return nil, &errors.SkipMessageError{Reason: response.Code + ": " + response.Message}
		}
		return nil, fmt.Errorf("SMS send failed: %s - %s", response.Code, response.Message)
	}

	return response, nil
}

func parseStatusCode(v interface{}) (int, error) {
	switch code := v.(type) {
	case int:
		return code, nil
	case int32:
		return int(code), nil
	case int64:
		return int(code), nil
	case float64:
		return int(code), nil
	case *int:
		if code != nil {
			return *code, nil
		}
	}
	return 0, fmt.Errorf("unexpected SMS status code type %T", v)
}

func isNonRetryableError(code string) bool {
	switch code {
	case "isv.SMS_TEMPLATE_ILLEGAL",
		"isv.SMS_SIGNATURE_ILLEGAL",
		"isv.TEMPLATE_MISSING_PARAMETERS",
		"isv.INVALID_PARAMETERS",
		"isv.MOBILE_NUMBER_ILLEGAL",
		"isv.PARAM_LENGTH_LIMIT":
		return true
	}
	return false
}
