package slider

import (
	"context"
	"fmt"

	captcha "github.com/alibabacloud-go/captcha-20230305/client"
	openapi "github.com/alibabacloud-go/darabonba-openapi/v2/client"
	"github.com/alibabacloud-go/tea/tea"
	credential "github.com/aliyun/credentials-go/credentials"
	"go.uber.org/zap"

	"atlaswd/pkg/errors"
	"atlaswd/pkg/logger"
)

// AliyunClient 阿里云智能验证码 2.0，sceneID 为空时用默认场景
type AliyunClient struct {
	client       *captcha.Client
	defaultScene string
}

func NewAliyunClient(endpoint, defaultScene string) (*AliyunClient, error) {
	cred, err := credential.NewCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create aliyun credential: %w", err)
	}

	client, err := captcha.NewClient(&openapi.Config{
		Credential: cred,
		Endpoint:   tea.String(endpoint),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create captcha client: %w", err)
	}

	return &AliyunClient{client: client, defaultScene: defaultScene}, nil
}

func (c *AliyunClient) Verify(ctx context.Context, captchaVerifyParam, sceneID string) (bool, error) {
	if captchaVerifyParam == "" {
		return false, errors.ErrCaptchaTokenRequired
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if sceneID == "" {
		sceneID = c.defaultScene
	}

	resp, err := c.client.VerifyIntelligentCaptcha(&captcha.VerifyIntelligentCaptchaRequest{
		CaptchaVerifyParam: tea.String(captchaVerifyParam),
		SceneId:            tea.String(sceneID),
	})
	if err != nil {
		logger.Logger.Error("Captcha request failed", zap.String("scene", sceneID), zap.Error(err))
		return false, fmt.Errorf("failed to verify captcha: %w", err)
	}
	if resp == nil {
		return false, errors.ErrCaptchaResponseNil
	}

	ok, err := verdict(resp.Body)
	if err != nil {
		logger.Logger.Warn("Captcha rejected", zap.String("scene", sceneID), zap.Error(err))
	}
	return ok, err
}

// verdict 解析响应体：Code 非 200 视为接口错误，VerifyResult 为 false 视为未通过
func verdict(body *captcha.VerifyIntelligentCaptchaResponseBody) (bool, error) {
	if body == nil {
		return false, errors.ErrCaptchaResponseNil
	}

	if code := tea.StringValue(body.Code); code != "" && code != "200" {
		return false, fmt.Errorf("%w: %s %s", errors.ErrCaptchaVerificationFailed, code, tea.StringValue(body.Message))
	}
	if body.Result == nil {
		return false, errors.ErrCaptchaResponseNil
	}
	if !tea.BoolValue(body.Result.VerifyResult) {
		return false, fmt.Errorf("%w: %s", errors.ErrCaptchaVerificationFailed, tea.StringValue(body.Result.VerifyCode))
	}
	return true, nil
}
