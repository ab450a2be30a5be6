package slider

import (
	"context"

	"atlaswd/pkg/errors"
)

// MockClient 开发环境使用，不进行真实的验证
type MockClient struct{}

// Verify 参数不为空就认为验证通过
func (m *MockClient) Verify(ctx context.Context, captchaVerifyParam, sceneID string) (bool, error) {
	if captchaVerifyParam == "" {
		return false, errors.ErrCaptchaTokenRequired
	}
	return true, nil
}
