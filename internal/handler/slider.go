package handler

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"

	"atlaswd/internal/middleware"
	"atlaswd/internal/model/dto"
	"atlaswd/internal/service"
	"atlaswd/pkg/response"
)

// VerifySlider 滑块验证，通过后返回一次性 token，请求验证码时携带
// POST /v1/auth/slider/verify
func VerifySlider(ctx context.Context, c *app.RequestContext) {
	var req dto.VerifySliderRequest
	if err := c.BindJSON(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}

	token, expiresAt, err := service.Verification().VerifySlider(ctx, req.Email, req.CaptchaVerifyParam, req.SceneID)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	response.Success(ctx, c, dto.VerifySliderResponse{
		SliderVerificationToken: token,
		ExpiresAt:               expiresAt,
	})
}

// GetCSRFToken 前端首次提交前获取 CSRF token
// GET /v1/auth/csrf
func GetCSRFToken(ctx context.Context, c *app.RequestContext) {
	response.Success(ctx, c, map[string]string{"csrf_token": middleware.CSRFToken(c)})
}
