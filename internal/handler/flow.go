package handler

import (
	"context"
	stderrors "errors"
	"net/url"

	"github.com/cloudwego/hertz/pkg/app"
	"go.uber.org/zap"

	"atlaswd/internal/middleware"
	"atlaswd/internal/model/dto"
	"atlaswd/internal/service"
	pkgerrors "atlaswd/pkg/errors"
	"atlaswd/pkg/logger"
	"atlaswd/pkg/response"
)

// MountFlow 创建新的认证流程，入口查询参数中的 ref 作为推荐码
// POST /v1/auth/flows?mode=signup|login&ref=CODE
func MountFlow(ctx context.Context, c *app.RequestContext) {
	entry, err := url.ParseQuery(string(c.QueryArgs().QueryString()))
	if err != nil {
		response.BindError(ctx, c, err)
		return
	}

	view, err := service.Flow().Mount(ctx, middleware.ClientID(c), c.Query("mode"), entry)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}

	if err := middleware.SetFlowID(c, view.ID); err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, view)
}

// GetCurrentFlow 当前步骤视图
// GET /v1/auth/flows/current
func GetCurrentFlow(ctx context.Context, c *app.RequestContext) {
	ref, ok := currentFlow(ctx, c)
	if !ok {
		return
	}

	view, err := service.Flow().Current(ctx, ref)
	if err != nil {
		if stderrors.Is(err, pkgerrors.FlowNotFound) {
			clearFlow(c)
		}
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, view)
}

// GoBack POST /v1/auth/flows/current/back
func GoBack(ctx context.Context, c *app.RequestContext) {
	submit(ctx, c, func(ref service.FlowRef) (*dto.FlowView, error) {
		return service.Flow().Back(ctx, ref)
	})
}

// ForgotPassword POST /v1/auth/flows/current/forgot-password
func ForgotPassword(ctx context.Context, c *app.RequestContext) {
	submit(ctx, c, func(ref service.FlowRef) (*dto.FlowView, error) {
		return service.Flow().ForgotPassword(ctx, ref)
	})
}

// StartSignup POST /v1/auth/flows/current/signup
func StartSignup(ctx context.Context, c *app.RequestContext) {
	submit(ctx, c, func(ref service.FlowRef) (*dto.FlowView, error) {
		return service.Flow().Signup(ctx, ref)
	})
}

// Login 邮箱密码登录
// POST /v1/auth/flows/current/login
func Login(ctx context.Context, c *app.RequestContext) {
	var req dto.LoginRequest
	if err := c.BindJSON(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}
	submit(ctx, c, func(ref service.FlowRef) (*dto.FlowView, error) {
		return service.Flow().Login(ctx, ref, req)
	})
}

// RequestOTP 发送注册或找回密码验证码
// POST /v1/auth/flows/current/otp
func RequestOTP(ctx context.Context, c *app.RequestContext) {
	var req dto.RequestOTPRequest
	if err := c.BindJSON(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}
	submit(ctx, c, func(ref service.FlowRef) (*dto.FlowView, error) {
		return service.Flow().RequestOTP(ctx, ref, req)
	})
}

// ResendOTP POST /v1/auth/flows/current/otp/resend
func ResendOTP(ctx context.Context, c *app.RequestContext) {
	var req dto.ResendOTPRequest
	if len(c.Request.Body()) > 0 {
		if err := c.BindJSON(&req); err != nil {
			response.BindError(ctx, c, err)
			return
		}
	}
	submit(ctx, c, func(ref service.FlowRef) (*dto.FlowView, error) {
		return service.Flow().ResendOTP(ctx, ref, req.SliderToken)
	})
}

// VerifyOTP POST /v1/auth/flows/current/otp/verify
func VerifyOTP(ctx context.Context, c *app.RequestContext) {
	var req dto.VerifyOTPRequest
	if err := c.BindJSON(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}
	submit(ctx, c, func(ref service.FlowRef) (*dto.FlowView, error) {
		return service.Flow().VerifyOTP(ctx, ref, req)
	})
}

// SetNewPassword POST /v1/auth/flows/current/password
func SetNewPassword(ctx context.Context, c *app.RequestContext) {
	var req dto.NewPasswordRequest
	if err := c.BindJSON(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}
	submit(ctx, c, func(ref service.FlowRef) (*dto.FlowView, error) {
		return service.Flow().SetNewPassword(ctx, ref, req)
	})
}

// CompleteRegistration POST /v1/auth/flows/current/registration
func CompleteRegistration(ctx context.Context, c *app.RequestContext) {
	var req dto.RegistrationRequest
	if err := c.BindJSON(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}
	submit(ctx, c, func(ref service.FlowRef) (*dto.FlowView, error) {
		return service.Flow().CompleteRegistration(ctx, ref, req)
	})
}

func currentFlow(ctx context.Context, c *app.RequestContext) (service.FlowRef, bool) {
	ref := service.FlowRef{
		ClientID: middleware.ClientID(c),
		FlowID:   middleware.FlowID(c),
	}
	if ref.FlowID == "" {
		response.Error(ctx, c, pkgerrors.FlowNotFound)
		return ref, false
	}
	c.Set("flow_id", ref.FlowID)
	return ref, true
}

// submit 执行一次步骤提交；流程结束或已失效时从 cookie 中移除 flow id
func submit(ctx context.Context, c *app.RequestContext, fn func(ref service.FlowRef) (*dto.FlowView, error)) {
	ref, ok := currentFlow(ctx, c)
	if !ok {
		return
	}

	view, err := fn(ref)
	if err != nil {
		if stderrors.Is(err, pkgerrors.FlowNotFound) || stderrors.Is(err, pkgerrors.FlowFinished) {
			clearFlow(c)
		}
		response.ErrorWithDetails(ctx, c, err, service.ErrorDetails(err))
		return
	}

	if view.Outcome != "" {
		clearFlow(c)
	}
	response.Success(ctx, c, view)
}

func clearFlow(c *app.RequestContext) {
	if err := middleware.ClearFlowID(c); err != nil {
		logger.Logger.Warn("Failed to clear flow id from session", zap.Error(err))
	}
}
