package handler

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"

	"atlaswd/internal/middleware"
	"atlaswd/internal/model/dto"
	"atlaswd/internal/service"
	pkgerrors "atlaswd/pkg/errors"
	"atlaswd/pkg/response"
)

// GetMe 当前登录用户
// GET /v1/session/me
func GetMe(ctx context.Context, c *app.RequestContext) {
	userID, ok := middleware.GetUserID(ctx, c)
	if !ok {
		response.Error(ctx, c, pkgerrors.Unauthorized)
		return
	}

	user, err := service.Session().Me(ctx, userID)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, user)
}

// RefreshToken 轮换 refresh token
// POST /v1/session/refresh
func RefreshToken(ctx context.Context, c *app.RequestContext) {
	var req dto.RefreshTokenRequest
	if err := c.BindJSON(&req); err != nil {
		response.BindError(ctx, c, err)
		return
	}
	if req.RefreshToken == "" {
		response.Error(ctx, c, pkgerrors.RefreshInvalid)
		return
	}

	pair, err := service.Session().Refresh(ctx, req.RefreshToken)
	if err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.Success(ctx, c, pair)
}

// Logout 删除会话，上游 token 一并丢弃
// POST /v1/session/logout
func Logout(ctx context.Context, c *app.RequestContext) {
	userID, ok := middleware.GetUserID(ctx, c)
	if !ok {
		response.Error(ctx, c, pkgerrors.Unauthorized)
		return
	}

	if err := service.Session().Logout(ctx, userID); err != nil {
		response.Error(ctx, c, err)
		return
	}
	response.NoContent(ctx, c)
}
