package middleware

import (
	"context"
	"fmt"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/hertz-contrib/jwt"

	pkgerrors "atlaswd/pkg/errors"
	"atlaswd/pkg/response"
	"atlaswd/pkg/token"
)

const IdentityKey = token.IdentityKey

var authMiddleware *jwt.HertzJWTMiddleware

func initAuthMiddleware() error {
	// 与 token 包共用密钥和时长，签发与校验保持一致
	shared := token.GetGenerator()
	if shared == nil {
		return fmt.Errorf("token generator not initialized, call token.Init() first")
	}

	mw, err := jwt.New(&jwt.HertzJWTMiddleware{
		Realm:       "atlaswd",
		Key:         shared.Key,
		Timeout:     shared.Timeout,
		MaxRefresh:  shared.MaxRefresh,
		IdentityKey: shared.IdentityKey,
		TimeFunc:    shared.TimeFunc,

		IdentityHandler: func(ctx context.Context, c *app.RequestContext) interface{} {
			claims := jwt.ExtractClaims(ctx, c)
			uid, ok := claims[IdentityKey].(string)
			if !ok || uid == "" {
				return nil
			}
			return uid
		},

		// refresh token 不能用来访问接口
		Authorizator: func(data interface{}, ctx context.Context, c *app.RequestContext) bool {
			if data == nil {
				return false
			}
			claims := jwt.ExtractClaims(ctx, c)
			tokenType, _ := claims["type"].(string)
			return tokenType == "access"
		},

		Unauthorized: func(ctx context.Context, c *app.RequestContext, code int, message string) {
			response.Error(ctx, c, pkgerrors.Unauthorized.WithMessage(message))
		},

		TokenLookup:   "header: Authorization",
		TokenHeadName: "Bearer",
	})
	if err != nil {
		return fmt.Errorf("failed to create jwt middleware: %w", err)
	}

	authMiddleware = mw
	return nil
}

func AuthMiddleware() app.HandlerFunc {
	if authMiddleware == nil {
		panic("AuthMiddleware not initialized, call Init() first")
	}
	return authMiddleware.MiddlewareFunc()
}

// GetUserID 从请求上下文中获取 BFF 用户 ID
func GetUserID(ctx context.Context, c *app.RequestContext) (string, bool) {
	userID, exists := c.Get(IdentityKey)
	if !exists {
		return "", false
	}

	id, ok := userID.(string)
	if !ok {
		return "", false
	}

	return id, true
}
