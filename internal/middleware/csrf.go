package middleware

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/hertz-contrib/csrf"

	"atlaswd/config"
	pkgerrors "atlaswd/pkg/errors"
	"atlaswd/pkg/response"
)

const csrfHeader = "X-CSRF-Token"

// CSRFMiddleware 依赖 SessionMiddleware，需注册在其后。
// GET 请求放行并在响应头下发 token，前端在 POST 时放回同名请求头
func CSRFMiddleware() app.HandlerFunc {
	if !config.Cfg.CSRFEnabled {
		return func(ctx context.Context, c *app.RequestContext) {
			c.Next(ctx)
		}
	}

	secret := config.Cfg.CSRFSecret
	if secret == "" {
		secret = config.Cfg.SessionSecret
	}

	protect := csrf.New(
		csrf.WithSecret(secret),
		csrf.WithKeyLookUp("header:"+csrfHeader),
		csrf.WithErrorFunc(func(ctx context.Context, c *app.RequestContext) {
			response.Error(ctx, c, pkgerrors.CSRFInvalid)
			c.Abort()
		}),
	)

	return func(ctx context.Context, c *app.RequestContext) {
		protect(ctx, c)
		if !c.IsAborted() {
			c.Header(csrfHeader, csrf.GetToken(c))
		}
	}
}

// CSRFToken 未启用 CSRF 时返回空串
func CSRFToken(c *app.RequestContext) string {
	if !config.Cfg.CSRFEnabled {
		return ""
	}
	return csrf.GetToken(c)
}
