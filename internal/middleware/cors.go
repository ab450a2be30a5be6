package middleware

import (
	"context"
	"strings"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"atlaswd/config"
)

// CORSMiddleware 会话依赖 cookie，必须回显具体来源而不是 *
func CORSMiddleware() app.HandlerFunc {
	allowed := parseOrigins(config.Cfg.CORSAllowOrigins)

	return func(ctx context.Context, c *app.RequestContext) {
		origin := string(c.Request.Header.Get("Origin"))

		if origin != "" && originAllowed(allowed, origin) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
			c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-CSRF-Token, X-Request-Id")
			c.Header("Access-Control-Expose-Headers", "Content-Length, X-CSRF-Token, X-RateLimit-Remaining")
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Max-Age", "86400")
		}

		if string(c.Method()) == consts.MethodOptions {
			c.AbortWithStatus(consts.StatusNoContent)
			return
		}

		c.Next(ctx)
	}
}

func parseOrigins(raw string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" {
			out[o] = struct{}{}
		}
	}
	return out
}

// originAllowed 未配置白名单时只在开发环境放行
func originAllowed(allowed map[string]struct{}, origin string) bool {
	if len(allowed) == 0 {
		return config.Cfg.IsDevelopment()
	}
	_, ok := allowed[origin]
	return ok
}
