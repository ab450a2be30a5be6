package middleware

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/cloudwego/hertz/pkg/app"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"atlaswd/config"
	pkgerrors "atlaswd/pkg/errors"
	"atlaswd/pkg/logger"
	"atlaswd/pkg/response"
)

// RecoverConfig recover 中间件配置
type RecoverConfig struct {
	EnableStackTrace bool
	// 非生产环境在响应 details 中返回 panic 信息
	ExposeDetails bool
	RecordInSpan  bool
	// 严重错误回调（可用于告警）
	OnSevereError func(ctx context.Context, c *app.RequestContext, err interface{}, stack []byte)
}

func NewRecoverConfig() RecoverConfig {
	return RecoverConfig{
		EnableStackTrace: true,
		ExposeDetails:    !config.Cfg.IsProduction(),
		RecordInSpan:     true,
	}
}

func RecoverMiddleware() app.HandlerFunc {
	return RecoverMiddlewareWithConfig(NewRecoverConfig())
}

func RecoverMiddlewareWithConfig(cfg RecoverConfig) app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		defer func() {
			if err := recover(); err != nil {
				handlePanic(ctx, c, err, cfg)
			}
		}()

		c.Next(ctx)
	}
}

func handlePanic(ctx context.Context, c *app.RequestContext, err interface{}, cfg RecoverConfig) {
	var stack []byte
	if cfg.EnableStackTrace {
		stack = debug.Stack()
	}

	fields := []zap.Field{
		zap.String("panic", fmt.Sprintf("%v", err)),
		zap.String("path", string(c.Path())),
		zap.String("method", string(c.Method())),
		zap.String("client_ip", c.ClientIP()),
		zap.String("request_id", requestID(c)),
	}
	if userID, exists := GetUserID(ctx, c); exists {
		fields = append(fields, zap.String("user_id", userID))
	}
	// 请求体可能含密码和验证码，不记录
	if len(stack) > 0 {
		fields = append(fields, zap.ByteString("stack", stack))
	}
	logger.Logger.Error("[PANIC RECOVERED]", fields...)

	if cfg.RecordInSpan {
		span := trace.SpanFromContext(ctx)
		span.RecordError(fmt.Errorf("panic: %v", err), trace.WithStackTrace(true))
		span.SetStatus(codes.Error, "panic recovered")
	}

	if isSeverePanic(err) && cfg.OnSevereError != nil {
		cfg.OnSevereError(ctx, c, err, stack)
	}

	var details map[string]interface{}
	if cfg.ExposeDetails {
		details = map[string]interface{}{"panic": fmt.Sprintf("%v", err)}
	}
	response.ErrorWithDetails(ctx, c, pkgerrors.InternalError, details)
	c.Abort()
}

func requestID(c *app.RequestContext) string {
	if id := c.GetHeader("X-Request-Id"); len(id) > 0 {
		return string(id)
	}
	return string(c.GetHeader("X-Trace-Id"))
}

// isSeverePanic 运行时级别的错误
func isSeverePanic(err interface{}) bool {
	if err == nil {
		return false
	}

	msg := fmt.Sprintf("%v", err)
	for _, pattern := range []string{
		"runtime: out of memory",
		"fatal error:",
		"concurrent map writes",
		"concurrent map read and map write",
		"index out of range",
		"nil pointer dereference",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
