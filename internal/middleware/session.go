package middleware

import (
	"context"
	"net/http"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/google/uuid"
	"github.com/hertz-contrib/sessions"
	"github.com/hertz-contrib/sessions/cookie"
	"go.uber.org/zap"

	"atlaswd/config"
	"atlaswd/pkg/logger"
)

const (
	sessionClientKey = "client_id"
	sessionFlowKey   = "flow_id"
)

// SessionMiddleware 签名 cookie 会话，保存浏览器的 client id 与当前流程 id
func SessionMiddleware() app.HandlerFunc {
	cfg := config.Cfg
	store := cookie.NewStore([]byte(cfg.SessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   cfg.ReferralTTLDays * 24 * 3600,
		HttpOnly: true,
		Secure:   cfg.IsProduction(),
		SameSite: http.SameSiteLaxMode,
	})
	return sessions.New(cfg.SessionName, store)
}

// ClientMiddleware 首次访问时分配 client id，推荐码按它隔离
func ClientMiddleware() app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		session := sessions.Default(c)
		if id, _ := session.Get(sessionClientKey).(string); id == "" {
			session.Set(sessionClientKey, uuid.NewString())
			if err := session.Save(); err != nil {
				logger.Logger.Warn("Failed to save client session", zap.Error(err))
			}
		}
		c.Next(ctx)
	}
}

func ClientID(c *app.RequestContext) string {
	id, _ := sessions.Default(c).Get(sessionClientKey).(string)
	return id
}

func FlowID(c *app.RequestContext) string {
	id, _ := sessions.Default(c).Get(sessionFlowKey).(string)
	return id
}

func SetFlowID(c *app.RequestContext, flowID string) error {
	session := sessions.Default(c)
	session.Set(sessionFlowKey, flowID)
	return session.Save()
}

// ClearFlowID 流程结束后调用，client id 保留
func ClearFlowID(c *app.RequestContext) error {
	session := sessions.Default(c)
	session.Delete(sessionFlowKey)
	return session.Save()
}
