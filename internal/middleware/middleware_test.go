package middleware

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/ut"
	ri "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atlaswd/config"
	"atlaswd/pkg/token"
	"atlaswd/storage/redis"
)

func setupRedis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr := miniredis.RunT(t)
	c := ri.NewClient(&ri.Options{Addr: mr.Addr()})
	redis.SetClient(c)
	t.Cleanup(func() { _ = c.Close() })
	return mr
}

func ok(ctx context.Context, c *app.RequestContext) {
	c.String(http.StatusOK, "ok")
}

func TestRateLimit_BlocksAfterLimit(t *testing.T) {
	mr := setupRedis(t)

	h := server.New()
	h.GET("/limited", RateLimitMiddleware(RateLimitConfig{
		Window:        60,
		MaxRequests:   2,
		KeyPrefix:     "rate:test",
		ByIP:          true,
		BlockDuration: 120,
	}), ok)

	for i := 0; i < 2; i++ {
		w := ut.PerformRequest(h.Engine, http.MethodGet, "/limited", nil)
		assert.Equal(t, http.StatusOK, w.Result().StatusCode())
	}

	w := ut.PerformRequest(h.Engine, http.MethodGet, "/limited", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Result().StatusCode())
	assert.Contains(t, string(w.Result().Body()), "TOO_MANY_REQUESTS")

	// 封禁期间即使窗口过去也拒绝
	mr.FastForward(61 * time.Second)
	w = ut.PerformRequest(h.Engine, http.MethodGet, "/limited", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Result().StatusCode())

	mr.FastForward(120 * time.Second)
	w = ut.PerformRequest(h.Engine, http.MethodGet, "/limited", nil)
	assert.Equal(t, http.StatusOK, w.Result().StatusCode())
}

func TestRateLimit_FailsOpenWithoutRedis(t *testing.T) {
	mr := setupRedis(t)
	mr.Close()

	h := server.New()
	h.GET("/limited", FlowRateLimitMiddleware(), ok)

	w := ut.PerformRequest(h.Engine, http.MethodGet, "/limited", nil)
	assert.Equal(t, http.StatusOK, w.Result().StatusCode())
}

func TestAuthMiddleware(t *testing.T) {
	config.Cfg.JWTSecret = "test-secret"
	t.Cleanup(func() { config.Cfg.JWTSecret = "" })
	require.NoError(t, token.Init())
	require.NoError(t, Init())

	h := server.New()
	h.GET("/me", AuthMiddleware(), func(ctx context.Context, c *app.RequestContext) {
		uid, _ := GetUserID(ctx, c)
		c.String(http.StatusOK, uid)
	})

	pair, err := token.GenerateTokenPair("u1")
	require.NoError(t, err)

	w := ut.PerformRequest(h.Engine, http.MethodGet, "/me", nil,
		ut.Header{Key: "Authorization", Value: "Bearer " + pair.AccessToken})
	assert.Equal(t, http.StatusOK, w.Result().StatusCode())
	assert.Equal(t, "u1", string(w.Result().Body()))

	w = ut.PerformRequest(h.Engine, http.MethodGet, "/me", nil,
		ut.Header{Key: "Authorization", Value: "Bearer " + pair.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, w.Result().StatusCode())

	w = ut.PerformRequest(h.Engine, http.MethodGet, "/me", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Result().StatusCode())
	assert.Contains(t, string(w.Result().Body()), "UNAUTHORIZED")
}

func TestCORS_AllowList(t *testing.T) {
	saved := config.Cfg.CORSAllowOrigins
	config.Cfg.CORSAllowOrigins = "https://app.atlas-wd.com"
	t.Cleanup(func() { config.Cfg.CORSAllowOrigins = saved })

	h := server.New()
	h.Use(CORSMiddleware())
	h.GET("/ping", ok)

	w := ut.PerformRequest(h.Engine, http.MethodGet, "/ping", nil,
		ut.Header{Key: "Origin", Value: "https://app.atlas-wd.com"})
	assert.Equal(t, "https://app.atlas-wd.com", w.Result().Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Result().Header.Get("Access-Control-Allow-Credentials"))

	w = ut.PerformRequest(h.Engine, http.MethodGet, "/ping", nil,
		ut.Header{Key: "Origin", Value: "https://evil.example"})
	assert.Empty(t, w.Result().Header.Get("Access-Control-Allow-Origin"))
}

func TestRecover(t *testing.T) {
	h := server.New()
	h.Use(RecoverMiddlewareWithConfig(RecoverConfig{ExposeDetails: false}))
	h.GET("/panic", func(ctx context.Context, c *app.RequestContext) {
		panic("boom")
	})

	w := ut.PerformRequest(h.Engine, http.MethodGet, "/panic", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Result().StatusCode())
	body := string(w.Result().Body())
	assert.Contains(t, body, "INTERNAL_ERROR")
	assert.NotContains(t, body, "boom")
}
