package router

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/ut"
	"github.com/cloudwego/hertz/pkg/protocol"
	ri "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atlaswd/config"
	"atlaswd/internal/middleware"
	"atlaswd/pkg/atlasapi"
	"atlaswd/pkg/slider"
	"atlaswd/pkg/token"
	"atlaswd/storage/redis"
)

// upstream 模拟 Atlas-WD 后端
func upstream() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)

		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/auth/login":
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"Invalid credentials"}`))
		case "/api/auth/register/initiate":
			_, _ = w.Write([]byte(`{"message":"Code sent"}`))
		case "/api/auth/register/verify-otp":
			_, _ = w.Write([]byte(`{"data":{"verified":true}}`))
		case "/api/auth/register/complete":
			if body["referralCode"] != "ABC123" {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"message":"missing referral"}`))
				return
			}
			_, _ = w.Write([]byte(`{"token":"upstream-token","user":{"id":"u-9","email":"a@b.com","firstName":"Ada"}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

// 服务实例是进程内单例，上游地址只能初始化一次
func TestMain(m *testing.M) {
	srv := upstream()
	if err := atlasapi.Init(srv.URL); err != nil {
		panic(err)
	}
	code := m.Run()
	srv.Close()
	os.Exit(code)
}

func setup(t *testing.T) *server.Hertz {
	t.Helper()

	mr := miniredis.RunT(t)
	c := ri.NewClient(&ri.Options{Addr: mr.Addr()})
	redis.SetClient(c)
	t.Cleanup(func() { _ = c.Close() })

	config.Cfg.JWTSecret = "test-secret"
	config.Cfg.SessionSecret = "session-secret"
	config.Cfg.EncryptionKey = "0123456789abcdef"
	config.Cfg.CSRFEnabled = false
	require.NoError(t, token.Init())
	require.NoError(t, middleware.Init())
	slider.SetClient(&slider.MockClient{})

	h := server.New()
	Register(h)
	return h
}

type client struct {
	h      *server.Hertz
	cookie string
}

func (cl *client) do(method, path, body, bearer string) *protocol.Response {
	headers := []ut.Header{{Key: "Content-Type", Value: "application/json"}}
	if cl.cookie != "" {
		headers = append(headers, ut.Header{Key: "Cookie", Value: cl.cookie})
	}
	if bearer != "" {
		headers = append(headers, ut.Header{Key: "Authorization", Value: "Bearer " + bearer})
	}

	var b *ut.Body
	if body != "" {
		b = &ut.Body{Body: strings.NewReader(body), Len: len(body)}
	}
	resp := ut.PerformRequest(cl.h.Engine, method, path, b, headers...).Result()

	resp.Header.VisitAllCookie(func(_, value []byte) {
		cl.cookie = strings.SplitN(string(value), ";", 2)[0]
	})
	return resp
}

func decode(t *testing.T, resp *protocol.Response) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(resp.Body(), &out))
	return out
}

func TestSignupFlowEndToEnd(t *testing.T) {
	h := setup(t)
	cl := &client{h: h}

	resp := cl.do(http.MethodPost, "/v1/auth/flows?mode=signup&ref=ABC123", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode(), string(resp.Body()))
	view := decode(t, resp)["data"].(map[string]any)
	assert.Equal(t, "requestOTPSignup", view["step"])
	assert.NotEmpty(t, cl.cookie)

	resp = cl.do(http.MethodPost, "/v1/auth/flows/current/otp", `{"email":"a@b.com"}`, "")
	require.Equal(t, http.StatusOK, resp.StatusCode(), string(resp.Body()))
	view = decode(t, resp)["data"].(map[string]any)
	assert.Equal(t, "verifyOTPSignup", view["step"])

	resp = cl.do(http.MethodPost, "/v1/auth/flows/current/otp/verify", `{"otp":"12"}`, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode())
	errBody := decode(t, resp)["error"].(map[string]any)
	assert.Equal(t, "VALIDATION_FAILED", errBody["code"])
	assert.Equal(t, "otp", errBody["details"].(map[string]any)["field"])

	resp = cl.do(http.MethodPost, "/v1/auth/flows/current/otp/verify", `{"otp":"1234"}`, "")
	require.Equal(t, http.StatusOK, resp.StatusCode(), string(resp.Body()))
	view = decode(t, resp)["data"].(map[string]any)
	assert.Equal(t, "completeRegistration", view["step"])
	assert.Empty(t, view["error"])

	resp = cl.do(http.MethodPost, "/v1/auth/flows/current/registration", `{
		"first_name":"Ada","last_name":"Lovelace","company_name":"Analytical",
		"password":"password1","confirm_password":"password1"}`, "")
	require.Equal(t, http.StatusOK, resp.StatusCode(), string(resp.Body()))
	view = decode(t, resp)["data"].(map[string]any)
	assert.Equal(t, "registered", view["outcome"])
	session := view["session"].(map[string]any)
	accessToken := session["access_token"].(string)
	require.NotEmpty(t, accessToken)

	// 流程结束后 cookie 中不再有 flow id
	resp = cl.do(http.MethodGet, "/v1/auth/flows/current", "", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode())

	resp = cl.do(http.MethodGet, "/v1/session/me", "", accessToken)
	require.Equal(t, http.StatusOK, resp.StatusCode(), string(resp.Body()))
	me := decode(t, resp)["data"].(map[string]any)
	assert.Equal(t, "u-9", me["id"])
	assert.NotContains(t, string(resp.Body()), "upstream-token")

	resp = cl.do(http.MethodPost, "/v1/session/refresh", `{"refresh_token":"`+session["refresh_token"].(string)+`"}`, "")
	require.Equal(t, http.StatusOK, resp.StatusCode(), string(resp.Body()))

	resp = cl.do(http.MethodPost, "/v1/session/logout", "", accessToken)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode())

	resp = cl.do(http.MethodGet, "/v1/session/me", "", accessToken)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode())
}

func TestLoginRejectedIsInline(t *testing.T) {
	h := setup(t)
	cl := &client{h: h}

	resp := cl.do(http.MethodGet, "/v1/auth/flows/current", "", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode())

	resp = cl.do(http.MethodPost, "/v1/auth/flows", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode())

	resp = cl.do(http.MethodPost, "/v1/auth/flows/current/login", `{"email":"a@b.com","password":"wrong"}`, "")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode())
	errBody := decode(t, resp)["error"].(map[string]any)
	assert.Equal(t, "UPSTREAM_REJECTED", errBody["code"])
	assert.Equal(t, "Invalid credentials", errBody["message"])

	resp = cl.do(http.MethodGet, "/v1/auth/flows/current", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode())
	view := decode(t, resp)["data"].(map[string]any)
	assert.Equal(t, "login", view["step"])
	assert.Equal(t, "Invalid credentials", view["error"])

	resp = cl.do(http.MethodPost, "/v1/auth/flows/current/back", "", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode())

	resp = cl.do(http.MethodPost, "/v1/auth/flows/current/login", `{bad json`, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode())
}

func TestSliderVerify(t *testing.T) {
	h := setup(t)
	cl := &client{h: h}

	resp := cl.do(http.MethodPost, "/v1/auth/slider/verify", `{"email":"a@b.com","captcha_verify_param":"param"}`, "")
	require.Equal(t, http.StatusOK, resp.StatusCode(), string(resp.Body()))
	data := decode(t, resp)["data"].(map[string]any)
	assert.NotEmpty(t, data["slider_verification_token"])

	resp = cl.do(http.MethodPost, "/v1/auth/slider/verify", `{"email":"a@b.com"}`, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode())
}

func TestHealth(t *testing.T) {
	h := setup(t)
	cl := &client{h: h}

	resp := cl.do(http.MethodGet, "/healthz", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode())
	body := decode(t, resp)
	assert.Equal(t, "ok", body["data"].(map[string]any)["status"])
	upstream := body["meta"].(map[string]any)["upstream"].(map[string]any)
	assert.Equal(t, "closed", upstream["state"])
}
