package atlasapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"atlaswd/pkg/breaker"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(srv.URL, append([]Option{WithTimeout(2 * time.Second)}, opts...)...)
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func TestLogin_ExtractsNestedTokenAndUser(t *testing.T) {
	var got LoginRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/auth/login", r.URL.Path)
		assert.Contains(t, r.Header.Get("Content-Type"), "application/json")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"data": map[string]any{
				"accessToken": "tok-1",
				"user":        map[string]any{"id": "u1", "email": "a@b.com"},
			},
		})
	})

	res, err := c.Login(context.Background(), LoginRequest{Email: "a@b.com", Password: "secret"})
	require.NoError(t, err)

	assert.Equal(t, LoginRequest{Email: "a@b.com", Password: "secret"}, got)
	assert.Equal(t, "tok-1", res.Token)
	assert.Equal(t, "u1", res.User["id"])
	assert.NotContains(t, res.Data, "accessToken")
	assert.NotContains(t, res.Data, "user")
}

func TestVerifyOTP_ReturnsVerificationData(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/auth/password/verify-otp", r.URL.Path)
		writeJSON(w, http.StatusOK, map[string]any{
			"message":    "OTP verified",
			"resetToken": "rt-9",
			"expiresIn":  600,
		})
	})

	res, err := c.VerifyPasswordResetOTP(context.Background(), "a@b.com", "1234")
	require.NoError(t, err)

	assert.Equal(t, "OTP verified", res.Message)
	assert.Equal(t, "rt-9", res.Data["resetToken"])
	assert.EqualValues(t, 600, res.Data["expiresIn"])
	assert.NotContains(t, res.Data, "message")
}

func TestClientError_BecomesAPIError(t *testing.T) {
	tests := []struct {
		name    string
		body    any
		code    string
		message string
	}{
		{"message field", map[string]any{"message": "Invalid credentials"}, "", "Invalid credentials"},
		{"nested error", map[string]any{"error": map[string]any{"code": "OTP_EXPIRED", "message": "Code expired"}}, "OTP_EXPIRED", "Code expired"},
		{"validation list", map[string]any{"errors": []any{map[string]any{"msg": "Email is taken"}}}, "", "Email is taken"},
		{"no message", map[string]any{"ok": false}, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusBadRequest, tt.body)
			})

			_, err := c.InitiateRegistration(context.Background(), "a@b.com")
			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, http.StatusBadRequest, apiErr.Status)
			assert.Equal(t, tt.code, apiErr.Code)
			assert.Equal(t, tt.message, apiErr.Message)
			assert.False(t, errors.Is(err, ErrUnavailable))
		})
	}
}

func TestServerError_OpensBreaker(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		writeJSON(w, http.StatusBadGateway, map[string]any{"message": "upstream down"})
	}, WithBreaker(2, time.Minute))

	for i := 0; i < 2; i++ {
		_, err := c.RequestPasswordReset(context.Background(), "a@b.com")
		require.ErrorIs(t, err, ErrUnavailable)

		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, "upstream down", apiErr.Message)
	}
	assert.Equal(t, breaker.StateOpen, c.Breaker().State())

	_, err := c.RequestPasswordReset(context.Background(), "a@b.com")
	require.ErrorIs(t, err, ErrUnavailable)
	require.ErrorIs(t, err, breaker.ErrOpen)
	assert.EqualValues(t, 2, hits.Load(), "open breaker must not reach the upstream")
}

func TestRegistrationRequest_OmitsEmptyReferral(t *testing.T) {
	var body map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		writeJSON(w, http.StatusCreated, map[string]any{"message": "Registered"})
	})

	res, err := c.CompleteRegistration(context.Background(), RegistrationRequest{
		Email: "a@b.com", OTP: "1234", FirstName: "A", LastName: "B", CompanyName: "C", Password: "password1",
	})
	require.NoError(t, err)

	assert.Empty(t, res.Token)
	assert.NotContains(t, body, "referralCode")
	assert.Equal(t, "1234", body["otp"])
}

func TestMalformedBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("<html>"))
	})

	_, err := c.ResendRegistrationOTP(context.Background(), "a@b.com")
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestWithTracing_InjectsTraceContext(t *testing.T) {
	prevProvider, prevPropagator := otel.GetTracerProvider(), otel.GetTextMapPropagator()
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prevProvider)
		otel.SetTextMapPropagator(prevPropagator)
	})

	var traceparent string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		traceparent = r.Header.Get("traceparent")
		writeJSON(w, http.StatusOK, map[string]any{"token": "tok-1"})
	}, WithTracing())

	ctx, span := tp.Tracer("test").Start(context.Background(), "login")
	res, err := c.Login(ctx, LoginRequest{Email: "a@b.com", Password: "secret"})
	span.End()
	require.NoError(t, err)

	assert.Equal(t, "tok-1", res.Token)
	assert.Contains(t, traceparent, span.SpanContext().TraceID().String())
}
