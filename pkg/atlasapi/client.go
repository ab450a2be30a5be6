package atlasapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/hertz/pkg/app/client"
	"github.com/cloudwego/hertz/pkg/common/config"
	"github.com/cloudwego/hertz/pkg/protocol"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"
	"go.uber.org/zap"

	"atlaswd/pkg/breaker"
	"atlaswd/pkg/logger"
	"atlaswd/pkg/metrics"
)

var (
	// ErrUnavailable 上游无响应、5xx 或熔断中
	ErrUnavailable = errors.New("atlas api unavailable")
	// ErrMalformedResponse 2xx 但响应体不是 JSON 对象
	ErrMalformedResponse = errors.New("atlas api returned malformed response")
)

// Client Atlas REST 后端的薄封装，不做重试
type Client struct {
	baseURL string
	http    *client.Client
	breaker *breaker.CircuitBreaker
}

type options struct {
	timeout     time.Duration
	maxFailures int
	reset       time.Duration
	tracing     bool
}

type Option func(*options)

func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithBreaker 连续 maxFailures 次失败后熔断 reset 时长
func WithBreaker(maxFailures int, reset time.Duration) Option {
	return func(o *options) {
		o.maxFailures = maxFailures
		o.reset = reset
	}
}

// WithTracing 在出站请求上注入 trace 上下文
func WithTracing() Option {
	return func(o *options) { o.tracing = true }
}

func New(baseURL string, opts ...Option) (*Client, error) {
	o := options{timeout: 10 * time.Second, maxFailures: 5, reset: 30 * time.Second}
	for _, opt := range opts {
		opt(&o)
	}

	clientOpts := []config.ClientOption{
		client.WithDialTimeout(o.timeout),
		client.WithClientReadTimeout(o.timeout),
		client.WithWriteTimeout(o.timeout),
	}

	hc, err := client.NewClient(clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create hertz client: %w", err)
	}
	if o.tracing {
		hc.Use(hertztracing.ClientMiddleware())
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    hc,
		breaker: breaker.New("atlas_api", o.maxFailures, o.reset),
	}, nil
}

var (
	defaultClient *Client
	defaultMu     sync.RWMutex
)

// Init 初始化全局客户端
func Init(baseURL string, opts ...Option) error {
	c, err := New(baseURL, opts...)
	if err != nil {
		return err
	}
	defaultMu.Lock()
	defaultClient = c
	defaultMu.Unlock()

	logger.Logger.Info("Atlas API client initialized", zap.String("base_url", c.baseURL))
	return nil
}

// Default 返回全局客户端，未初始化时为 nil
func Default() *Client {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultClient
}

// Breaker 暴露熔断器状态，健康检查用
func (c *Client) Breaker() *breaker.CircuitBreaker {
	return c.breaker
}

// post 发送 JSON 请求。传输错误与 5xx 计入熔断，4xx 转成 APIError
func (c *Client) post(ctx context.Context, path string, body any) (*Result, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req := protocol.AcquireRequest()
	resp := protocol.AcquireResponse()
	defer protocol.ReleaseRequest(req)
	defer protocol.ReleaseResponse(resp)

	req.SetRequestURI(c.baseURL + path)
	req.SetMethod(consts.MethodPost)
	req.Header.SetContentTypeBytes([]byte("application/json"))
	req.Header.Set("Accept", "application/json")
	req.SetBody(payload)

	var (
		status int
		raw    []byte
	)
	start := time.Now()
	err = c.breaker.Call(ctx, func() error {
		if err := c.http.Do(ctx, req, resp); err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		status = resp.StatusCode()
		raw = append([]byte(nil), resp.Body()...)
		if status >= consts.StatusInternalServerError {
			return fmt.Errorf("%w: %w", ErrUnavailable, newAPIError(status, raw))
		}
		return nil
	})
	metrics.GetMetrics().RecordUpstream(ctx, path, status, time.Since(start).Seconds())

	if errors.Is(err, breaker.ErrOpen) {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if err != nil {
		logger.Logger.Warn("Atlas API request failed",
			zap.String("path", path),
			zap.Int("status", status),
			zap.Error(err),
		)
		return nil, err
	}

	if status < 200 || status >= 300 {
		return nil, newAPIError(status, raw)
	}
	return parseResult(raw)
}
