package middleware

import (
	"context"
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/config"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// HTTP 指标，InitMetrics 之前为 nil，中间件跳过记录
var (
	httpServerRequestTotal   metric.Int64Counter
	httpServerDuration       metric.Float64Histogram
	httpServerActiveRequests metric.Int64UpDownCounter
)

// toValidUTF8 用户可控字符串先清洗，非法 UTF-8 会导致导出失败
func toValidUTF8(val string) string {
	return strings.ToValidUTF8(val, "")
}

func InitMetrics(meter metric.Meter) error {
	var err error

	if httpServerRequestTotal, err = meter.Int64Counter(
		"http.server.requests.total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	); err != nil {
		return err
	}

	if httpServerDuration, err = meter.Float64Histogram(
		"http.server.duration",
		metric.WithDescription("HTTP request duration"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0),
	); err != nil {
		return err
	}

	if httpServerActiveRequests, err = meter.Int64UpDownCounter(
		"http.server.active_requests",
		metric.WithDescription("Number of active HTTP requests"),
		metric.WithUnit("{request}"),
	); err != nil {
		return err
	}

	return nil
}

// InitDefaultMetrics 使用全局 MeterProvider
func InitDefaultMetrics() error {
	return InitMetrics(otel.Meter("atlaswd/http"))
}

// OpenTelemetryMiddleware 给 hertz tracer 创建的 span 补充流程相关属性并记录 HTTP 指标。
// route 使用注册时的路径模板，避免 flow id 等参数撑爆指标维度
func OpenTelemetryMiddleware() app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		if httpServerRequestTotal == nil {
			c.Next(ctx)
			return
		}

		start := time.Now()
		httpServerActiveRequests.Add(ctx, 1)

		c.Next(ctx)

		method := toValidUTF8(string(c.Method()))
		route := toValidUTF8(c.FullPath())
		if route == "" {
			route = "unmatched"
		}
		status := c.Response.StatusCode()

		span := trace.SpanFromContext(ctx)
		if id := requestID(c); id != "" {
			span.SetAttributes(attribute.String("http.request_id", toValidUTF8(id)))
		}
		if userID, ok := GetUserID(ctx, c); ok {
			span.SetAttributes(attribute.String("enduser.id", toValidUTF8(userID)))
		}
		if flowID := c.GetString("flow_id"); flowID != "" {
			span.SetAttributes(attribute.String("auth.flow_id", flowID))
		}

		labels := metric.WithAttributes(
			semconv.HTTPMethod(method),
			semconv.HTTPRoute(route),
			semconv.HTTPStatusCode(status),
		)
		httpServerRequestTotal.Add(ctx, 1, labels)
		httpServerDuration.Record(ctx, time.Since(start).Seconds(), labels)
		httpServerActiveRequests.Add(ctx, -1)
	}
}

// NewServerTracerConfig 返回 hertz server 的追踪选项与配套中间件
func NewServerTracerConfig(opts ...hertztracing.Option) (config.Option, app.HandlerFunc) {
	tracer, cfg := hertztracing.NewServerTracer(opts...)
	return tracer, hertztracing.ServerMiddleware(cfg)
}
