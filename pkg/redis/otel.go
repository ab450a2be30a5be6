package redis

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// TracingHook 为每条命令创建 client span 并记录耗时
type TracingHook struct {
	tracer   trace.Tracer
	attrs    []attribute.KeyValue
	total    metric.Int64Counter
	duration metric.Float64Histogram
}

// NewTracingHook 指标创建失败时退化为只做 tracing
func NewTracingHook(serviceName string, db int) *TracingHook {
	meter := otel.Meter(serviceName + ".redis")
	total, _ := meter.Int64Counter("redis.commands.total",
		metric.WithDescription("Total number of Redis commands"),
		metric.WithUnit("{command}"),
	)
	duration, _ := meter.Float64Histogram("redis.command.duration",
		metric.WithDescription("Redis command duration"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0),
	)

	return &TracingHook{
		tracer: otel.Tracer(serviceName + ".redis"),
		attrs: []attribute.KeyValue{
			semconv.DBSystemRedis,
			semconv.DBRedisDBIndex(db),
		},
		total:    total,
		duration: duration,
	}
}

func (th *TracingHook) DialHook(next redis.DialHook) redis.DialHook {
	return next
}

func (th *TracingHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		ctx, span := th.tracer.Start(ctx, cmd.FullName(),
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(th.attrs...),
		)
		defer span.End()

		// 只记录 key，不记录 value
		span.SetAttributes(semconv.DBOperation(cmd.Name()))
		if keys := extractKeys(cmd.Args()); len(keys) > 0 {
			span.SetAttributes(attribute.StringSlice("redis.keys", keys))
		}

		start := time.Now()
		err := next(ctx, cmd)
		th.record(ctx, span, cmd.Name(), err, time.Since(start))
		return err
	}
}

func (th *TracingHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		ctx, span := th.tracer.Start(ctx, "redis.pipeline",
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(th.attrs...),
		)
		defer span.End()

		names := make([]string, 0, len(cmds))
		for _, cmd := range cmds {
			names = append(names, cmd.Name())
		}
		span.SetAttributes(
			attribute.Int("redis.pipeline.count", len(cmds)),
			attribute.String("redis.pipeline.commands", strings.Join(names, ";")),
		)

		start := time.Now()
		err := next(ctx, cmds)
		th.record(ctx, span, "pipeline", err, time.Since(start))
		return err
	}
}

func (th *TracingHook) record(ctx context.Context, span trace.Span, name string, err error, elapsed time.Duration) {
	status := "success"
	switch {
	case errors.Is(err, redis.Nil):
		status = "not_found"
	case err != nil:
		status = "error"
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
	}

	attrs := metric.WithAttributes(
		attribute.String("redis.command", name),
		attribute.String("redis.status", status),
	)
	if th.total != nil {
		th.total.Add(ctx, 1, attrs)
	}
	if th.duration != nil {
		th.duration.Record(ctx, elapsed.Seconds(), attrs)
	}
}

// extractKeys 取命令名之后的前几个字符串参数
func extractKeys(args []interface{}) []string {
	keys := make([]string, 0, 3)
	for i := 1; i < len(args) && len(keys) < 3; i++ {
		if key, ok := args[i].(string); ok {
			keys = append(keys, sanitizeKey(key))
		}
	}
	return keys
}

// sanitizeKey 会话和 token 类 key 只保留前缀
func sanitizeKey(key string) string {
	for _, marker := range []string{"session", "refresh", "slider", "upstream"} {
		if strings.Contains(key, ":"+marker+":") {
			return key[:strings.Index(key, ":"+marker+":")] + ":" + marker + ":***"
		}
	}
	if len(key) > 100 {
		return key[:100] + "..."
	}
	return key
}
