package metrics

import (
	"context"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelMetrics 业务指标集合。未初始化时 GetMetrics 返回 nil，所有方法对 nil 安全
type OTelMetrics struct {
	// 认证流程
	FlowStartedTotal    metric.Int64Counter
	FlowCompletedTotal  metric.Int64Counter
	FlowStepErrorsTotal metric.Int64Counter
	OTPSentTotal        metric.Int64Counter

	// 上游 Atlas API
	UpstreamRequestTotal metric.Int64Counter
	UpstreamDuration     metric.Float64Histogram

	// 短信
	SMSSentTotal    metric.Int64Counter
	SMSSendDuration metric.Float64Histogram

	// 队列消费
	ConsumedMessagesTotal metric.Int64Counter
}

var (
	metrics *OTelMetrics
	meter   = otel.Meter("atlaswd")
)

// InitMetrics 初始化 OpenTelemetry 指标，需在 otel MeterProvider 设置之后调用
func InitMetrics() error {
	var err error
	m := &OTelMetrics{}

	if m.FlowStartedTotal, err = meter.Int64Counter(
		"auth_flow_started_total",
		metric.WithDescription("Total number of auth flows mounted"),
		metric.WithUnit("{flow}"),
	); err != nil {
		return err
	}

	if m.FlowCompletedTotal, err = meter.Int64Counter(
		"auth_flow_completed_total",
		metric.WithDescription("Total number of auth flows reaching a terminal outcome"),
		metric.WithUnit("{flow}"),
	); err != nil {
		return err
	}

	if m.FlowStepErrorsTotal, err = meter.Int64Counter(
		"auth_flow_step_errors_total",
		metric.WithDescription("Step submissions rejected locally or by the upstream"),
		metric.WithUnit("{error}"),
	); err != nil {
		return err
	}

	if m.OTPSentTotal, err = meter.Int64Counter(
		"auth_otp_sent_total",
		metric.WithDescription("Total number of OTP send requests accepted upstream"),
		metric.WithUnit("{otp}"),
	); err != nil {
		return err
	}

	if m.UpstreamRequestTotal, err = meter.Int64Counter(
		"atlas_api_requests_total",
		metric.WithDescription("Total number of requests to the Atlas REST backend"),
		metric.WithUnit("{request}"),
	); err != nil {
		return err
	}

	if m.UpstreamDuration, err = meter.Float64Histogram(
		"atlas_api_request_duration_seconds",
		metric.WithDescription("Atlas REST backend request duration"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0),
	); err != nil {
		return err
	}

	if m.SMSSentTotal, err = meter.Int64Counter(
		"sms_sent_total",
		metric.WithDescription("Total number of SMS sent"),
		metric.WithUnit("{sms}"),
	); err != nil {
		return err
	}

	if m.SMSSendDuration, err = meter.Float64Histogram(
		"sms_send_duration_seconds",
		metric.WithDescription("Time spent sending SMS in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return err
	}

	if m.ConsumedMessagesTotal, err = meter.Int64Counter(
		"mq_consumed_messages_total",
		metric.WithDescription("Total number of queue messages handled by the worker"),
		metric.WithUnit("{message}"),
	); err != nil {
		return err
	}

	metrics = m
	return nil
}

// GetMetrics 获取全局指标实例
func GetMetrics() *OTelMetrics {
	return metrics
}

func (m *OTelMetrics) RecordFlowStarted(ctx context.Context, mode string, referred bool) {
	if m == nil {
		return
	}
	m.FlowStartedTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("mode", mode),
		attribute.Bool("referred", referred),
	))
}

func (m *OTelMetrics) RecordFlowCompleted(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.FlowCompletedTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordStepError kind: validation / upstream / infra
func (m *OTelMetrics) RecordStepError(ctx context.Context, step, kind string) {
	if m == nil {
		return
	}
	m.FlowStepErrorsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("step", step),
		attribute.String("kind", kind),
	))
}

// RecordOTPSent purpose: signup / password_reset
func (m *OTelMetrics) RecordOTPSent(ctx context.Context, purpose string, resend bool) {
	if m == nil {
		return
	}
	m.OTPSentTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("purpose", purpose),
		attribute.Bool("resend", resend),
	))
}

// RecordUpstream status 为 0 表示请求未得到响应
func (m *OTelMetrics) RecordUpstream(ctx context.Context, endpoint string, status int, seconds float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("endpoint", endpoint),
		attribute.String("status", strconv.Itoa(status)),
	)
	m.UpstreamRequestTotal.Add(ctx, 1, attrs)
	m.UpstreamDuration.Record(ctx, seconds, attrs)
}

func (m *OTelMetrics) RecordSMS(ctx context.Context, template, provider string, success bool, seconds float64) {
	if m == nil {
		return
	}
	status := "success"
	if !success {
		status = "failed"
	}
	m.SMSSentTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("template", template),
		attribute.String("provider", provider),
		attribute.String("status", status),
	))
	m.SMSSendDuration.Record(ctx, seconds, metric.WithAttributes(
		attribute.String("template", template),
		attribute.String("provider", provider),
	))
}

// RecordConsumed result: ack / requeue / drop / duplicate
func (m *OTelMetrics) RecordConsumed(ctx context.Context, queue, result string) {
	if m == nil {
		return
	}
	m.ConsumedMessagesTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("queue", queue),
		attribute.String("result", result),
	))
}
