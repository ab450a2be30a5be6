package database

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

const (
	spanKey      = "otel:span"
	startTimeKey = "otel:start_time"

	maxSQLLength = 500
)

var sensitiveSQL = regexp.MustCompile(`(?i)(password|token|secret)\s*=\s*'[^']*'`)

// OTELPlugin GORM OpenTelemetry 插件
type OTELPlugin struct {
	tracer      trace.Tracer
	serviceName string
	total       metric.Int64Counter
	duration    metric.Float64Histogram
}

// NewOTELPlugin 指标创建失败时只做 tracing
func NewOTELPlugin(serviceName string) *OTELPlugin {
	meter := otel.Meter(serviceName + ".gorm")
	total, _ := meter.Int64Counter("db.queries.total",
		metric.WithDescription("Total number of database queries"),
		metric.WithUnit("{query}"),
	)
	duration, _ := meter.Float64Histogram("db.query.duration",
		metric.WithDescription("Database query duration"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0),
	)

	return &OTELPlugin{
		tracer:      otel.Tracer(serviceName + ".gorm"),
		serviceName: serviceName,
		total:       total,
		duration:    duration,
	}
}

// Name 实现 gorm.Plugin 接口
func (p *OTELPlugin) Name() string {
	return "otel_plugin"
}

// Initialize 注册回调
func (p *OTELPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()

	register := []struct {
		name   string
		before func(string, func(*gorm.DB)) error
		after  func(string, func(*gorm.DB)) error
	}{
		{"create", cb.Create().Before("gorm:create").Register, cb.Create().After("gorm:create").Register},
		{"query", cb.Query().Before("gorm:query").Register, cb.Query().After("gorm:query").Register},
		{"update", cb.Update().Before("gorm:update").Register, cb.Update().After("gorm:update").Register},
		{"delete", cb.Delete().Before("gorm:delete").Register, cb.Delete().After("gorm:delete").Register},
		{"row", cb.Row().Before("gorm:row").Register, cb.Row().After("gorm:row").Register},
		{"raw", cb.Raw().Before("gorm:raw").Register, cb.Raw().After("gorm:raw").Register},
	}
	for _, r := range register {
		if err := r.before("otel:before_"+r.name, p.before); err != nil {
			return err
		}
		if err := r.after("otel:after_"+r.name, p.after); err != nil {
			return err
		}
	}
	return nil
}

func (p *OTELPlugin) before(db *gorm.DB) {
	ctx, span := p.tracer.Start(db.Statement.Context, "db."+tableOrUnknown(db),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			semconv.DBSystemPostgreSQL,
			attribute.String("service.name", p.serviceName),
		),
	)
	db.InstanceSet(spanKey, span)
	db.InstanceSet(startTimeKey, time.Now())
	db.Statement.Context = ctx
}

func (p *OTELPlugin) after(db *gorm.DB) {
	v, ok := db.InstanceGet(spanKey)
	if !ok {
		return
	}
	span, ok := v.(trace.Span)
	if !ok {
		return
	}
	defer span.End()

	operation := OperationName(db.Statement.SQL.String())
	span.SetName(operation)
	span.SetAttributes(
		semconv.DBStatement(SanitizeSQL(db.Statement.SQL.String())),
		attribute.Int64("db.rows_affected", db.Statement.RowsAffected),
	)
	if table := db.Statement.Table; table != "" {
		span.SetAttributes(attribute.String("db.table", table))
	}

	status := "success"
	switch {
	case db.Error == nil:
		span.SetStatus(codes.Ok, "")
	case errors.Is(db.Error, gorm.ErrRecordNotFound):
		span.SetStatus(codes.Ok, "record not found")
	default:
		status = "error"
		span.RecordError(db.Error)
		span.SetStatus(codes.Error, db.Error.Error())
	}

	if start, ok := db.InstanceGet(startTimeKey); ok {
		if t, ok := start.(time.Time); ok {
			p.record(db.Statement.Context, operation, status, time.Since(t).Seconds())
		}
	}
}

func (p *OTELPlugin) record(ctx context.Context, operation, status string, seconds float64) {
	attrs := metric.WithAttributes(
		attribute.String("db.operation", operation),
		attribute.String("db.status", status),
	)
	if p.total != nil {
		p.total.Add(ctx, 1, attrs)
	}
	if p.duration != nil {
		p.duration.Record(ctx, seconds, attrs)
	}
}

// OperationName 从 SQL 中提取操作类型
func OperationName(sql string) string {
	sql = strings.ToUpper(strings.TrimSpace(sql))
	switch {
	case sql == "":
		return "db.unknown"
	case strings.HasPrefix(sql, "SELECT"):
		return "db.select"
	case strings.HasPrefix(sql, "INSERT"):
		return "db.insert"
	case strings.HasPrefix(sql, "UPDATE"):
		return "db.update"
	case strings.HasPrefix(sql, "DELETE"):
		return "db.delete"
	default:
		return "db.query"
	}
}

// SanitizeSQL 截断并去掉内联的敏感值
func SanitizeSQL(sql string) string {
	if len(sql) > maxSQLLength {
		sql = sql[:maxSQLLength] + "..."
	}
	return sensitiveSQL.ReplaceAllString(sql, "$1='***'")
}

func tableOrUnknown(db *gorm.DB) string {
	if db.Statement.Table != "" {
		return db.Statement.Table
	}
	return "unknown"
}

// WithOTELPlugin 为 GORM 添加 OpenTelemetry 插件
func WithOTELPlugin(db *gorm.DB, serviceName string) error {
	return db.Use(NewOTELPlugin(serviceName))
}
