package logger

import (
	"io"
	"os"
	"strings"

	"github.com/cloudwego/hertz/pkg/common/hlog"
	hertzzap "github.com/hertz-contrib/logger/zap"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"atlaswd/config"
)

var (
	// Logger 未调用 Init 前为 Nop，测试中可直接使用
	Logger = zap.NewNop()
	output io.Closer
)

var hlogLevels = map[zapcore.Level]hlog.Level{
	zapcore.DebugLevel: hlog.LevelDebug,
	zapcore.InfoLevel:  hlog.LevelInfo,
	zapcore.WarnLevel:  hlog.LevelWarn,
	zapcore.ErrorLevel: hlog.LevelError,
}

// Init 构建全局 logger，同时接管 hertz 的 hlog
func Init() {
	cfg := config.Cfg

	level := zap.NewAtomicLevelAt(levelOf(cfg.LoggerLevel))
	hz := hertzzap.NewLogger(
		hertzzap.WithCoreEnc(encoder(cfg.IsDevelopment() || strings.EqualFold(cfg.LoggerFormat, "text"))),
		hertzzap.WithCoreWs(writer(cfg.LoggerOutputPath)),
		hertzzap.WithCoreLevel(level),
		hertzzap.WithZapOptions(zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)),
	)
	hlog.SetLogger(hz)
	if l, ok := hlogLevels[level.Level()]; ok {
		hlog.SetLevel(l)
	}

	Logger = hz.Logger().With(
		zap.String("service", cfg.ServiceName),
		zap.String("env", cfg.Environment),
	)
	Logger.Info("Logger initialized",
		zap.Stringer("level", level.Level()),
		zap.String("output", cfg.LoggerOutputPath),
	)
}

func Sync() {
	// stdout 上 Sync 会返回 EINVAL，忽略
	_ = Logger.Sync()
	if output != nil {
		_ = output.Close()
	}
}

// Flow 带上 flow 维度字段的子 logger
func Flow(flowID, step string) *zap.Logger {
	return Logger.With(zap.String("flow_id", flowID), zap.String("step", step))
}

// Email 日志里只保留邮箱首字母和域名
func Email(email string) zap.Field {
	return zap.String("email", MaskEmail(email))
}

func MaskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return "***"
	}
	return email[:1] + "***" + email[at:]
}

func levelOf(raw string) zapcore.Level {
	lvl, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(raw)))
	if err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}

func encoder(text bool) zapcore.Encoder {
	ec := zap.NewProductionEncoderConfig()
	ec.EncodeTime = zapcore.ISO8601TimeEncoder
	ec.EncodeCaller = zapcore.ShortCallerEncoder
	if text {
		ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
		return zapcore.NewConsoleEncoder(ec)
	}
	ec.EncodeLevel = zapcore.CapitalLevelEncoder
	return zapcore.NewJSONEncoder(ec)
}

func writer(path string) zapcore.WriteSyncer {
	if path == "" || strings.EqualFold(path, "stdout") {
		return zapcore.Lock(os.Stdout)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		panic("failed to open log file: " + err.Error())
	}
	output = f
	return zapcore.AddSync(f)
}
