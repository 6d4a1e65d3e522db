package logger

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"aiTradeEngine/internal/ports"
)

// ZapLogger implements ports.Logger on top of a structured zap logger.
type ZapLogger struct {
	logger *zap.Logger
}

// NewZapLogger builds a JSON production logger at the given level.
func NewZapLogger(level LogLevel) (*ZapLogger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level.zapLevel())
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, fmt.Errorf("failed to build zap logger: %w", err)
	}
	return &ZapLogger{logger: l}, nil
}

// NewZapLoggerFromCore wraps an existing zap core.
func NewZapLoggerFromCore(core zapcore.Core) *ZapLogger {
	return &ZapLogger{logger: zap.New(core)}
}

// Sync flushes buffered entries.
func (z *ZapLogger) Sync() error {
	return z.logger.Sync()
}

func (z *ZapLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {
	z.logger.Debug(msg, toZapFields(fields)...)
}

func (z *ZapLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	z.logger.Info(msg, toZapFields(fields)...)
}

func (z *ZapLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	z.logger.Warn(msg, toZapFields(fields)...)
}

func (z *ZapLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	zf := toZapFields(fields)
	if err != nil {
		zf = append(zf, zap.Error(err))
	}
	z.logger.Error(msg, zf...)
}

func toZapFields(fields []map[string]interface{}) []zap.Field {
	merged := mergeFields(fields)
	if len(merged) == 0 {
		return nil
	}
	out := make([]zap.Field, 0, len(merged))
	for _, k := range sortedKeys(merged) {
		out = append(out, zap.Any(k, merged[k]))
	}
	return out
}

func (l LogLevel) zapLevel() zapcore.Level {
	switch l {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// New returns the logger for the configured format: "json" selects zap, anything else the
// line-oriented standard logger.
func New(format string, level LogLevel) (ports.Logger, error) {
	if strings.EqualFold(format, "json") {
		return NewZapLogger(level)
	}
	return NewStdLogger(level), nil
}
