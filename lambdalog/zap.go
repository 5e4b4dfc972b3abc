package lambdalog

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// zapLogger adapts a *zap.Logger to the Logger capability, tagging every
// line with the original AWS-style level name (trace/notice/critical have
// no direct zap equivalent) in a "lambda_level" field so log queries can
// still filter on the exact taxonomy spec.md's LOG_LEVEL table names.
type zapLogger struct {
	l *zap.Logger
}

// NewZapLogger builds the default Logger implementation, configured from
// level. JSON encoding is used unconditionally since CloudWatch Logs is the
// only consumer in the deployed environment.
func NewZapLogger(level Level) (Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(toZapLevel(level))
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	l, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &zapLogger{l: l}, nil
}

func toZapLevel(level Level) zapcore.Level {
	switch level {
	case LevelTrace, LevelDebug:
		return zapcore.DebugLevel
	case LevelInfo, LevelNotice:
		return zapcore.InfoLevel
	case LevelWarning:
		return zapcore.WarnLevel
	case LevelError, LevelCritical:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func (z *zapLogger) Log(level Level, msg string, fields ...Field) {
	zf := make([]zap.Field, 0, len(fields)+1)
	zf = append(zf, zap.String("lambda_level", level.String()))
	for _, f := range fields {
		zf = append(zf, zap.Any(f.Key, f.Value))
	}
	switch level {
	case LevelTrace, LevelDebug:
		z.l.Debug(msg, zf...)
	case LevelInfo, LevelNotice:
		z.l.Info(msg, zf...)
	case LevelWarning:
		z.l.Warn(msg, zf...)
	case LevelError, LevelCritical:
		z.l.Error(msg, zf...)
	default:
		z.l.Info(msg, zf...)
	}
}

func (z *zapLogger) With(fields ...Field) Logger {
	zf := make([]zap.Field, 0, len(fields))
	for _, f := range fields {
		zf = append(zf, zap.Any(f.Key, f.Value))
	}
	return &zapLogger{l: z.l.With(zf...)}
}
