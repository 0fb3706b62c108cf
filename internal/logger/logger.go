package logger

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var base = zap.NewNop()

// Init 根据日志级别与输出格式初始化全局 logger。
func Init(level, format string) error {
	var cfg zap.Config
	if strings.EqualFold(strings.TrimSpace(format), "console") {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(ParseLevel(level))
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	l, err := cfg.Build()
	if err != nil {
		return err
	}
	base = l
	return nil
}

// ParseLevel maps a level name to a zap level; unknown names fall back to info.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Set replaces the global logger, mostly for tests.
func Set(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	base = l
}

// L 返回全局 logger。
func L() *zap.Logger {
	return base
}

// Named 返回带组件名的子 logger。
func Named(component string) *zap.Logger {
	return base.Named(component)
}

func Debug(msg string, fields ...zap.Field) {
	base.Debug(msg, fields...)
}

func Info(msg string, fields ...zap.Field) {
	base.Info(msg, fields...)
}

func Warn(msg string, fields ...zap.Field) {
	base.Warn(msg, fields...)
}

// Error logs at error level; pass the failure through zap.Error.
func Error(msg string, fields ...zap.Field) {
	base.Error(msg, fields...)
}

// Sync flushes buffered entries.
func Sync() {
	_ = base.Sync()
}
