package logger

import (
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// コンポーネント名はログの "component" フィールドに出力されます
const (
	ComponentPortal       = "portal"
	ComponentState        = "state"
	ComponentScheduler    = "scheduler"
	ComponentAuth         = "auth"
	ComponentRemoteStore  = "remote"
	ComponentLocalCache   = "cache"
	ComponentWeather      = "weather"
	ComponentTurnover     = "turnover"
	ComponentHTTP         = "http"
	ComponentReconcileJob = "reconcile"
)

func getLogLevel(level string) zapcore.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return zapcore.DebugLevel
	case "WARN":
		return zapcore.WarnLevel
	case "ERROR":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func timeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.Format("2006-01-02 15:04:05 MST"))
}

// New はログレベルとフォーマット（CONSOLE / JSON）を指定してロガーを作成します
func New(level, format string) *zap.Logger {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     timeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	encoding := "console"
	if strings.ToUpper(format) == "JSON" {
		encoding = "json"
		encoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(getLogLevel(level)),
		Encoding:         encoding,
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	l, err := cfg.Build()
	if err != nil {
		return zap.NewExample()
	}
	return l
}

// For はコンポーネント名付きのSugaredLoggerを返します
func For(l *zap.Logger, component string) *zap.SugaredLogger {
	if l == nil {
		l = zap.NewNop()
	}
	return l.With(zap.String("component", component)).Sugar()
}
