package logging

import (
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options tweak the logger built by NewLogger.
type Options struct {
	// Service is attached to every entry as the "service" field when set.
	Service string
	// Level overrides LOG_LEVEL when non-empty.
	Level string
	// Console switches to the human readable encoder (LOG_FORMAT=console).
	Console bool
}

// NewLogger configures a zap logger with level controlled by LOG_LEVEL env variable.
func NewLogger(opts ...Options) (*zap.Logger, error) {
	var opt Options
	if len(opts) > 0 {
		opt = opts[0]
	}

	levelStr := opt.Level
	if levelStr == "" {
		levelStr = os.Getenv("LOG_LEVEL")
	}
	level := ParseLevel(levelStr)

	encoding := "json"
	if opt.Console || strings.EqualFold(os.Getenv("LOG_FORMAT"), "console") {
		encoding = "console"
	}

	cfg := zap.Config{
		Level:       zap.NewAtomicLevelAt(level),
		Development: false,
		Sampling: &zap.SamplingConfig{
			Initial:    100,
			Thereafter: 100,
		},
		Encoding:         encoding,
		EncoderConfig:    encoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	if opt.Service != "" {
		logger = logger.With(zap.String("service", opt.Service))
	}
	return logger, nil
}

// ParseLevel maps a level name to zapcore.Level, defaulting to info.
func ParseLevel(raw string) zapcore.Level {
	var level zapcore.Level
	if err := level.Set(strings.ToLower(strings.TrimSpace(raw))); err != nil {
		return zapcore.InfoLevel
	}
	return level
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stack",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     func(t time.Time, enc zapcore.PrimitiveArrayEncoder) { enc.AppendString(t.UTC().Format(time.RFC3339Nano)) },
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}
