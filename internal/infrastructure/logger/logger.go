// Package logger builds the process-wide zap.Logger from the runtime's own
// LogConfig (internal/infrastructure/config.LogConfig), which recognizes
// only Level and Format — this process always logs to stdout/stderr, never
// to an operator-supplied file path, so the constructor doesn't carry
// surface it can't exercise.
package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config is the zap logger factory's input: a log level name and an
// encoding ("json" for production, "console" for local development).
type Config struct {
	Level  string // debug, info, warn, error
	Format string // json, console
}

// NewLogger builds a zap.Logger for cfg. An unparseable level falls back to
// info rather than failing startup.
func NewLogger(cfg Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	config := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Format == "console",
		Encoding:         cfg.Format,
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	return config.Build()
}
