// Package logging builds the zap loggers shared by the service binaries.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a JSON logger at level, or a console logger when development is set.
func New(level string, development bool) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", level, err)
	}

	cfg := zap.NewProductionConfig()
	if development {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}

// Must is New for main packages, falling back to a production logger on a bad level.
func Must(level string, development bool) *zap.Logger {
	logger, err := New(level, development)
	if err == nil {
		return logger
	}
	fallback, _ := zap.NewProduction()
	fallback.Warn("invalid log configuration, using defaults", zap.Error(err))
	return fallback
}
