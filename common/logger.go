package common

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds a console-encoded zap logger at the given level.
// An empty level defaults to "info".
//
// Parameters:
//   - level: a zap level name (debug, info, warn, error)
//
// Returns:
//   - *zap.Logger: the configured logger
//   - error: an error if the level name is invalid or the logger cannot be built
func NewLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(Coalesce(level, "info"))
	if err != nil {
		return nil, err
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.DisableStacktrace = true
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return cfg.Build()
}

// LoggerOrNop returns l, or a no-op logger when l is nil.
func LoggerOrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
