// Package logger builds the zap loggers used by the service.
package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New creates a logger for the given environment. Production uses JSON output at info level,
// everything else uses the colored development encoder at debug level.
func New(appEnv string) (*zap.Logger, error) {
	var cfg zap.Config
	if appEnv == "production" {
		cfg = zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

// NewNamed creates a logger tagged with the service name.
func NewNamed(appEnv, service string) (*zap.Logger, error) {
	log, err := New(appEnv)
	if err != nil {
		return nil, err
	}
	return log.Named(service).With(zap.String("service", service)), nil
}
