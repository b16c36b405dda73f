// Package logging builds the structured logger shared by every
// component. The teacher (ODSapper-CLIAIMONITOR) logs via stdlib
// log.Printf with "[COMPONENT]" prefixes; this rewrite keeps the same
// per-component tagging but emits it as zap fields instead of string
// interpolation, following the pattern kdlbs-kandev's agent-manager uses
// to build its logger at startup.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config controls the logger's verbosity and encoding.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // console, json
}

// New builds a *zap.Logger from Config. "console" is meant for a human
// staring at a terminal (the supervisor's normal habitat); "json" is for
// shipping logs to a collector.
func New(cfg Config) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.EncoderConfig.TimeKey = "ts"
	zcfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	switch cfg.Format {
	case "", "console":
		zcfg.Encoding = "console"
		zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	case "json":
		zcfg.Encoding = "json"
	default:
		return nil, fmt.Errorf("invalid log format %q", cfg.Format)
	}

	logger, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}

// Component returns a child logger tagged with the owning component,
// the structured equivalent of the teacher's "[SPAWNER]"-style prefixes.
func Component(base *zap.Logger, name string) *zap.Logger {
	return base.With(zap.String("component", name))
}
