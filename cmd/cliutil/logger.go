package cliutil

import "go.uber.org/zap"

// NewLogger builds the process logger: human-readable console output with
// caller info, at info level without stack traces, or at debug level when
// debug is set.
func NewLogger(debug bool) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	if !debug {
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
		cfg.DisableStacktrace = true
	}
	return cfg.Build()
}
