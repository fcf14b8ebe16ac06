package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

type loggerCtxKeyType struct{}

var loggerCtxKey = loggerCtxKeyType{}

// createLogger builds a development logger for --debug and a production one otherwise.
// Both write to stderr.
func createLogger(debug bool, logLevel string) (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(logLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %s: %w", logLevel, err)
	}

	var loggerCfg zap.Config
	if debug {
		loggerCfg = zap.NewDevelopmentConfig()
		level = zap.NewAtomicLevelAt(zap.DebugLevel)
	} else {
		loggerCfg = zap.NewProductionConfig()
		loggerCfg.Encoding = "console"
		loggerCfg.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	}
	loggerCfg.Level = level
	loggerCfg.OutputPaths = []string{"stderr"}

	logger, err := loggerCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	return logger.Named("archconv"), nil
}

func withLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey, logger)
}

func tryLogger(ctx context.Context) *zap.Logger {
	logger, ok := ctx.Value(loggerCtxKey).(*zap.Logger)
	if !ok {
		return nil
	}
	return logger
}

func getLogger(ctx context.Context) *zap.Logger {
	if logger := tryLogger(ctx); logger != nil {
		return logger
	}
	return zap.NewNop()
}
