package main

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wenfer/strmgate/internal/config"
)

func TestBuildLoggerDefaultIsInfo(t *testing.T) {
	logger := buildLogger(nil, CLIFlags{})

	assert.True(t, logger.Handler().Enabled(context.Background(), slog.LevelInfo))
	assert.False(t, logger.Handler().Enabled(context.Background(), slog.LevelDebug))
}

func TestBuildLoggerDebugFlag(t *testing.T) {
	logger := buildLogger(nil, CLIFlags{Debug: true})

	assert.True(t, logger.Handler().Enabled(context.Background(), slog.LevelDebug))
}

func TestBuildLoggerQuietFlag(t *testing.T) {
	logger := buildLogger(nil, CLIFlags{Quiet: true})

	assert.False(t, logger.Handler().Enabled(context.Background(), slog.LevelWarn))
	assert.True(t, logger.Handler().Enabled(context.Background(), slog.LevelError))
}

func TestBuildLoggerConfigLevelIsBaseline(t *testing.T) {
	cfg := &config.Config{Logging: config.LoggingConfig{Level: "error"}}

	logger := buildLogger(cfg, CLIFlags{})

	assert.False(t, logger.Handler().Enabled(context.Background(), slog.LevelWarn))
}

func TestBuildLoggerFlagOverridesConfig(t *testing.T) {
	cfg := &config.Config{Logging: config.LoggingConfig{Level: "error"}}

	logger := buildLogger(cfg, CLIFlags{Verbose: true})

	assert.True(t, logger.Handler().Enabled(context.Background(), slog.LevelInfo))
}

func TestAppFromMissingReturnsNil(t *testing.T) {
	assert.Nil(t, appFrom(context.Background()))
}

func TestMustAppPanicsWithoutWiring(t *testing.T) {
	assert.Panics(t, func() { mustApp(context.Background()) })
}
