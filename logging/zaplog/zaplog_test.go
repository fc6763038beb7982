package zaplog_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/goliatone/go-console-auth/logging/zaplog"
)

func TestLoggerWritesStructuredFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zaplog.Wrap(zap.New(core))

	logger.Info("navigation redirected", "route", "/orders", "reason", "authentication_required")
	logger.Warn("refresh failed", "attempt", 2)
	logger.Debug("init")
	logger.Error("boom")

	entries := logs.All()
	require.Len(t, entries, 4)
	assert.Equal(t, "navigation redirected", entries[0].Message)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, map[string]any{"route": "/orders", "reason": "authentication_required"}, entries[0].ContextMap())
	assert.Equal(t, int64(2), entries[1].ContextMap()["attempt"])
	assert.Equal(t, zapcore.ErrorLevel, entries[3].Level)
}

func TestWrapNil(t *testing.T) {
	assert.NotPanics(t, func() {
		zaplog.Wrap(nil).Info("dropped")
	})
}

func TestParseLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		" WARN ":  zapcore.WarnLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"":        zapcore.InfoLevel,
		"loud":    zapcore.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, zaplog.ParseLevel(in), in)
	}
}

func TestNew(t *testing.T) {
	for _, env := range []string{"dev", "prod"} {
		logger, err := zaplog.New(zaplog.Config{Env: env, Level: "warn", Service: "console"})
		require.NoError(t, err, env)
		logger.Info("filtered")
	}
}
