package app

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/split-budget/pkg/config"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			assert.Equal(t, want, ParseLevel(in))
		})
	}
}

func TestNewLogger(t *testing.T) {
	t.Run("production writes json", func(t *testing.T) {
		var buf bytes.Buffer
		cfg := &config.Config{Environment: "production", Observability: config.ObservabilityConfig{LogLevel: "info"}}
		NewLogger(cfg, &buf).Info("hello", "k", "v")

		var line map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
		assert.Equal(t, "hello", line["msg"])
		assert.Equal(t, "v", line["k"])
	})

	t.Run("development writes text and honors level", func(t *testing.T) {
		var buf bytes.Buffer
		cfg := &config.Config{Environment: "development", Observability: config.ObservabilityConfig{LogLevel: "warn"}}
		logger := NewLogger(cfg, &buf)
		logger.Info("skipped")
		logger.Warn("kept")

		assert.NotContains(t, buf.String(), "skipped")
		assert.Contains(t, buf.String(), "msg=kept")
	})
}
