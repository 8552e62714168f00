package logging

import (
	"log/slog"
	"testing"

	"github.com/openlaundry/laundry-core/internal/infrastructure/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := parseLevel(tt.input); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestNew_DoesNotPanic(t *testing.T) {
	cfgs := []config.LoggingConfig{
		{Level: "debug", Format: "json", Output: "stdout"},
		{Level: "info", Format: "text", Output: "stderr"},
		{},
	}

	for _, cfg := range cfgs {
		logger := New(cfg, "test")
		if logger == nil {
			t.Fatal("New() returned nil")
		}
		logger.Info("test message", "key", "value")
	}
}

func TestWith_ReturnsNewLogger(t *testing.T) {
	base := Default()
	derived := base.With("component", "test")

	if derived == base {
		t.Error("With() should return a new logger")
	}
	derived.Debug("should not panic")
}
