package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"

	"tradenerd/internal/config"
)

func TestNewLevels(t *testing.T) {
	tests := []struct {
		level   string
		verbose bool
		want    zapcore.Level
	}{
		{"", false, zapcore.InfoLevel},
		{"info", false, zapcore.InfoLevel},
		{"debug", false, zapcore.DebugLevel},
		{"warn", false, zapcore.WarnLevel},
		{"error", false, zapcore.ErrorLevel},
		{"warn", true, zapcore.DebugLevel},
	}
	for _, tt := range tests {
		logger, err := New(config.LoggingConfig{Level: tt.level, Format: "json"}, tt.verbose)
		if err != nil {
			t.Fatalf("New(%q): %v", tt.level, err)
		}
		if !logger.Core().Enabled(tt.want) {
			t.Errorf("level %q verbose=%v: %v not enabled", tt.level, tt.verbose, tt.want)
		}
		if tt.want != zapcore.DebugLevel && logger.Core().Enabled(zapcore.DebugLevel) {
			t.Errorf("level %q: debug unexpectedly enabled", tt.level)
		}
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New(config.LoggingConfig{Level: "loud"}, false); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestNewConsoleFormat(t *testing.T) {
	if _, err := New(config.LoggingConfig{Level: "info", Format: "text"}, false); err != nil {
		t.Fatalf("New console: %v", err)
	}
}
