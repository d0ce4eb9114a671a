package logging

import (
	"context"
	"log/slog"
	"testing"
)

func TestNewLevels(t *testing.T) {
	tests := []struct {
		name     string
		level    string
		enable   slog.Level
		disabled *slog.Level
	}{
		{"debug level", "debug", slog.LevelDebug, nil},
		{"warn level", "WARN", slog.LevelWarn, levelPtr(slog.LevelInfo)},
		{"error level", " error ", slog.LevelError, levelPtr(slog.LevelWarn)},
		{"default info", "", slog.LevelInfo, levelPtr(slog.LevelDebug)},
	}

	ctx := context.Background()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := New(tt.level)
			if !logger.Enabled(ctx, tt.enable) {
				t.Fatalf("expected level %s to be enabled", tt.enable)
			}
			if tt.disabled != nil && logger.Enabled(ctx, *tt.disabled) {
				t.Fatalf("expected level %s to be disabled", *tt.disabled)
			}
		})
	}
}

func TestDefaultLogger(t *testing.T) {
	logger := Default()
	logger.Info("test message", "key", "value")

	ctx := context.Background()
	if !logger.Enabled(ctx, slog.LevelInfo) {
		t.Error("Default() should enable info level")
	}
	if logger.Enabled(ctx, slog.LevelDebug) {
		t.Error("Default() should not enable debug level")
	}
	if logger == Default() {
		t.Error("Default() returned the same instance twice")
	}
}

func TestComponentNilSafe(t *testing.T) {
	var logger *Logger
	child := logger.Component("automation.motor")
	if child == nil || child.Logger == nil {
		t.Fatal("expected component logger from nil receiver")
	}
	child.Info("component message")
}

func levelPtr(l slog.Level) *slog.Level { return &l }
