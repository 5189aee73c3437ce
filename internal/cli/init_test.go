package cli

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"insight/internal/config"
	"insight/internal/log"
)

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(&config.Config{LogLevel: "warning", LogFormat: "json"})
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	if logger.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("debug should be disabled at warning level")
	}

	if _, err := NewLogger(&config.Config{LogLevel: "loud"}); err == nil {
		t.Error("expected an error for an unknown level")
	}
}

func TestGracefulShutdown_Stop(t *testing.T) {
	cleaned := make(chan struct{})
	ctx, stop, done := GracefulShutdown(log.Discard(), time.Second, func(ctx context.Context) {
		if _, ok := ctx.Deadline(); !ok {
			t.Error("cleanup context should carry the shutdown timeout")
		}
		close(cleaned)
	})

	stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("shutdown did not complete")
	}
	if ctx.Err() == nil {
		t.Error("context should be cancelled")
	}
	select {
	case <-cleaned:
	default:
		t.Error("cleanup did not run")
	}
}
