package logger

import (
	"log/slog"
	"time"
)

// LogCommand logs a finished slash command.
func LogCommand(name string, duration time.Duration, err error) {
	attrs := []any{
		slog.String("type", "cmd"),
		slog.String("name", name),
		slog.Duration("took", duration),
	}
	if err != nil {
		slog.Error("Command failed", append(attrs, slog.Any("error", err))...)
		return
	}
	slog.Info("Command executed", attrs...)
}

// LogSweep logs the outcome of one scheduled pass.
func LogSweep(name string, processed, failed int, duration time.Duration) {
	attrs := []any{
		slog.String("type", "sweep"),
		slog.String("sweep", name),
		slog.Int("processed", processed),
		slog.Int("failed", failed),
		slog.Duration("took", duration),
	}
	if failed > 0 {
		slog.Warn("Sweep finished with failures", attrs...)
		return
	}
	slog.Info("Sweep finished", attrs...)
}

// LogSystem logs system events
func LogSystem(msg string, attrs ...any) {
	slog.Info(msg, append([]any{slog.String("type", "sys")}, attrs...)...)
}

// LogError logs error events
func LogError(msg string, err error, attrs ...any) {
	base := []any{
		slog.String("type", "error"),
		slog.Any("error", err),
	}
	slog.Error(msg, append(base, attrs...)...)
}
