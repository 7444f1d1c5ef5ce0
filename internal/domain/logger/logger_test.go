package logger

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func captureDefault(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestTxLogger(t *testing.T) {
	tests := []struct {
		name  string
		run   func(l *TxLogger)
		start time.Time
		want  []string
	}{
		{
			name:  "Commit",
			run:   func(l *TxLogger) { l.Commit(2) },
			start: time.Now(),
			want:  []string{"level=DEBUG", "Transaction committed", "writes=2", "store=memory"},
		},
		{
			name:  "Slow commit",
			run:   func(l *TxLogger) { l.Commit(1) },
			start: time.Now().Add(-time.Second),
			want:  []string{"level=WARN", "Slow transaction"},
		},
		{
			name:  "Expected rollback",
			run:   func(l *TxLogger) { l.Abort(errors.New("slot not found"), true) },
			start: time.Now(),
			want:  []string{"level=DEBUG", "Transaction rolled back", "slot not found"},
		},
		{
			name:  "Failure",
			run:   func(l *TxLogger) { l.Abort(errors.New("disk full"), false) },
			start: time.Now(),
			want:  []string{"level=ERROR", "Transaction failed", "disk full"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := captureDefault(t)
			l := StartTx("memory")
			l.StartTime = tt.start
			tt.run(l)

			got := buf.String()
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("TxLogger got = %q, want it to contain %q", got, w)
				}
			}
		})
	}
}
