package logger

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestCustomHandler_Handle(t *testing.T) {
	tests := []struct {
		name    string
		log     func(l *slog.Logger)
		want    []string
		wantOut bool
	}{
		{
			name: "system info",
			log: func(l *slog.Logger) {
				l.Info("Scheduler started", slog.String("type", "sys"))
			},
			want:    []string{"[Slotkeeper]", "[INFO]", "[SYS]", "Scheduler started"},
			wantOut: true,
		},
		{
			name: "command with user and status",
			log: func(l *slog.Logger) {
				l.Info("Command completed",
					slog.String("type", "cmd"),
					slog.String("name", "create"),
					slog.String("user_name", "mod"),
					slog.String("status", "success"),
				)
			},
			want:    []string{"[CMD]", "[create by mod]", "[Status: success]"},
			wantOut: true,
		},
		{
			name: "error carries details",
			log: func(l *slog.Logger) {
				l.Error("Sweep failed", slog.String("type", "sweep"), slog.Any("error", errors.New("boom")), slog.String("owner_id", "42"))
			},
			want:    []string{"[ERROR]", "[SWEEP]", "boom", "owner_id=42"},
			wantOut: true,
		},
		{
			name: "gateway chatter skipped",
			log: func(l *slog.Logger) {
				l.Info("sending heartbeat")
			},
			wantOut: false,
		},
		{
			name: "below level dropped",
			log: func(l *slog.Logger) {
				l.Debug("noise")
			},
			wantOut: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			l := slog.New(NewWriterHandler(&buf, slog.LevelInfo, false))
			tt.log(l)

			out := buf.String()
			if (out != "") != tt.wantOut {
				t.Fatalf("Handle() output = %q, wantOut %v", out, tt.wantOut)
			}
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("Handle() got = %q, want substring %q", out, w)
				}
			}
		})
	}
}

func TestCustomHandler_WithAttrs(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(NewWriterHandler(&buf, slog.LevelInfo, false)).With(slog.String("component", "executor"))
	l.Info("Batch applied")

	if !strings.Contains(buf.String(), "component=executor") {
		t.Errorf("WithAttrs() got = %q, want component attr", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{" WARN", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) got = %v, want %v", tt.in, got, tt.want)
		}
	}
}
