package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorPurple = "\033[35m"
	colorCyan   = "\033[36m"
	colorWhite  = "\033[37m"
)

type LogType string

const (
	TypeCommand LogType = "CMD"
	TypeDB      LogType = "DB"
	TypeSystem  LogType = "SYS"
	TypeSweep   LogType = "SWEEP"
	TypeError   LogType = "ERR"
)

// skippedMessages are disgo gateway and rest chatter that drowns the slot log.
var skippedMessages = []string{
	"locking buckets",
	"unlocking buckets",
	"gateway event",
	"cleaning up bucket",
	"cleaned up rate limit buckets",
	"binary message received",
	"received gateway message",
	"opening gateway connection",
	"locking gateway rate limiter",
	"unlocking gateway rate limiter",
	"sending gateway command",
	"new request",
	"new response",
	"locking rest bucket",
	"unlocking rest bucket",
	"ready message received",
	"rate limit response headers",
	"sending heartbeat",
}

// Keys rendered inline by the handler instead of as key=value pairs.
var internalKeys = map[string]bool{
	"type":           true,
	"name":           true,
	"user_name":      true,
	"status":         true,
	"error":          true,
	"error_location": true,
}

type CustomHandler struct {
	mu     *sync.Mutex
	out    io.Writer
	level  slog.Leveler
	color  bool
	attrs  []slog.Attr
	groups []string
}

// NewHandler writes coloured single-line records to stdout.
func NewHandler(level slog.Level) *CustomHandler {
	return NewWriterHandler(os.Stdout, level, true)
}

func NewWriterHandler(w io.Writer, level slog.Level, color bool) *CustomHandler {
	return &CustomHandler{
		mu:    &sync.Mutex{},
		out:   w,
		level: level,
		color: color,
	}
}

// ParseLevel accepts debug, info, warn and error; anything else is info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (h *CustomHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *CustomHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	c.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &c
}

func (h *CustomHandler) WithGroup(name string) slog.Handler {
	c := *h
	c.groups = append(append([]string{}, h.groups...), name)
	return &c
}

// fields is what the handler extracts from a record before formatting.
type fields struct {
	logType  LogType
	name     string
	userName string
	status   string
	err      string
	location string
	extra    []string
}

func (h *CustomHandler) collect(r *slog.Record) fields {
	f := fields{logType: TypeSystem}
	visit := func(a slog.Attr) bool {
		switch a.Key {
		case "type":
			switch a.Value.String() {
			case "cmd":
				f.logType = TypeCommand
			case "db":
				f.logType = TypeDB
			case "sweep":
				f.logType = TypeSweep
			case "error":
				f.logType = TypeError
			}
		case "name":
			f.name = a.Value.String()
		case "user_name":
			f.userName = a.Value.String()
		case "status":
			f.status = a.Value.String()
		case "error":
			f.err = fmt.Sprintf("%v", a.Value.Any())
		case "error_location":
			f.location = a.Value.String()
		}
		if !internalKeys[a.Key] {
			key := a.Key
			if len(h.groups) > 0 {
				key = strings.Join(h.groups, ".") + "." + key
			}
			f.extra = append(f.extra, fmt.Sprintf("%s=%v", key, a.Value))
		}
		return true
	}
	for _, a := range h.attrs {
		visit(a)
	}
	r.Attrs(visit)
	return f
}

func (h *CustomHandler) Handle(_ context.Context, r slog.Record) error {
	if shouldSkipLog(r.Message) {
		return nil
	}

	f := h.collect(&r)

	levelColor, levelText := colorGreen, "INFO"
	switch {
	case r.Level >= slog.LevelError:
		levelColor, levelText = colorRed, "ERROR"
	case r.Level >= slog.LevelWarn:
		levelColor, levelText = colorYellow, "WARN"
	case r.Level < slog.LevelInfo:
		levelColor, levelText = colorPurple, "DEBUG"
	}

	message := r.Message
	if r.Level >= slog.LevelError {
		if f.location == "" && r.PC != 0 {
			frames := runtime.CallersFrames([]uintptr{r.PC})
			frame, _ := frames.Next()
			if frame.File != "" {
				f.location = fmt.Sprintf("%s:%d", filepath.Base(frame.File), frame.Line)
			}
		}
		if f.location != "" {
			message = fmt.Sprintf("%s (%s)", message, f.location)
		}
	}
	if f.err != "" {
		message = fmt.Sprintf("%s: %s", message, f.err)
	}
	if f.name != "" && f.userName != "" {
		message = fmt.Sprintf("%s [%s by %s]", message, f.name, f.userName)
	}
	if f.status != "" {
		message = fmt.Sprintf("%s [Status: %s]", message, f.status)
	}
	if len(f.extra) > 0 {
		message += " " + strings.Join(f.extra, " ")
	}

	white, reset, lvl := colorWhite, colorReset, levelColor
	typeColor := colorCyan
	if !h.color {
		white, reset, lvl, typeColor = "", "", "", ""
	}

	line := fmt.Sprintf("%s[Slotkeeper] [%s] [%s%s%s] [%s%s%s] %s%s\n",
		white,
		r.Time.Format(time.TimeOnly),
		lvl, levelText, white,
		typeColor, f.logType, white,
		message,
		reset,
	)

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.out, line)
	return err
}

func shouldSkipLog(msg string) bool {
	msg = strings.ToLower(msg)
	for _, skip := range skippedMessages {
		if strings.Contains(msg, skip) {
			return true
		}
	}
	return false
}
