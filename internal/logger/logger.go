package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Log is the process-wide logger. It discards output until Init is called.
var Log = slog.New(slog.NewTextHandler(io.Discard, nil))

// Init points Log at logFilePath (stderr when empty).
func Init(logFilePath, level, format string) error {
	var out io.Writer = os.Stderr
	if strings.TrimSpace(logFilePath) != "" {
		file, err := os.OpenFile(logFilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return err
		}
		out = file
	}

	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	Log = slog.New(handler)
	slog.SetDefault(Log)
	Log.Info("logger initialized", "level", opts.Level)
	return nil
}

// Component returns l, or a child of Log tagged with name when l is nil.
func Component(l *slog.Logger, name string) *slog.Logger {
	if l != nil {
		return l
	}
	return Log.With("component", name)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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
