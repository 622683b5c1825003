package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// ParseLevel maps the LOGLEVEL names (DEBUG, INFO, WARN/WARNING, ERROR) to a
// slog level. Unknown names fall back to INFO.
func ParseLevel(name string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR", "CRITICAL":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Setup installs a text handler on w as the process default logger.
func Setup(w io.Writer, level string) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	l := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)}))
	slog.SetDefault(l)
	return l
}

// Module returns a child of the default logger tagged with the module name.
func Module(name string) *slog.Logger {
	return slog.Default().With("module", name)
}

// Or returns l, or a module logger when l is nil.
func Or(l *slog.Logger, module string) *slog.Logger {
	if l != nil {
		return l
	}
	return Module(module)
}
