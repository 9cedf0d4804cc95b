// Package logging builds the slog logger shared by the engine components.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// ParseLevel maps debug, info, warn and error to slog levels. "none" and
// "off" disable logging.
func ParseLevel(s string) (slog.Level, bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, true, nil
	case "", "info":
		return slog.LevelInfo, true, nil
	case "warn", "warning":
		return slog.LevelWarn, true, nil
	case "error":
		return slog.LevelError, true, nil
	case "none", "off":
		return 0, false, nil
	}
	return slog.LevelInfo, true, fmt.Errorf("unknown log level %q", s)
}

// New returns a text logger writing to w at the given level. An unknown
// level falls back to info.
func New(level string, w io.Writer) *slog.Logger {
	lvl, enabled, _ := ParseLevel(level)
	if !enabled || w == nil {
		return Discard()
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
