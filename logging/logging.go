// Package logging builds the go-ethereum style loggers used across sandboxtest.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/log"
)

// LevelOff disables logging entirely. It is the default inside `go test` so
// that a passing run prints nothing but the tests' own output.
const LevelOff = "off"

// ParseLevel maps a level name to a slog level. ok is false for "off" and "".
func ParseLevel(s string) (level slog.Level, ok bool, err error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", LevelOff, "none":
		return 0, false, nil
	case "trace":
		return log.LevelTrace, true, nil
	case "debug":
		return log.LevelDebug, true, nil
	case "info":
		return log.LevelInfo, true, nil
	case "warn", "warning":
		return log.LevelWarn, true, nil
	case "error":
		return log.LevelError, true, nil
	case "crit":
		return log.LevelCrit, true, nil
	default:
		return 0, false, fmt.Errorf("unknown log level %q", s)
	}
}

// New returns a terminal logger writing to w at the named level
func New(level string, w io.Writer) (log.Logger, error) {
	lvl, ok, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	if !ok {
		return Discard(), nil
	}
	return log.NewLogger(log.NewTerminalHandlerWithLevel(w, lvl, false)), nil
}

// Discard returns a logger that drops everything
func Discard() log.Logger {
	return log.NewLogger(log.DiscardHandler())
}
