// Package logging provides the process-wide structured logger used by every
// other package. It never writes errors meant for the caller to stdout —
// callers receive typed errors and decide how to render them (spec.md §7).
package logging

import (
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
	"golang.org/x/term"
)

var level = new(slog.LevelVar)

var logger = slog.New(newHandler())

func newHandler() slog.Handler {
	level.Set(slog.LevelInfo)
	opts := &slog.HandlerOptions{Level: level}
	if isTerminal(os.Stderr) {
		return tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level,
			TimeFormat: "15:04:05",
			ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
				if len(groups) > 0 || attr.Key != slog.LevelKey {
					return attr
				}
				lvl, ok := attr.Value.Any().(slog.Level)
				if !ok {
					return attr
				}
				switch {
				case lvl >= slog.LevelError:
					return tint.Attr(196, slog.Any(slog.LevelKey, lvl))
				case lvl >= slog.LevelWarn:
					return tint.Attr(208, slog.Any(slog.LevelKey, lvl))
				default:
					return attr
				}
			},
		})
	}
	return slog.NewTextHandler(os.Stderr, opts)
}

func isTerminal(f *os.File) bool {
	if f == nil {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// Logger returns the process logger.
func Logger() *slog.Logger {
	return logger
}

// SetLevel adjusts the minimum level emitted by Logger(). Safe to call
// repeatedly, e.g. once per --verbose flag evaluation.
func SetLevel(l slog.Level) {
	level.Set(l)
}
