// Package log builds slog handlers from level and format strings.
package log

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

const (
	JSONFormat = "json"
	TextFormat = "text"
)

var ErrUnknownFormat = errors.New("unknown log format")

// CreateHandler creates a [slog.Handler] writing to w.
func CreateHandler(w io.Writer, logLevel, logFormat string) (slog.Handler, error) {
	opts := &slog.HandlerOptions{Level: GetLevel(logLevel)}

	switch strings.ToLower(logFormat) {
	case JSONFormat:
		return slog.NewJSONHandler(w, opts), nil
	case TextFormat, "logfmt", "":
		return slog.NewTextHandler(w, opts), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, logFormat)
	}
}

// New creates a [slog.Logger] writing to w.
func New(w io.Writer, logLevel, logFormat string) (*slog.Logger, error) {
	h, err := CreateHandler(w, logLevel, logFormat)
	if err != nil {
		return nil, err
	}
	return slog.New(h), nil
}

// GetLevel parses a level name. Unknown names mean info.
func GetLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "error":
		return slog.LevelError
	case "warn", "warning":
		return slog.LevelWarn
	case "info":
		return slog.LevelInfo
	case "debug", "trace":
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}
