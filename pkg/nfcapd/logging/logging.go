package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
)

// NewLogger constructs a slog logger on stderr from level/format inputs.
func NewLogger(level, format string) (*slog.Logger, error) {
	return NewLoggerTo(os.Stderr, level, format)
}

// NewLoggerTo constructs a slog logger writing to w. The format is
// "normal" (text) or "json".
func NewLoggerTo(w io.Writer, level, format string) (*slog.Logger, error) {
	var loglevel slog.Level
	if err := loglevel.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	opts := slog.HandlerOptions{
		Level: loglevel,
	}
	switch format {
	case "", "normal", "text":
		return slog.New(slog.NewTextHandler(w, &opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, &opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}
