package logging

import (
	"io"
	"log/slog"
	"math"
	"os"
	"strings"
)

// Format selects the handler encoding.
type Format string

// Supported encodings.
const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Config describes a logger. The zero value logs info-level text to
// stderr.
type Config struct {
	// Level is the minimum level that gets emitted.
	Level slog.Level

	// Format picks text or JSON output.
	Format Format

	// Output receives the log lines. Defaults to os.Stderr.
	Output io.Writer

	// AddSource annotates entries with the emitting file and line.
	AddSource bool
}

// New builds a slog.Logger from cfg.
func New(cfg Config) *slog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	opts := &slog.HandlerOptions{
		Level:     cfg.Level,
		AddSource: cfg.AddSource,
	}
	if cfg.Format == FormatJSON {
		return slog.New(slog.NewJSONHandler(out, opts))
	}
	return slog.New(slog.NewTextHandler(out, opts))
}

// Nop returns a logger that discards everything. Components default to it
// so call sites never nil-check.
func Nop() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(math.MaxInt)}))
}

// ParseLevel maps a level name ("debug", "info", "warn"/"warning",
// "error", any case) to its slog level. Unrecognized names mean info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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

// ParseFormat maps a format name to a Format. Unrecognized names mean
// text.
func ParseFormat(s string) Format {
	if strings.EqualFold(s, string(FormatJSON)) {
		return FormatJSON
	}
	return FormatText
}
