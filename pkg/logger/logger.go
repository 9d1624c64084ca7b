package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Options struct {
	Level       string
	AddSource   bool
	Environment string

	// File enables rotated file output instead of stdout.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

func New(opts Options) *slog.Logger {
	return slog.New(NewHandler(output(opts), opts)).With(
		slog.String("environment", opts.Environment),
	)
}

// NewHandler builds the handler New uses, writing to w.
func NewHandler(w io.Writer, opts Options) slog.Handler {
	level := parseLevel(opts.Level)

	// Colour codes are noise in files and log shippers.
	if strings.ToLower(opts.Environment) == "prod" || opts.File != "" {
		return slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level:     level,
			AddSource: opts.AddSource,
		})
	}

	return tint.NewHandler(w, &tint.Options{
		Level:      level,
		AddSource:  opts.AddSource,
		TimeFormat: time.RFC3339,
	})
}

func output(opts Options) io.Writer {
	if opts.File == "" {
		return os.Stdout
	}

	return &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   true,
	}
}

func parseLevel(level string) slog.Level {

	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
