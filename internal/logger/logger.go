package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger is the process-wide logger. It discards everything until Init.
var Logger = zerolog.Nop()

// Init logs to stderr; stdout is reserved for operator output.
func Init(level, format string) zerolog.Logger {
	return InitWriter(os.Stderr, level, format)
}

func InitWriter(w io.Writer, level, format string) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLogLevel(level))

	if !strings.EqualFold(format, "json") {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
	}
	Logger = zerolog.New(w).With().Timestamp().Logger()
	log.Logger = Logger
	return Logger
}

// parseLogLevel falls back to warn for empty or unknown levels.
func parseLogLevel(level string) zerolog.Level {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "warning" {
		level = "warn"
	}
	l, err := zerolog.ParseLevel(level)
	if err != nil || l == zerolog.NoLevel {
		return zerolog.WarnLevel
	}
	return l
}
