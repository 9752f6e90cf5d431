// Package logging configures the process-wide zerolog logger.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init sets up the global logger. format "console" selects the human-readable writer; anything else emits JSON.
// An unparsable level falls back to info.
func Init(level, format, service string) zerolog.Logger {
	return InitWriter(os.Stdout, level, format, service)
}

// InitWriter is Init with an explicit destination.
func InitWriter(w io.Writer, level, format, service string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	if strings.EqualFold(strings.TrimSpace(format), "console") {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}

	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	log.Logger = zerolog.New(w).With().Timestamp().Str("service", service).Logger()
	return log.Logger
}
