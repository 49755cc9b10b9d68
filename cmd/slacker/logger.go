package main

import (
	"io"

	"github.com/rs/zerolog"

	"github.com/shohag/slacker/internal/config"
)

// setupLogger writes to w only; stdout stays empty so slacker can sit in the
// middle of a pipeline. The plain format prints the bare message.
func setupLogger(cfg config.LoggingConfig, w io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	switch cfg.Format {
	case "console":
		return zerolog.New(zerolog.ConsoleWriter{Out: w}).
			Level(level).
			With().Timestamp().Logger()
	case "json":
		return zerolog.New(w).Level(level).With().Timestamp().Logger()
	default:
		return zerolog.New(zerolog.ConsoleWriter{
			Out:        w,
			NoColor:    true,
			PartsOrder: []string{zerolog.MessageFieldName},
		}).Level(level)
	}
}
