package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"instantbuy/internal/config"
)

// Setup creates a zerolog logger according to the provided configuration.
func Setup(cfg config.Logging) (zerolog.Logger, error) {
	return setup(cfg, os.Stdout)
}

func setup(cfg config.Logging, out io.Writer) (zerolog.Logger, error) {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
		if err != nil {
			return zerolog.Logger{}, fmt.Errorf("parse log level: %w", err)
		}
		level = parsed
	}

	w := out
	if strings.EqualFold(cfg.Format, "text") {
		w = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).With().Timestamp().Logger().Level(level), nil
}
