package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const serviceName = "pagetranslate"

// New builds the service logger. Logs go to stderr so translated documents can
// be written to stdout.
func New(environment, level string) (zerolog.Logger, error) {
	return NewWithWriter(os.Stderr, environment, level)
}

func NewWithWriter(out io.Writer, environment, level string) (zerolog.Logger, error) {
	parsedLevel, err := ParseLevel(level)
	if err != nil {
		return zerolog.Logger{}, err
	}

	writer := out
	if strings.EqualFold(strings.TrimSpace(environment), "local") {
		writer = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
			NoColor:    out != os.Stderr && out != os.Stdout,
		}
	}

	return zerolog.New(writer).
		Level(parsedLevel).
		With().
		Timestamp().
		Str("service", serviceName).
		Logger(), nil
}

// ParseLevel accepts zerolog level names plus "warning" and "silent".
// An empty level means info.
func ParseLevel(raw string) (zerolog.Level, error) {
	switch level := strings.ToLower(strings.TrimSpace(raw)); level {
	case "":
		return zerolog.InfoLevel, nil
	case "warning":
		return zerolog.WarnLevel, nil
	case "silent":
		return zerolog.Disabled, nil
	default:
		parsed, err := zerolog.ParseLevel(level)
		if err != nil {
			return zerolog.NoLevel, fmt.Errorf("parse LOG_LEVEL=%q: %w", raw, err)
		}
		return parsed, nil
	}
}
