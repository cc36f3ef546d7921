// Package logging builds the process logger: colored console output, an
// optional plain-text log file and optional GELF shipping to Graylog.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/Graylog2/go-gelf/gelf"
	"github.com/lab1702/robo-arena/config"
	"github.com/rs/zerolog"
)

// ParseLevel maps a config level name to a zerolog level; unknown names fall back to info
func ParseLevel(name string) zerolog.Level {
	switch strings.ToUpper(name) {
	case "TRACE":
		return zerolog.TraceLevel
	case "DEBUG":
		return zerolog.DebugLevel
	case "INFO":
		return zerolog.InfoLevel
	case "WARN":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Closer releases the sinks opened by New
type Closer func() error

// New builds the logger described by cfg. Console output goes to out.
func New(cfg config.LogConfig, out io.Writer) (zerolog.Logger, Closer, error) {
	zerolog.TimestampFunc = func() time.Time {
		return time.Now().UTC()
	}

	writers := []io.Writer{
		// console format with colors
		zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
		},
	}
	var closers []io.Closer

	if cfg.File != "" {
		file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("open log file: %w", err)
		}
		// console format without colors
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        file,
			TimeFormat: time.RFC3339,
			NoColor:    true,
		})
		closers = append(closers, file)
	}

	if cfg.Graylog.Enabled {
		gw, err := gelf.NewWriter(cfg.Graylog.Address)
		if err != nil {
			for _, c := range closers {
				c.Close()
			}
			return zerolog.Nop(), nil, fmt.Errorf("connect graylog %s: %w", cfg.Graylog.Address, err)
		}
		writers = append(writers, gw)
		closers = append(closers, gw)
	}

	logger := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(ParseLevel(cfg.Level)).
		With().Timestamp().Logger()

	closeAll := func() error {
		var first error
		for _, c := range closers {
			if err := c.Close(); err != nil && first == nil {
				first = err
			}
		}
		return first
	}
	return logger, closeAll, nil
}

// Component returns a child logger tagged with the component name
func Component(l zerolog.Logger, name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}
