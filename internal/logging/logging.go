// Package logging configures wardenbot's zerolog output.
//
// Console output stays human readable (short timestamps); the optional file
// sink keeps events JSON-structured. The level is global so a config reload
// can tighten or loosen all component loggers at once.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"wardenbot/internal/config"
)

const consoleTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// nopCloser stands in for the file sink when none is configured, so callers
// can defer Close without caring which shape they got.
type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Setup builds the root logger. The returned closer owns the file sink and
// is never nil; on success callers always defer Close.
func Setup(cfg config.LoggingConfig) (zerolog.Logger, io.Closer, error) {
	zerolog.TimeFieldFormat = consoleTimeFormat
	zerolog.ErrorFieldName = "err"
	zerolog.DurationFieldUnit = time.Millisecond

	level, err := parseLevel(cfg.Level)
	if err != nil {
		return zerolog.Nop(), nil, err
	}
	zerolog.SetGlobalLevel(level)

	console := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: consoleTimeFormat}

	var (
		w      io.Writer = console
		closer io.Closer = nopCloser{}
	)
	if strings.TrimSpace(cfg.File) != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return zerolog.Nop(), nil, err
		}
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return zerolog.Nop(), nil, err
		}
		w = zerolog.MultiLevelWriter(console, f)
		closer = f
	}

	log := zerolog.New(w).With().Timestamp().Logger()
	return log, closer, nil
}

// SetLevel applies a new global level; used by the config watcher.
func SetLevel(raw string) error {
	level, err := parseLevel(raw)
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(level)
	return nil
}

func parseLevel(raw string) (zerolog.Level, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return zerolog.InfoLevel, nil
	}
	level, err := zerolog.ParseLevel(s)
	if err != nil {
		return zerolog.InfoLevel, fmt.Errorf("logging.level: %w", err)
	}
	return level, nil
}
