// Package logging builds the slog.Logger used by the CLI.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	charmLog "github.com/charmbracelet/log"

	"github.com/avivsinai/signalbox/internal/config"
)

const (
	defaultFormat = "text"
	defaultLevel  = "info"
)

// New returns a logger writing to w. Environment overrides are resolved by
// the config layer before cfg gets here.
func New(cfg config.LoggingConfig, w io.Writer) (*slog.Logger, error) {
	format := strings.ToLower(strings.TrimSpace(cfg.Format))
	if format == "" {
		format = defaultFormat
	}

	var formatter charmLog.Formatter
	switch format {
	case "text":
		formatter = charmLog.TextFormatter
	case "json":
		formatter = charmLog.JSONFormatter
	default:
		return nil, fmt.Errorf("unsupported log format %q", format)
	}

	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	handler := charmLog.NewWithOptions(w, charmLog.Options{
		Level:           charmLevel(level),
		ReportTimestamp: true,
		Formatter:       formatter,
	})
	return slog.New(handler), nil
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ParseLevel maps a level name to a slog.Level. An empty name means info.
func ParseLevel(input string) (slog.Level, error) {
	levelText := strings.ToLower(strings.TrimSpace(input))
	if levelText == "" {
		levelText = defaultLevel
	}

	switch levelText {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unsupported log level %q", levelText)
	}
}

func charmLevel(level slog.Level) charmLog.Level {
	switch {
	case level <= slog.LevelDebug:
		return charmLog.DebugLevel
	case level <= slog.LevelInfo:
		return charmLog.InfoLevel
	case level <= slog.LevelWarn:
		return charmLog.WarnLevel
	default:
		return charmLog.ErrorLevel
	}
}
