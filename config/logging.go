package config

import (
	"io"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/log"
)

// ParseLevel maps LOG_LEVEL to a slog level; unknown values fall back to info
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return log.LevelTrace
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

// NewLogger builds the root logger for the configured format and level
func NewLogger(cfg LoggingConfig, w io.Writer) log.Logger {
	level := ParseLevel(cfg.Level)
	if cfg.Format == "json" {
		return log.NewLogger(log.JSONHandlerWithLevel(w, level))
	}
	return log.NewLogger(log.NewTerminalHandlerWithLevel(w, level, false))
}
