package app

import (
	"io"
	"log/slog"
	"strings"

	"github.com/Priya8975/commerce-webhook-pipeline/internal/config"
)

// NewLogger builds the process logger from logging.level and logging.format.
// Unknown levels fall back to info.
func NewLogger(cfg config.LoggingConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
