package app

import (
	"log/slog"
	"os"
)

// NewLogger builds the process logger. Production emits JSON for the log
// pipeline; everywhere else a text handler with source locations is easier
// to read during development. Every record carries a service attribute so
// authzd and the worker stay distinguishable in shared streams.
func NewLogger(cfg *Config, service string) *slog.Logger {
	var handler slog.Handler
	if cfg != nil && (cfg.LogFormat == "json" || cfg.IsProduction()) {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{AddSource: true, Level: slog.LevelDebug})
	}
	return slog.New(handler).With(slog.String("service", service))
}
