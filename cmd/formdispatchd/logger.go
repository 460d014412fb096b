package main

import (
	"io"
	"log/slog"

	"github.com/xraph/formdispatch/config"
)

// newLogger builds the process logger: JSON lines at the configured level.
func newLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: cfg.Level(),
	})).With(slog.Uint64("shard", cfg.ShardID))
}
