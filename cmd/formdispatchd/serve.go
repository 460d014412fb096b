package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/xraph/formdispatch/api"
	"github.com/xraph/formdispatch/dlq"
)

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the ingestion API, the dispatch workers and the boot-time recovery pass",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				v.Set("http.addr", addr)
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(os.Stderr, cfg)

			ctx, stop := signal.NotifyContext(commandContext(cmd), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			eng, err := buildEngine(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer stopEngine(eng, cfg, logger)

			if err := eng.Start(ctx); err != nil {
				return err
			}
			if cfg.DLQ.PurgeSchedule != "" {
				purger, err := dlq.NewPurger(eng.Store(), cfg.DLQ.PurgeSchedule, cfg.DLQ.Retention,
					dlq.WithPurgerLogger(logger))
				if err != nil {
					return err
				}
				_ = purger.Start(ctx)
				defer purger.Stop(context.Background())
			}

			logger.Info("formdispatchd started",
				slog.String("store", cfg.Store),
				slog.Any("jobs", eng.Registry().Names()),
			)

			srv := api.New(eng, api.WithLogger(logger))
			err = srv.Serve(ctx, cfg.HTTP.Addr, cfg.ShutdownTimeout)
			if ctx.Err() != nil {
				logger.Info("received shutdown signal")
			}
			return err
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides http.addr)")
	return cmd
}

func recoverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recover",
		Short: "Dispatch every unprocessed response of the shard once, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger(os.Stderr, cfg)

			ctx, stop := signal.NotifyContext(commandContext(cmd), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			eng, err := buildEngine(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer stopEngine(eng, cfg, logger)

			n, err := eng.RunRecovery(ctx)
			fmt.Fprintf(cmd.OutOrStdout(), "reprocessed %d responses\n", n)
			return err
		},
	}
}

// commandContext returns the command context, or a background context
// when the command runs outside Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
