package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/xraph/formdispatch"
	audithook "github.com/xraph/formdispatch/audit_hook"
	"github.com/xraph/formdispatch/config"
	"github.com/xraph/formdispatch/engine"
	"github.com/xraph/formdispatch/job"
	"github.com/xraph/formdispatch/queue"
	qredis "github.com/xraph/formdispatch/queue/redis"
	"github.com/xraph/formdispatch/store"
	"github.com/xraph/formdispatch/store/memory"
	"github.com/xraph/formdispatch/store/mongo"
	"github.com/xraph/formdispatch/store/postgres"
	"github.com/xraph/formdispatch/store/sqlite"
)

// openStore connects the configured backend and applies its migrations.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Store, error) {
	var (
		s   store.Store
		err error
	)
	switch cfg.Store {
	case config.StoreMongo:
		s, err = mongo.Open(ctx, cfg.Mongo.URL, cfg.Mongo.Database,
			mongo.WithLogger(logger),
			mongo.WithCollections(cfg.Mongo.Responses, cfg.Mongo.Forms),
		)
	case config.StorePostgres:
		s, err = postgres.New(ctx, cfg.Postgres.URL, postgres.WithLogger(logger))
	case config.StoreSQLite:
		s, err = sqlite.Open(ctx, cfg.SQLite.Path, sqlite.WithLogger(logger))
	case config.StoreMemory:
		s = memory.New()
	default:
		err = fmt.Errorf("unknown store %q", cfg.Store)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Store, err)
	}

	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	logger.Info("store ready", slog.String("store", cfg.Store))
	return s, nil
}

// openQueues opens one Redis producer per registered job type.
func openQueues(reg *job.Registry, logger *slog.Logger) ([]queue.Client, error) {
	clients := make([]queue.Client, 0, len(reg.Names()))
	for _, name := range reg.Names() {
		jc, _ := reg.Get(name)
		p, err := qredis.Open(jc, qredis.WithLogger(logger))
		if err != nil {
			closeQueues(clients)
			return nil, err
		}
		clients = append(clients, p)
	}
	return clients, nil
}

func closeQueues(clients []queue.Client) {
	for _, c := range clients {
		_ = c.Close(context.Background())
	}
}

// buildEngine opens the store and the queues and wires the engine over
// them. The engine owns both afterwards.
func buildEngine(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*engine.Engine, error) {
	reg, err := cfg.Registry()
	if err != nil {
		return nil, err
	}
	if len(reg.Names()) == 0 {
		logger.Warn("no allowed jobs configured, responses will stay unprocessed")
	}

	s, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	clients, err := openQueues(reg, logger)
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	opts := append(cfg.DispatcherOptions(),
		formdispatch.WithStore(s),
		formdispatch.WithLogger(logger),
	)
	d, err := formdispatch.New(opts...)
	if err != nil {
		closeQueues(clients)
		return nil, errors.Join(err, s.Close())
	}

	engOpts := []engine.Option{
		engine.WithQueues(clients...),
		engine.WithJobRegistry(reg),
	}
	if cfg.Audit.Enabled {
		engOpts = append(engOpts, engine.WithExtension(audithook.New(
			audithook.LogRecorder(logger.With(slog.String("component", "audit"))),
			audithook.WithActions(cfg.Audit.Actions...),
			audithook.WithLogger(logger),
		)))
	}

	eng, err := engine.Build(d, engOpts...)
	if err != nil {
		closeQueues(clients)
		return nil, errors.Join(err, s.Close())
	}
	return eng, nil
}

// stopEngine shuts the engine down within the configured timeout.
func stopEngine(eng *engine.Engine, cfg *config.Config, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := eng.Stop(ctx); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
	}
}
