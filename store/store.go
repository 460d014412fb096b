package store

import (
	"context"

	"github.com/xraph/formdispatch/dlq"
	"github.com/xraph/formdispatch/form"
	"github.com/xraph/formdispatch/response"
)

// Store is what the engine needs from a database.
type Store interface {
	response.Store
	form.Store
	dlq.Store

	// Migrate is idempotent.
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
