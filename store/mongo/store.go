package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/formdispatch/dlq"
	"github.com/xraph/formdispatch/form"
	"github.com/xraph/formdispatch/response"
)

// Default collection names.
const (
	DefaultResponses = "responses"
	DefaultForms     = "forms"
	colDLQ           = "dispatch_dlq"
)

// Ensure Store implements all subsystem interfaces at compile time.
var (
	_ response.Store = (*Store)(nil)
	_ form.Store     = (*Store)(nil)
	_ dlq.Store      = (*Store)(nil)
)

// Store is a MongoDB implementation of store.Store.
type Store struct {
	client *mongod.Client // set only when the store dialed it
	db     *mongod.Database
	logger *slog.Logger

	colResponses string
	colForms     string
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithCollections overrides the response and form collection names.
// Empty names keep the defaults.
func WithCollections(responses, forms string) Option {
	return func(s *Store) {
		if responses != "" {
			s.colResponses = responses
		}
		if forms != "" {
			s.colForms = forms
		}
	}
}

// New creates a store over db. The caller owns the client behind db; Close
// does not disconnect it.
func New(db *mongod.Database, opts ...Option) *Store {
	s := &Store{
		db:           db,
		logger:       slog.Default(),
		colResponses: DefaultResponses,
		colForms:     DefaultForms,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open dials uri, verifies the connection, and returns a store over the
// named database that disconnects the client on Close.
func Open(ctx context.Context, uri, database string, opts ...Option) (*Store, error) {
	client, err := mongod.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("formdispatch/mongo: connect: %w", err)
	}

	s := New(client.Database(database), opts...)
	s.client = client

	if err := s.Ping(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

// DB returns the underlying database for advanced usage.
func (s *Store) DB() *mongod.Database {
	return s.db
}

// Migrate creates the indexes of every collection the store uses.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range s.migrationIndexes() {
		if _, err := s.db.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("formdispatch/mongo: migrate %s indexes: %w", col, err)
		}
	}
	s.logger.Debug("mongo indexes ensured", slog.String("database", s.db.Name()))
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.RunCommand(ctx, bson.D{{Key: "ping", Value: 1}}).Err(); err != nil {
		return fmt.Errorf("formdispatch/mongo: ping: %w", err)
	}
	return nil
}

// Close disconnects the client if the store opened it.
func (s *Store) Close() error {
	if s.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("formdispatch/mongo: disconnect: %w", err)
	}
	return nil
}

// ── helpers ──────────────────────────────────────────────────────

func (s *Store) responses() *mongod.Collection { return s.db.Collection(s.colResponses) }
func (s *Store) forms() *mongod.Collection     { return s.db.Collection(s.colForms) }
func (s *Store) dlq() *mongod.Collection       { return s.db.Collection(colDLQ) }

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoDocuments returns true when err indicates no MongoDB documents found.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongod.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all collections.
func (s *Store) migrationIndexes() map[string][]mongod.IndexModel {
	return map[string][]mongod.IndexModel{
		s.colResponses: {
			// Recovery scan: unprocessed responses of a shard in id order.
			{Keys: bson.D{
				{Key: "processed", Value: 1},
				{Key: "_id", Value: 1},
			}},
			{Keys: bson.D{{Key: "formId", Value: 1}}},
			{Keys: bson.D{{Key: "owner", Value: 1}}},
		},
		s.colForms: {
			{Keys: bson.D{{Key: "owner", Value: 1}}},
		},
		colDLQ: {
			{Keys: bson.D{{Key: "failed_at", Value: 1}}},
			{Keys: bson.D{
				{Key: "form_id", Value: 1},
				{Key: "failed_at", Value: 1},
			}},
			{Keys: bson.D{{Key: "response_id", Value: 1}}},
		},
	}
}
