package response

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/formdispatch"
	"github.com/xraph/formdispatch/id"
)

// Service assigns identities to new responses and wraps the store with the
// shard-scoped queries the dispatch pipeline needs.
type Service struct {
	store     Store
	allocator *id.Allocator
	logger    *slog.Logger
	now       func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the logger for the service.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithClock overrides the creation-time source.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a response service over store that allocates IDs from
// allocator.
func NewService(store Store, allocator *id.Allocator, opts ...ServiceOption) *Service {
	s := &Service{
		store:     store,
		allocator: allocator,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store returns the underlying store.
func (s *Service) Store() Store { return s.store }

// Shard returns the shard the service allocates for.
func (s *Service) Shard() uint64 { return s.allocator.Shard() }

// Recover seeds the allocator from the greatest persisted ID in the shard.
// It must run before the first Insert of the process.
func (s *Service) Recover(ctx context.Context) (uint64, error) {
	seed, err := s.allocator.Recover(ctx, s)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", formdispatch.ErrStorage, err)
	}
	s.logger.Info("identity allocator recovered",
		slog.Uint64("shard", s.allocator.Shard()),
		slog.Uint64("last_sequence", seed),
	)
	return seed, nil
}

// MaxID implements id.HighWater over the store.
func (s *Service) MaxID(ctx context.Context, lo, hi id.ID) (id.ID, bool, error) {
	return s.store.MaxResponseID(ctx, lo, hi)
}

// LastSequence returns the allocator's current counter.
func (s *Service) LastSequence() uint64 { return s.allocator.Last() }

// Insert allocates an ID and persists a new, unprocessed response. On a
// storage failure the allocated ID is not reused.
func (s *Service) Insert(ctx context.Context, formID, owner string, answers []any) (*Response, error) {
	rid, err := s.allocator.Next()
	if err != nil {
		return nil, err
	}

	r := &Response{
		ID:           rid,
		FormID:       formID,
		Owner:        owner,
		Answers:      answers,
		CreationTime: s.now().UTC(),
		Processed:    false,
	}
	if err := s.store.InsertResponse(ctx, r); err != nil {
		return nil, fmt.Errorf("%w: insert response %s: %w", formdispatch.ErrStorage, rid, err)
	}
	return r, nil
}

// Get retrieves a response by ID.
func (s *Service) Get(ctx context.Context, responseID id.ID) (*Response, error) {
	return s.store.GetResponse(ctx, responseID)
}

// FindUnprocessed returns up to batch unprocessed responses of the shard
// whose sequence is at most upperSeq, oldest first.
func (s *Service) FindUnprocessed(ctx context.Context, shard, upperSeq uint64, batch int) ([]*Response, error) {
	return s.FindUnprocessedAfter(ctx, shard, 0, upperSeq, batch)
}

// FindUnprocessedAfter is FindUnprocessed restricted to sequences strictly
// greater than afterSeq. It lets a scan page forward past responses it has
// already visited.
func (s *Service) FindUnprocessedAfter(ctx context.Context, shard, afterSeq, upperSeq uint64, batch int) ([]*Response, error) {
	if afterSeq >= upperSeq || afterSeq >= id.MaxSequence {
		return nil, nil
	}
	lo := id.Pack(shard, afterSeq+1)
	hi := id.Pack(shard, min(upperSeq, id.MaxSequence))

	out, err := s.store.FindUnprocessed(ctx, lo, hi, batch)
	if err != nil {
		return nil, fmt.Errorf("%w: find unprocessed: %w", formdispatch.ErrStorage, err)
	}
	return out, nil
}

// MarkProcessed makes a single attempt to flip the processed flag. Storage
// errors and missing responses are logged and reported as false.
func (s *Service) MarkProcessed(ctx context.Context, responseID id.ID) bool {
	ok, err := s.store.MarkProcessed(ctx, responseID)
	if err != nil {
		s.logger.Warn("mark processed failed",
			slog.String("response_id", responseID.String()),
			slog.String("error", err.Error()),
		)
		return false
	}
	if !ok {
		s.logger.Warn("mark processed matched no response",
			slog.String("response_id", responseID.String()),
		)
	}
	return ok
}

// ListByForm returns a form's responses.
func (s *Service) ListByForm(ctx context.Context, formID string, opts ListOpts) ([]*Response, error) {
	return s.store.ListResponsesByForm(ctx, formID, opts)
}

// ListByOwner returns an owner's responses.
func (s *Service) ListByOwner(ctx context.Context, owner string, opts ListOpts) ([]*Response, error) {
	return s.store.ListResponsesByOwner(ctx, owner, opts)
}

// IsExhausted reports whether err means the shard can allocate no more IDs.
func IsExhausted(err error) bool {
	return errors.Is(err, id.ErrSequenceExhausted)
}
