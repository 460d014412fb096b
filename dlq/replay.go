package dlq

import (
	"context"
	"errors"

	"github.com/xraph/formdispatch/id"
)

// Redispatcher runs the full dispatch of a stored response again.
type Redispatcher interface {
	Redispatch(ctx context.Context, responseID id.ID) error
}

// RedispatchFunc adapts a function to Redispatcher.
type RedispatchFunc func(ctx context.Context, responseID id.ID) error

// Redispatch calls fn.
func (fn RedispatchFunc) Redispatch(ctx context.Context, responseID id.ID) error {
	return fn(ctx, responseID)
}

var errNoRedispatcher = errors.New("dlq: replay not configured")

// Replay redispatches the entry's response and marks the entry as
// replayed. The entry is left untouched if the redispatch fails.
func (s *Service) Replay(ctx context.Context, entryID id.DLQID) (*Entry, error) {
	if s.redispatcher == nil {
		return nil, errNoRedispatcher
	}

	entry, err := s.store.GetDLQ(ctx, entryID)
	if err != nil {
		return nil, err
	}

	if err := s.redispatcher.Redispatch(ctx, entry.ResponseID); err != nil {
		return nil, err
	}

	if err := s.store.ReplayDLQ(ctx, entryID); err != nil {
		// The response is already dispatched. Report the bookkeeping error.
		return entry, err
	}

	return s.store.GetDLQ(ctx, entryID)
}
