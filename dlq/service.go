package dlq

import (
	"context"
	"time"

	"github.com/xraph/formdispatch/id"
	"github.com/xraph/formdispatch/response"
)

// Service provides high-level DLQ operations over a Store.
type Service struct {
	store        Store
	redispatcher Redispatcher
}

// NewService creates a DLQ service. redispatcher may be nil, in which case
// Replay is unavailable.
func NewService(store Store, redispatcher Redispatcher) *Service {
	return &Service{store: store, redispatcher: redispatcher}
}

// Push builds a DLQ Entry from a failed dispatch and persists it.
func (s *Service) Push(ctx context.Context, r *response.Response, jobs []string, attempts int, dispatchErr error) (*Entry, error) {
	entry := &Entry{
		ID:         id.NewDLQID(),
		ResponseID: r.ID,
		FormID:     r.FormID,
		Jobs:       append([]string(nil), jobs...),
		Error:      dispatchErr.Error(),
		Attempts:   attempts,
		FailedAt:   time.Now().UTC(),
	}
	if err := s.store.PushDLQ(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// DLQStore returns the underlying DLQ store for direct access
// to List, Get, Purge, and Count operations.
func (s *Service) DLQStore() Store {
	return s.store
}
