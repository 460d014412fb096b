package dlq

import (
	"context"
	"time"

	"github.com/xraph/formdispatch/id"
)

// ListOpts pages through dead-lettered responses.
type ListOpts struct {
	Limit  int    // 0 returns everything
	Offset int
	FormID string // "" matches every form
}

// Store persists dead-lettered dispatches. Every store.Store backend
// implements it next to its response and form collections.
type Store interface {
	PushDLQ(ctx context.Context, entry *Entry) error

	// ListDLQ orders entries by FailedAt, oldest first.
	ListDLQ(ctx context.Context, opts ListOpts) ([]*Entry, error)

	// GetDLQ returns formdispatch.ErrDLQNotFound for an unknown ID.
	GetDLQ(ctx context.Context, entryID id.DLQID) (*Entry, error)

	// ReplayDLQ only stamps ReplayedAt; Service.Replay does the redispatch.
	ReplayDLQ(ctx context.Context, entryID id.DLQID) error

	// PurgeDLQ deletes entries that failed before the cutoff and reports
	// how many went.
	PurgeDLQ(ctx context.Context, before time.Time) (int64, error)

	CountDLQ(ctx context.Context) (int64, error)
}
