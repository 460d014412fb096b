// Package response defines stored form responses, their persistence
// contract, and the service that assigns identities and tracks the
// processed flag.
//
// A response is inserted with Processed false. The flag flips to true only
// after every known job of its form has been accepted by a queue, and it
// never flips back. Anything still unprocessed at boot is picked up by the
// recovery scan.
package response

import (
	"context"
	"time"

	"github.com/xraph/formdispatch/id"
)

// Response is one submitted answer set.
type Response struct {
	ID           id.ID     `json:"id"`
	FormID       string    `json:"formId"`
	Owner        string    `json:"owner"`
	Answers      []any     `json:"answers"`
	CreationTime time.Time `json:"creationTime"`

	// Processed is internal bookkeeping and is never exposed to queues or
	// API clients.
	Processed bool `json:"-"`
}

// ListOpts controls pagination for response list queries.
type ListOpts struct {
	// Limit is the maximum number of responses to return. Zero means no limit.
	Limit int
	// Offset is the number of responses to skip.
	Offset int
}

// Store defines the persistence contract for responses. Each call is a
// single storage attempt; retry policy lives in the callers.
type Store interface {
	// InsertResponse persists a new response. Returns
	// formdispatch.ErrResponseAlreadyExists when the ID is taken.
	InsertResponse(ctx context.Context, r *Response) error

	// GetResponse retrieves a response by ID. Returns
	// formdispatch.ErrResponseNotFound when it does not exist.
	GetResponse(ctx context.Context, responseID id.ID) (*Response, error)

	// FindUnprocessed returns up to limit unprocessed responses with
	// lo <= ID <= hi, ordered by ID ascending.
	FindUnprocessed(ctx context.Context, lo, hi id.ID, limit int) ([]*Response, error)

	// MarkProcessed sets the processed flag. It reports true when the
	// response exists and is processed after the call, including when it
	// already was.
	MarkProcessed(ctx context.Context, responseID id.ID) (bool, error)

	// MaxResponseID returns the greatest stored ID in [lo, hi]. ok is false
	// when the range is empty.
	MaxResponseID(ctx context.Context, lo, hi id.ID) (max id.ID, ok bool, err error)

	// ListResponsesByForm returns a form's responses ordered by ID.
	ListResponsesByForm(ctx context.Context, formID string, opts ListOpts) ([]*Response, error)

	// ListResponsesByOwner returns an owner's responses ordered by ID.
	ListResponsesByOwner(ctx context.Context, owner string, opts ListOpts) ([]*Response, error)
}
