package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/xraph/formdispatch"
	"github.com/xraph/formdispatch/dlq"
	"github.com/xraph/formdispatch/form"
	"github.com/xraph/formdispatch/id"
	"github.com/xraph/formdispatch/response"
)

// The full store.Store assertion lives in the external test package.
var (
	_ response.Store = (*Store)(nil)
	_ form.Store     = (*Store)(nil)
	_ dlq.Store      = (*Store)(nil)
)

// Store keeps everything in maps behind one RWMutex. Values are copied on
// the way in and out so callers never share memory with the store.
type Store struct {
	mu sync.RWMutex

	responses map[id.ID]*response.Response
	forms     map[string]*form.Form
	dlqs      map[string]*dlq.Entry
}

func New() *Store {
	return &Store{
		responses: make(map[id.ID]*response.Response),
		forms:     make(map[string]*form.Form),
		dlqs:      make(map[string]*dlq.Entry),
	}
}

// lifecycle

func (m *Store) Migrate(_ context.Context) error { return nil }

func (m *Store) Ping(_ context.Context) error { return nil }

func (m *Store) Close() error { return nil }

// response store

// InsertResponse persists a copy of r.
func (m *Store) InsertResponse(_ context.Context, r *response.Response) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.responses[r.ID]; exists {
		return formdispatch.ErrResponseAlreadyExists
	}
	m.responses[r.ID] = copyResponse(r)
	return nil
}

func (m *Store) GetResponse(_ context.Context, responseID id.ID) (*response.Response, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.responses[responseID]
	if !ok {
		return nil, formdispatch.ErrResponseNotFound
	}
	return copyResponse(r), nil
}

// FindUnprocessed returns up to limit unprocessed responses in [lo, hi]
// ordered by ID.
func (m *Store) FindUnprocessed(_ context.Context, lo, hi id.ID, limit int) ([]*response.Response, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*response.Response
	for _, r := range m.responses {
		if !r.Processed && r.ID >= lo && r.ID <= hi {
			out = append(out, copyResponse(r))
		}
	}
	sortByID(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MarkProcessed sets the processed flag.
func (m *Store) MarkProcessed(_ context.Context, responseID id.ID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.responses[responseID]
	if !ok {
		return false, nil
	}
	r.Processed = true
	return true, nil
}

// MaxResponseID returns the greatest ID in [lo, hi].
func (m *Store) MaxResponseID(_ context.Context, lo, hi id.ID) (id.ID, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var (
		best  id.ID
		found bool
	)
	for rid := range m.responses {
		if rid >= lo && rid <= hi && (!found || rid > best) {
			best, found = rid, true
		}
	}
	return best, found, nil
}

// ListResponsesByForm returns a form's responses ordered by ID.
func (m *Store) ListResponsesByForm(_ context.Context, formID string, opts response.ListOpts) ([]*response.Response, error) {
	return m.listResponses(func(r *response.Response) bool { return r.FormID == formID }, opts), nil
}

// ListResponsesByOwner returns an owner's responses ordered by ID.
func (m *Store) ListResponsesByOwner(_ context.Context, owner string, opts response.ListOpts) ([]*response.Response, error) {
	return m.listResponses(func(r *response.Response) bool { return r.Owner == owner }, opts), nil
}

func (m *Store) listResponses(match func(*response.Response) bool, opts response.ListOpts) []*response.Response {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*response.Response
	for _, r := range m.responses {
		if match(r) {
			out = append(out, copyResponse(r))
		}
	}
	sortByID(out)
	return paginate(out, opts.Offset, opts.Limit)
}

// form store

func (m *Store) GetForm(_ context.Context, formID string) (*form.Form, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	f, ok := m.forms[formID]
	if !ok {
		return nil, formdispatch.ErrFormNotFound
	}
	cp := *f
	cp.Jobs = append(cp.Jobs[:0:0], f.Jobs...)
	return &cp, nil
}

// SaveForm creates or replaces a form.
func (m *Store) SaveForm(_ context.Context, f *form.Form) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *f
	cp.Jobs = append(cp.Jobs[:0:0], f.Jobs...)
	m.forms[f.ID] = &cp
	return nil
}

// DeleteForm removes a form. Used by tests to simulate a form deleted
// after its responses were stored.
func (m *Store) DeleteForm(_ context.Context, formID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.forms, formID)
}

// dlq store

func (m *Store) PushDLQ(_ context.Context, entry *dlq.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *entry
	m.dlqs[entry.ID.String()] = &cp
	return nil
}

func (m *Store) ListDLQ(_ context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*dlq.Entry
	for _, e := range m.dlqs {
		if opts.FormID != "" && e.FormID != opts.FormID {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].FailedAt.Before(out[j].FailedAt)
	})
	return paginate(out, opts.Offset, opts.Limit), nil
}

func (m *Store) GetDLQ(_ context.Context, entryID id.DLQID) (*dlq.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.dlqs[entryID.String()]
	if !ok {
		return nil, formdispatch.ErrDLQNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *Store) ReplayDLQ(_ context.Context, entryID id.DLQID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.dlqs[entryID.String()]
	if !ok {
		return formdispatch.ErrDLQNotFound
	}
	now := time.Now().UTC()
	e.ReplayedAt = &now
	return nil
}

func (m *Store) PurgeDLQ(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var count int64
	for k, e := range m.dlqs {
		if e.FailedAt.Before(before) {
			delete(m.dlqs, k)
			count++
		}
	}
	return count, nil
}

func (m *Store) CountDLQ(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.dlqs)), nil
}

// helpers

func copyResponse(r *response.Response) *response.Response {
	cp := *r
	cp.Answers = append(cp.Answers[:0:0], r.Answers...)
	return &cp
}

func sortByID(rs []*response.Response) {
	sort.Slice(rs, func(i, j int) bool { return rs[i].ID < rs[j].ID })
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
