package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/formdispatch"
	"github.com/xraph/formdispatch/id"
	"github.com/xraph/formdispatch/response"
)

const responseColumns = `id, form_id, owner, answers, creation_time, processed`

// InsertResponse persists a new response.
func (s *Store) InsertResponse(ctx context.Context, r *response.Response) error {
	answers, err := json.Marshal(r.Answers)
	if err != nil {
		return fmt.Errorf("formdispatch/postgres: encode answers: %w", err)
	}
	if r.Answers == nil {
		answers = []byte("[]")
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO form_responses (`+responseColumns+`)
		VALUES ($1, $2, $3, $4::jsonb, $5, $6)`,
		r.ID.Int64(), r.FormID, r.Owner, string(answers), r.CreationTime, r.Processed,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return formdispatch.ErrResponseAlreadyExists
		}
		return fmt.Errorf("formdispatch/postgres: insert response: %w", err)
	}
	return nil
}

// GetResponse retrieves a response by ID.
func (s *Store) GetResponse(ctx context.Context, responseID id.ID) (*response.Response, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+responseColumns+` FROM form_responses WHERE id = $1`,
		responseID.Int64(),
	)
	r, err := scanResponse(row)
	if err != nil {
		if isNoRows(err) {
			return nil, formdispatch.ErrResponseNotFound
		}
		return nil, fmt.Errorf("formdispatch/postgres: get response: %w", err)
	}
	return r, nil
}

// FindUnprocessed returns up to limit unprocessed responses in [lo, hi]
// ordered by ID. Served by the partial index on unprocessed rows.
func (s *Store) FindUnprocessed(ctx context.Context, lo, hi id.ID, limit int) ([]*response.Response, error) {
	query, args := limitOffset(`
		SELECT `+responseColumns+`
		FROM form_responses
		WHERE NOT processed AND id BETWEEN $1 AND $2
		ORDER BY id ASC`,
		[]any{lo.Int64(), hi.Int64()}, limit, 0)
	return s.queryResponses(ctx, "find unprocessed", query, args...)
}

// MarkProcessed sets the processed flag. The update matches already
// processed rows too, so a repeat reports true.
func (s *Store) MarkProcessed(ctx context.Context, responseID id.ID) (bool, error) {
	var processed bool
	err := s.pool.QueryRow(ctx,
		`UPDATE form_responses SET processed = TRUE WHERE id = $1 RETURNING processed`,
		responseID.Int64(),
	).Scan(&processed)
	if err != nil {
		if isNoRows(err) {
			return false, nil
		}
		return false, fmt.Errorf("formdispatch/postgres: mark processed: %w", err)
	}
	return processed, nil
}

// MaxResponseID returns the greatest stored ID in [lo, hi].
func (s *Store) MaxResponseID(ctx context.Context, lo, hi id.ID) (id.ID, bool, error) {
	var maxID *int64
	err := s.pool.QueryRow(ctx,
		`SELECT MAX(id) FROM form_responses WHERE id BETWEEN $1 AND $2`,
		lo.Int64(), hi.Int64(),
	).Scan(&maxID)
	if err != nil {
		return id.Nil, false, fmt.Errorf("formdispatch/postgres: max response id: %w", err)
	}
	if maxID == nil {
		return id.Nil, false, nil
	}
	return id.ID(*maxID), true, nil //nolint:gosec // stored ids are non-negative
}

// ListResponsesByForm returns a form's responses ordered by ID.
func (s *Store) ListResponsesByForm(ctx context.Context, formID string, opts response.ListOpts) ([]*response.Response, error) {
	query, args := limitOffset(
		`SELECT `+responseColumns+` FROM form_responses WHERE form_id = $1 ORDER BY id ASC`,
		[]any{formID}, opts.Limit, opts.Offset)
	return s.queryResponses(ctx, "list responses by form", query, args...)
}

// ListResponsesByOwner returns an owner's responses ordered by ID.
func (s *Store) ListResponsesByOwner(ctx context.Context, owner string, opts response.ListOpts) ([]*response.Response, error) {
	query, args := limitOffset(
		`SELECT `+responseColumns+` FROM form_responses WHERE owner = $1 ORDER BY id ASC`,
		[]any{owner}, opts.Limit, opts.Offset)
	return s.queryResponses(ctx, "list responses by owner", query, args...)
}

func (s *Store) queryResponses(ctx context.Context, op, query string, args ...any) ([]*response.Response, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("formdispatch/postgres: %s: %w", op, err)
	}
	defer rows.Close()

	var out []*response.Response
	for rows.Next() {
		r, scanErr := scanResponse(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("formdispatch/postgres: %s: scan: %w", op, scanErr)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("formdispatch/postgres: %s: iterate: %w", op, err)
	}
	return out, nil
}

// scanResponse scans a single response row.
func scanResponse(row pgx.Row) (*response.Response, error) {
	var (
		r       response.Response
		rawID   int64
		answers []byte
		created time.Time
	)
	if err := row.Scan(&rawID, &r.FormID, &r.Owner, &answers, &created, &r.Processed); err != nil {
		return nil, err
	}
	r.ID = id.ID(rawID) //nolint:gosec // stored ids are non-negative
	r.CreationTime = created.UTC()
	if err := json.Unmarshal(answers, &r.Answers); err != nil {
		return nil, fmt.Errorf("decode answers of %s: %w", r.ID, err)
	}
	return &r, nil
}
