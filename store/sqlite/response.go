package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/xraph/formdispatch"
	"github.com/xraph/formdispatch/id"
	"github.com/xraph/formdispatch/response"
)

const responseColumns = `id, form_id, owner, answers, creation_time, processed`

// InsertResponse persists a new response.
func (s *Store) InsertResponse(ctx context.Context, r *response.Response) error {
	answers := []byte("[]")
	if r.Answers != nil {
		var err error
		if answers, err = json.Marshal(r.Answers); err != nil {
			return fmt.Errorf("formdispatch/sqlite: encode answers: %w", err)
		}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO form_responses (`+responseColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID.Int64(), r.FormID, r.Owner, string(answers), formatTime(r.CreationTime), r.Processed,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return formdispatch.ErrResponseAlreadyExists
		}
		return fmt.Errorf("formdispatch/sqlite: insert response: %w", err)
	}
	return nil
}

// GetResponse retrieves a response by ID.
func (s *Store) GetResponse(ctx context.Context, responseID id.ID) (*response.Response, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+responseColumns+` FROM form_responses WHERE id = ?`, responseID.Int64())
	r, err := scanResponse(row)
	if err != nil {
		if isNoRows(err) {
			return nil, formdispatch.ErrResponseNotFound
		}
		return nil, fmt.Errorf("formdispatch/sqlite: get response: %w", err)
	}
	return r, nil
}

// FindUnprocessed returns up to limit unprocessed responses in [lo, hi]
// ordered by ID.
func (s *Store) FindUnprocessed(ctx context.Context, lo, hi id.ID, limit int) ([]*response.Response, error) {
	query, args := limitOffset(
		`SELECT `+responseColumns+` FROM form_responses
		WHERE processed = 0 AND id BETWEEN ? AND ?
		ORDER BY id ASC`,
		[]any{lo.Int64(), hi.Int64()}, limit, 0)
	return s.queryResponses(ctx, "find unprocessed", query, args...)
}

// MarkProcessed sets the processed flag. SQLite counts matched rows as
// changed, so a repeat on a processed row still reports true.
func (s *Store) MarkProcessed(ctx context.Context, responseID id.ID) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE form_responses SET processed = 1 WHERE id = ?`, responseID.Int64())
	if err != nil {
		return false, fmt.Errorf("formdispatch/sqlite: mark processed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("formdispatch/sqlite: mark processed: %w", err)
	}
	return n > 0, nil
}

// MaxResponseID returns the greatest stored ID in [lo, hi].
func (s *Store) MaxResponseID(ctx context.Context, lo, hi id.ID) (id.ID, bool, error) {
	var maxID sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(id) FROM form_responses WHERE id BETWEEN ? AND ?`,
		lo.Int64(), hi.Int64(),
	).Scan(&maxID)
	if err != nil {
		return id.Nil, false, fmt.Errorf("formdispatch/sqlite: max response id: %w", err)
	}
	if !maxID.Valid {
		return id.Nil, false, nil
	}
	return id.ID(maxID.Int64), true, nil //nolint:gosec // stored ids are non-negative
}

// ListResponsesByForm returns a form's responses ordered by ID.
func (s *Store) ListResponsesByForm(ctx context.Context, formID string, opts response.ListOpts) ([]*response.Response, error) {
	query, args := limitOffset(
		`SELECT `+responseColumns+` FROM form_responses WHERE form_id = ? ORDER BY id ASC`,
		[]any{formID}, opts.Limit, opts.Offset)
	return s.queryResponses(ctx, "list responses by form", query, args...)
}

// ListResponsesByOwner returns an owner's responses ordered by ID.
func (s *Store) ListResponsesByOwner(ctx context.Context, owner string, opts response.ListOpts) ([]*response.Response, error) {
	query, args := limitOffset(
		`SELECT `+responseColumns+` FROM form_responses WHERE owner = ? ORDER BY id ASC`,
		[]any{owner}, opts.Limit, opts.Offset)
	return s.queryResponses(ctx, "list responses by owner", query, args...)
}

func (s *Store) queryResponses(ctx context.Context, op, query string, args ...any) ([]*response.Response, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("formdispatch/sqlite: %s: %w", op, err)
	}
	defer rows.Close()

	var out []*response.Response
	for rows.Next() {
		r, scanErr := scanResponse(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("formdispatch/sqlite: %s: scan: %w", op, scanErr)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("formdispatch/sqlite: %s: iterate: %w", op, err)
	}
	return out, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanResponse(row rowScanner) (*response.Response, error) {
	var (
		r       response.Response
		rawID   int64
		answers string
		created string
	)
	if err := row.Scan(&rawID, &r.FormID, &r.Owner, &answers, &created, &r.Processed); err != nil {
		return nil, err
	}
	r.ID = id.ID(rawID) //nolint:gosec // stored ids are non-negative

	t, err := parseTime(created)
	if err != nil {
		return nil, fmt.Errorf("parse creation time of %s: %w", r.ID, err)
	}
	r.CreationTime = t
	if err := json.Unmarshal([]byte(answers), &r.Answers); err != nil {
		return nil, fmt.Errorf("decode answers of %s: %w", r.ID, err)
	}
	return &r, nil
}
