package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/xraph/formdispatch"
	"github.com/xraph/formdispatch/dlq"
	"github.com/xraph/formdispatch/id"
)

const dlqColumns = `id, response_id, form_id, jobs, error, attempts, failed_at, replayed_at`

// PushDLQ adds a failed dispatch entry to the dead letter queue.
func (s *Store) PushDLQ(ctx context.Context, entry *dlq.Entry) error {
	jobs, err := json.Marshal(entry.Jobs)
	if err != nil {
		return fmt.Errorf("formdispatch/sqlite: encode dlq jobs: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO dispatch_dlq (`+dlqColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID.String(), entry.ResponseID.Int64(), entry.FormID, string(jobs),
		entry.Error, entry.Attempts, formatTime(entry.FailedAt), formatNullTime(entry.ReplayedAt),
	)
	if err != nil {
		return fmt.Errorf("formdispatch/sqlite: push dlq: %w", err)
	}
	return nil
}

// ListDLQ returns DLQ entries matching the given options, oldest first.
func (s *Store) ListDLQ(ctx context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	query := `SELECT ` + dlqColumns + ` FROM dispatch_dlq WHERE 1=1`
	var args []any

	if opts.FormID != "" {
		query += " AND form_id = ?"
		args = append(args, opts.FormID)
	}
	query += " ORDER BY failed_at ASC, id ASC"
	query, args = limitOffset(query, args, opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("formdispatch/sqlite: list dlq: %w", err)
	}
	defer rows.Close()

	var entries []*dlq.Entry
	for rows.Next() {
		e, scanErr := scanDLQ(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("formdispatch/sqlite: scan dlq row: %w", scanErr)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("formdispatch/sqlite: iterate dlq rows: %w", err)
	}
	return entries, nil
}

// GetDLQ retrieves a DLQ entry by ID.
func (s *Store) GetDLQ(ctx context.Context, entryID id.DLQID) (*dlq.Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+dlqColumns+` FROM dispatch_dlq WHERE id = ?`, entryID.String())
	e, err := scanDLQ(row)
	if err != nil {
		if isNoRows(err) {
			return nil, formdispatch.ErrDLQNotFound
		}
		return nil, fmt.Errorf("formdispatch/sqlite: get dlq: %w", err)
	}
	return e, nil
}

// ReplayDLQ marks a DLQ entry as replayed.
func (s *Store) ReplayDLQ(ctx context.Context, entryID id.DLQID) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE dispatch_dlq SET replayed_at = ? WHERE id = ?`,
		formatTime(time.Now()), entryID.String(),
	)
	if err != nil {
		return fmt.Errorf("formdispatch/sqlite: replay dlq: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("formdispatch/sqlite: replay dlq: %w", err)
	}
	if n == 0 {
		return formdispatch.ErrDLQNotFound
	}
	return nil
}

// PurgeDLQ removes DLQ entries with FailedAt before the given time.
func (s *Store) PurgeDLQ(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM dispatch_dlq WHERE failed_at < ?`, formatTime(before))
	if err != nil {
		return 0, fmt.Errorf("formdispatch/sqlite: purge dlq: %w", err)
	}
	return res.RowsAffected()
}

// CountDLQ returns the total number of entries in the dead letter queue.
func (s *Store) CountDLQ(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM dispatch_dlq`).Scan(&count); err != nil {
		return 0, fmt.Errorf("formdispatch/sqlite: count dlq: %w", err)
	}
	return count, nil
}

func scanDLQ(row rowScanner) (*dlq.Entry, error) {
	var (
		e          dlq.Entry
		entryID    string
		responseID int64
		jobs       string
		failedAt   string
		replayedAt sql.NullString
	)
	if err := row.Scan(&entryID, &responseID, &e.FormID, &jobs,
		&e.Error, &e.Attempts, &failedAt, &replayedAt); err != nil {
		return nil, err
	}
	parsed, err := id.ParseDLQID(entryID)
	if err != nil {
		return nil, err
	}
	e.ID = parsed
	e.ResponseID = id.ID(responseID) //nolint:gosec // stored ids are non-negative

	if err := json.Unmarshal([]byte(jobs), &e.Jobs); err != nil {
		return nil, fmt.Errorf("decode jobs of %s: %w", e.ID, err)
	}
	t, err := parseTime(failedAt)
	if err != nil {
		return nil, fmt.Errorf("parse failed_at of %s: %w", e.ID, err)
	}
	e.FailedAt = t
	if replayedAt.Valid {
		rt, err := parseTime(replayedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse replayed_at of %s: %w", e.ID, err)
		}
		e.ReplayedAt = &rt
	}
	return &e, nil
}
