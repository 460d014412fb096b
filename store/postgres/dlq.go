package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/xraph/formdispatch"
	"github.com/xraph/formdispatch/dlq"
	"github.com/xraph/formdispatch/id"
)

const dlqColumns = `id, response_id, form_id, jobs, error, attempts, failed_at, replayed_at`

func (s *Store) PushDLQ(ctx context.Context, entry *dlq.Entry) error {
	jobs := entry.Jobs
	if jobs == nil {
		jobs = []string{} // jobs is NOT NULL
	}
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO dispatch_dlq (`+dlqColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.ID.String(), entry.ResponseID.Int64(), entry.FormID, jobs,
		entry.Error, entry.Attempts, entry.FailedAt, entry.ReplayedAt,
	); err != nil {
		return fmt.Errorf("formdispatch/postgres: push dlq: %w", err)
	}
	return nil
}

func (s *Store) ListDLQ(ctx context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	query, args := limitOffset(
		`SELECT `+dlqColumns+` FROM dispatch_dlq
		WHERE $1::text = '' OR form_id = $1
		ORDER BY failed_at, id`,
		[]any{opts.FormID}, opts.Limit, opts.Offset,
	)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("formdispatch/postgres: list dlq: %w", err)
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*dlq.Entry, error) {
		return scanDLQ(row)
	})
	if err != nil {
		return nil, fmt.Errorf("formdispatch/postgres: list dlq: %w", err)
	}
	return entries, nil
}

func (s *Store) GetDLQ(ctx context.Context, entryID id.DLQID) (*dlq.Entry, error) {
	e, err := scanDLQ(s.pool.QueryRow(ctx,
		`SELECT `+dlqColumns+` FROM dispatch_dlq WHERE id = $1`, entryID.String()))
	switch {
	case isNoRows(err):
		return nil, formdispatch.ErrDLQNotFound
	case err != nil:
		return nil, fmt.Errorf("formdispatch/postgres: get dlq %s: %w", entryID, err)
	}
	return e, nil
}

func (s *Store) ReplayDLQ(ctx context.Context, entryID id.DLQID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE dispatch_dlq SET replayed_at = now() WHERE id = $1`, entryID.String())
	if err != nil {
		return fmt.Errorf("formdispatch/postgres: replay dlq %s: %w", entryID, err)
	}
	if tag.RowsAffected() == 0 {
		return formdispatch.ErrDLQNotFound
	}
	return nil
}

func (s *Store) PurgeDLQ(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM dispatch_dlq WHERE failed_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("formdispatch/postgres: purge dlq: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) CountDLQ(ctx context.Context) (n int64, err error) {
	if err = s.pool.QueryRow(ctx, `SELECT count(*) FROM dispatch_dlq`).Scan(&n); err != nil {
		return 0, fmt.Errorf("formdispatch/postgres: count dlq: %w", err)
	}
	return n, nil
}

func scanDLQ(row pgx.Row) (*dlq.Entry, error) {
	var (
		e   dlq.Entry
		eid string
		rid int64
	)
	if err := row.Scan(&eid, &rid, &e.FormID, &e.Jobs,
		&e.Error, &e.Attempts, &e.FailedAt, &e.ReplayedAt); err != nil {
		return nil, err
	}
	parsed, err := id.ParseDLQID(eid)
	if err != nil {
		return nil, err
	}
	e.ID = parsed
	e.ResponseID = id.ID(rid) //nolint:gosec // stored ids are non-negative
	e.FailedAt = e.FailedAt.UTC()
	return &e, nil
}
