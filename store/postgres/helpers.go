package postgres

import (
	"encoding/json"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// isNoRows returns true when err indicates no rows were found.
func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// isDuplicateKey checks if a PostgreSQL error is a unique_violation (23505).
func isDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// nullableJSON maps an empty document to SQL NULL.
func nullableJSON(raw json.RawMessage) *string {
	if len(raw) == 0 {
		return nil
	}
	s := string(raw)
	return &s
}

// limitOffset appends LIMIT/OFFSET clauses numbered from argIdx.
func limitOffset(query string, args []any, limit, offset int) (string, []any) {
	argIdx := len(args) + 1
	if limit > 0 {
		query += " LIMIT $" + strconv.Itoa(argIdx)
		args = append(args, limit)
		argIdx++
	}
	if offset > 0 {
		query += " OFFSET $" + strconv.Itoa(argIdx)
		args = append(args, offset)
	}
	return query, args
}
