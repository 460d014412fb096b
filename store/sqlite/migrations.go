package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

// migration is one versioned schema step.
type migration struct {
	Version string
	Name    string
	Stmts   []string
}

// migrations are applied in order; each version runs once.
var migrations = []migration{
	{
		Version: "20240101120000",
		Name:    "create_responses_table",
		Stmts: []string{
			`CREATE TABLE IF NOT EXISTS form_responses (
				id              INTEGER PRIMARY KEY,
				form_id         TEXT NOT NULL,
				owner           TEXT NOT NULL,
				answers         TEXT NOT NULL DEFAULT '[]',
				creation_time   TEXT NOT NULL,
				processed       INTEGER NOT NULL DEFAULT 0
			)`,
			`CREATE INDEX IF NOT EXISTS idx_form_responses_unprocessed
				ON form_responses (id)
				WHERE processed = 0`,
			`CREATE INDEX IF NOT EXISTS idx_form_responses_form
				ON form_responses (form_id, id)`,
			`CREATE INDEX IF NOT EXISTS idx_form_responses_owner
				ON form_responses (owner, id)`,
		},
	},
	{
		Version: "20240101120001",
		Name:    "create_forms_table",
		Stmts: []string{
			`CREATE TABLE IF NOT EXISTS forms (
				id              TEXT PRIMARY KEY,
				owner           TEXT NOT NULL,
				name            TEXT NOT NULL DEFAULT '',
				description     TEXT NOT NULL DEFAULT '',
				questions       TEXT,
				jobs            TEXT NOT NULL DEFAULT '[]',
				creation_time   TEXT NOT NULL,
				updated_at      TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
			)`,
			`CREATE INDEX IF NOT EXISTS idx_forms_owner ON forms (owner)`,
		},
	},
	{
		Version: "20240101120002",
		Name:    "create_dlq_table",
		Stmts: []string{
			`CREATE TABLE IF NOT EXISTS dispatch_dlq (
				id              TEXT PRIMARY KEY,
				response_id     INTEGER NOT NULL,
				form_id         TEXT NOT NULL,
				jobs            TEXT NOT NULL DEFAULT '[]',
				error           TEXT NOT NULL,
				attempts        INTEGER NOT NULL,
				failed_at       TEXT NOT NULL,
				replayed_at     TEXT
			)`,
			`CREATE INDEX IF NOT EXISTS idx_dispatch_dlq_form
				ON dispatch_dlq (form_id, failed_at)`,
			`CREATE INDEX IF NOT EXISTS idx_dispatch_dlq_failed
				ON dispatch_dlq (failed_at)`,
		},
	},
}

// runMigrations applies every migration not yet recorded in
// formdispatch_migrations, one transaction per version.
func runMigrations(ctx context.Context, db *sql.DB) (applied []string, err error) {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS formdispatch_migrations (
			version     TEXT PRIMARY KEY,
			name        TEXT NOT NULL,
			applied_at  TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
		)`); err != nil {
		return nil, fmt.Errorf("create migrations table: %w", err)
	}

	for _, m := range migrations {
		var n int
		if err := db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM formdispatch_migrations WHERE version = ?`, m.Version,
		).Scan(&n); err != nil {
			return applied, fmt.Errorf("check %s: %w", m.Version, err)
		}
		if n > 0 {
			continue
		}

		if err := applyMigration(ctx, db, m); err != nil {
			return applied, fmt.Errorf("%s_%s: %w", m.Version, m.Name, err)
		}
		applied = append(applied, m.Version+"_"+m.Name)
	}
	return applied, nil
}

func applyMigration(ctx context.Context, db *sql.DB, m migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range m.Stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO formdispatch_migrations (version, name) VALUES (?, ?)`, m.Version, m.Name,
	); err != nil {
		return err
	}
	return tx.Commit()
}
