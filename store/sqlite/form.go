package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/xraph/formdispatch"
	"github.com/xraph/formdispatch/form"
	"github.com/xraph/formdispatch/job"
)

// GetForm retrieves a form by ID.
func (s *Store) GetForm(ctx context.Context, formID string) (*form.Form, error) {
	var (
		f         form.Form
		questions sql.NullString
		jobs      string
		created   string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, owner, name, description, questions, jobs, creation_time
		FROM forms WHERE id = ?`, formID,
	).Scan(&f.ID, &f.Owner, &f.Name, &f.Description, &questions, &jobs, &created)
	if err != nil {
		if isNoRows(err) {
			return nil, formdispatch.ErrFormNotFound
		}
		return nil, fmt.Errorf("formdispatch/sqlite: get form: %w", err)
	}

	if f.CreationTime, err = parseTime(created); err != nil {
		return nil, fmt.Errorf("formdispatch/sqlite: parse creation time of form %s: %w", formID, err)
	}
	if questions.Valid {
		f.Questions = json.RawMessage(questions.String)
	}
	if err := json.Unmarshal([]byte(jobs), &f.Jobs); err != nil {
		return nil, fmt.Errorf("formdispatch/sqlite: decode jobs of form %s: %w", formID, err)
	}
	return &f, nil
}

// SaveForm creates or replaces a form.
func (s *Store) SaveForm(ctx context.Context, f *form.Form) error {
	specs := f.Jobs
	if specs == nil {
		specs = []job.Spec{}
	}
	jobs, err := json.Marshal(specs)
	if err != nil {
		return fmt.Errorf("formdispatch/sqlite: encode jobs: %w", err)
	}

	created := f.CreationTime
	if created.IsZero() {
		created = time.Now()
	}
	var questions sql.NullString
	if len(f.Questions) > 0 {
		questions = sql.NullString{String: string(f.Questions), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO forms (id, owner, name, description, questions, jobs, creation_time, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			owner = excluded.owner,
			name = excluded.name,
			description = excluded.description,
			questions = excluded.questions,
			jobs = excluded.jobs,
			updated_at = excluded.updated_at`,
		f.ID, f.Owner, f.Name, f.Description, questions, string(jobs),
		formatTime(created), formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("formdispatch/sqlite: save form: %w", err)
	}
	return nil
}
