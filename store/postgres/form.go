package postgres

import (
	"context"
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
		questions []byte
		jobs      []byte
		created   time.Time
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, owner, name, description, questions, jobs, creation_time
		FROM forms WHERE id = $1`,
		formID,
	).Scan(&f.ID, &f.Owner, &f.Name, &f.Description, &questions, &jobs, &created)
	if err != nil {
		if isNoRows(err) {
			return nil, formdispatch.ErrFormNotFound
		}
		return nil, fmt.Errorf("formdispatch/postgres: get form: %w", err)
	}

	f.CreationTime = created.UTC()
	if len(questions) > 0 {
		f.Questions = json.RawMessage(questions)
	}
	if err := json.Unmarshal(jobs, &f.Jobs); err != nil {
		return nil, fmt.Errorf("formdispatch/postgres: decode jobs of form %s: %w", formID, err)
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
		return fmt.Errorf("formdispatch/postgres: encode jobs: %w", err)
	}

	created := f.CreationTime
	if created.IsZero() {
		created = time.Now().UTC()
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO forms (id, owner, name, description, questions, jobs, creation_time, updated_at)
		VALUES ($1, $2, $3, $4, $5::jsonb, $6::jsonb, $7, NOW())
		ON CONFLICT (id) DO UPDATE SET
			owner = EXCLUDED.owner,
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			questions = EXCLUDED.questions,
			jobs = EXCLUDED.jobs,
			updated_at = NOW()`,
		f.ID, f.Owner, f.Name, f.Description, nullableJSON(f.Questions), string(jobs), created,
	)
	if err != nil {
		return fmt.Errorf("formdispatch/postgres: save form: %w", err)
	}
	return nil
}
