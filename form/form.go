// Package form defines the form a response answers. Forms are owned by an
// external collaborator; this package only reads them, resolves their job
// lists at dispatch time, and validates submitted answers.
package form

import (
	"context"
	"encoding/json"
	"time"

	"github.com/xraph/formdispatch/job"
)

// Form is a survey definition. Questions are opaque to the dispatch
// pipeline; only an AnswerChecker interprets them.
type Form struct {
	ID           string          `json:"id"`
	Owner        string          `json:"owner"`
	Name         string          `json:"name"`
	Description  string          `json:"description,omitempty"`
	Questions    json.RawMessage `json:"questions"`
	Jobs         []job.Spec      `json:"jobs"`
	CreationTime time.Time       `json:"creationTime"`
}

// Store defines the persistence contract for forms.
type Store interface {
	// GetForm retrieves a form by ID. Returns formdispatch.ErrFormNotFound
	// when it does not exist.
	GetForm(ctx context.Context, formID string) (*Form, error)

	// SaveForm creates or replaces a form.
	SaveForm(ctx context.Context, f *Form) error
}

// JobNames returns the names of the form's jobs in declaration order.
func (f *Form) JobNames() []string {
	names := make([]string, len(f.Jobs))
	for i, j := range f.Jobs {
		names[i] = j.Name
	}
	return names
}
