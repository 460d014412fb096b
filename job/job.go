package job

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/xraph/formdispatch/id"
)

// Spec is one job declared on a form.
type Spec struct {
	Name   string          `json:"name"   bson:"name"`
	Params json.RawMessage `json:"params,omitempty" bson:"params,omitempty"`
}

// RunObject is the payload handed to a job queue. Form and Response are
// serialized at construction so later changes to the source values do not
// leak into an attempt already built.
type RunObject struct {
	ID        string          `json:"id"`
	Job       Spec            `json:"job"`
	QueueTime time.Time       `json:"queueTime"`
	Form      json.RawMessage `json:"form"`
	Response  json.RawMessage `json:"response"`

	// ResponseID is the identity the run was derived from.
	ResponseID id.ID `json:"-"`
}

// RunID returns the idempotency key for a (response, job) pair.
func RunID(responseID id.ID, jobName string) string {
	return responseID.String() + ":" + jobName
}

// NewRunObject snapshots form and response for one job. Two calls with the
// same inputs produce identical content apart from QueueTime.
func NewRunObject(responseID id.ID, spec Spec, form, response any, queueTime time.Time) (*RunObject, error) {
	formData, err := json.Marshal(form)
	if err != nil {
		return nil, fmt.Errorf("job: snapshot form for %q: %w", spec.Name, err)
	}
	respData, err := json.Marshal(response)
	if err != nil {
		return nil, fmt.Errorf("job: snapshot response %s: %w", responseID, err)
	}

	return &RunObject{
		ID:         RunID(responseID, spec.Name),
		Job:        spec,
		QueueTime:  queueTime.UTC(),
		Form:       formData,
		Response:   respData,
		ResponseID: responseID,
	}, nil
}

// Name returns the job name the run targets.
func (r *RunObject) Name() string { return r.Job.Name }
