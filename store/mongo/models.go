package mongo

import (
	"encoding/json"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/xraph/formdispatch/dlq"
	"github.com/xraph/formdispatch/form"
	"github.com/xraph/formdispatch/id"
	"github.com/xraph/formdispatch/job"
	"github.com/xraph/formdispatch/response"
)

// ── Response model ────────────────────────────────────────────────

type responseModel struct {
	ID           int64  `bson:"_id"`
	FormID       string `bson:"formId"`
	Owner        string `bson:"owner"`
	Answers      bson.A `bson:"answers"`
	CreationTime string `bson:"creationTime"`
	Processed    bool   `bson:"processed"`
}

func toResponseModel(r *response.Response) *responseModel {
	return &responseModel{
		ID:           r.ID.Int64(),
		FormID:       r.FormID,
		Owner:        r.Owner,
		Answers:      bson.A(r.Answers),
		CreationTime: r.CreationTime.UTC().Format(time.RFC3339Nano),
		Processed:    r.Processed,
	}
}

func fromResponseModel(m *responseModel) (*response.Response, error) {
	created, err := time.Parse(time.RFC3339Nano, m.CreationTime)
	if err != nil {
		return nil, fmt.Errorf("formdispatch/mongo: parse creationTime of %d: %w", m.ID, err)
	}

	answers := make([]any, len(m.Answers))
	for i, v := range m.Answers {
		answers[i] = normalize(v)
	}

	return &response.Response{
		ID:           id.ID(uint64(m.ID)),
		FormID:       m.FormID,
		Owner:        m.Owner,
		Answers:      answers,
		CreationTime: created,
		Processed:    m.Processed,
	}, nil
}

// ── Form model ────────────────────────────────────────────────────

type jobSpecModel struct {
	Name   string `bson:"name"`
	Params any    `bson:"params,omitempty"`
}

type formModel struct {
	ID           string         `bson:"_id"`
	Owner        string         `bson:"owner"`
	Name         string         `bson:"name"`
	Description  string         `bson:"description,omitempty"`
	Questions    any            `bson:"questions"`
	Jobs         []jobSpecModel `bson:"jobs"`
	CreationTime string         `bson:"creationTime"`
}

func toFormModel(f *form.Form) (*formModel, error) {
	questions, err := fromJSON(f.Questions)
	if err != nil {
		return nil, fmt.Errorf("formdispatch/mongo: form %s questions: %w", f.ID, err)
	}

	jobs := make([]jobSpecModel, len(f.Jobs))
	for i, j := range f.Jobs {
		params, err := fromJSON(j.Params)
		if err != nil {
			return nil, fmt.Errorf("formdispatch/mongo: form %s job %s params: %w", f.ID, j.Name, err)
		}
		jobs[i] = jobSpecModel{Name: j.Name, Params: params}
	}

	return &formModel{
		ID:           f.ID,
		Owner:        f.Owner,
		Name:         f.Name,
		Description:  f.Description,
		Questions:    questions,
		Jobs:         jobs,
		CreationTime: f.CreationTime.UTC().Format(time.RFC3339Nano),
	}, nil
}

func fromFormModel(m *formModel) (*form.Form, error) {
	questions, err := toJSON(m.Questions)
	if err != nil {
		return nil, fmt.Errorf("formdispatch/mongo: form %s questions: %w", m.ID, err)
	}

	jobs := make([]job.Spec, len(m.Jobs))
	for i, j := range m.Jobs {
		params, err := toJSON(j.Params)
		if err != nil {
			return nil, fmt.Errorf("formdispatch/mongo: form %s job %s params: %w", m.ID, j.Name, err)
		}
		jobs[i] = job.Spec{Name: j.Name, Params: params}
	}

	f := &form.Form{
		ID:          m.ID,
		Owner:       m.Owner,
		Name:        m.Name,
		Description: m.Description,
		Questions:   questions,
		Jobs:        jobs,
	}
	if m.CreationTime != "" {
		if f.CreationTime, err = time.Parse(time.RFC3339Nano, m.CreationTime); err != nil {
			return nil, fmt.Errorf("formdispatch/mongo: form %s creationTime: %w", m.ID, err)
		}
	}
	return f, nil
}

// ── DLQ model ─────────────────────────────────────────────────────

type dlqEntryModel struct {
	ID         string     `bson:"_id"`
	ResponseID int64      `bson:"response_id"`
	FormID     string     `bson:"form_id"`
	Jobs       []string   `bson:"jobs"`
	Error      string     `bson:"error"`
	Attempts   int        `bson:"attempts"`
	FailedAt   time.Time  `bson:"failed_at"`
	ReplayedAt *time.Time `bson:"replayed_at,omitempty"`
}

func toDLQModel(e *dlq.Entry) *dlqEntryModel {
	return &dlqEntryModel{
		ID:         e.ID.String(),
		ResponseID: e.ResponseID.Int64(),
		FormID:     e.FormID,
		Jobs:       e.Jobs,
		Error:      e.Error,
		Attempts:   e.Attempts,
		FailedAt:   e.FailedAt,
		ReplayedAt: e.ReplayedAt,
	}
}

func fromDLQModel(m *dlqEntryModel) (*dlq.Entry, error) {
	entryID, err := id.ParseDLQID(m.ID)
	if err != nil {
		return nil, err
	}
	e := &dlq.Entry{
		ID:         entryID,
		ResponseID: id.ID(uint64(m.ResponseID)),
		FormID:     m.FormID,
		Jobs:       m.Jobs,
		Error:      m.Error,
		Attempts:   m.Attempts,
		FailedAt:   m.FailedAt.UTC(),
	}
	if m.ReplayedAt != nil {
		t := m.ReplayedAt.UTC()
		e.ReplayedAt = &t
	}
	return e, nil
}

// ── value conversion ──────────────────────────────────────────────

// normalize turns driver-decoded documents into plain maps and slices so
// they serialize to the same JSON they were stored from.
func normalize(v any) any {
	switch t := v.(type) {
	case bson.D:
		m := make(map[string]any, len(t))
		for _, e := range t {
			m[e.Key] = normalize(e.Value)
		}
		return m
	case bson.M:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[k] = normalize(e)
		}
		return m
	case bson.A:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalize(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalize(e)
		}
		return out
	case bson.DateTime:
		return t.Time().UTC()
	default:
		return v
	}
}

func fromJSON(raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func toJSON(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(normalize(v))
}
