package dlq

import (
	"time"

	"github.com/xraph/formdispatch/id"
)

// Entry represents a response whose dispatch exhausted its retries.
type Entry struct {
	ID         id.DLQID   `json:"id"`
	ResponseID id.ID      `json:"response_id"`
	FormID     string     `json:"form_id"`
	Jobs       []string   `json:"jobs"`
	Error      string     `json:"error"`
	Attempts   int        `json:"attempts"`
	FailedAt   time.Time  `json:"failed_at"`
	ReplayedAt *time.Time `json:"replayed_at,omitempty"`
}
