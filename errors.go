package formdispatch

import (
	"errors"

	"github.com/xraph/formdispatch/id"
)

var (
	// Store errors.
	ErrNoStore         = errors.New("formdispatch: no store configured")
	ErrStorage         = errors.New("formdispatch: storage failure")
	ErrMigrationFailed = errors.New("formdispatch: migration failed")

	// Not found errors.
	ErrResponseNotFound = errors.New("formdispatch: response not found")
	ErrFormNotFound     = errors.New("formdispatch: form not found")
	ErrDLQNotFound      = errors.New("formdispatch: dlq entry not found")

	// Conflict errors.
	ErrResponseAlreadyExists = errors.New("formdispatch: response already exists")

	// Validation errors.
	ErrInvalidAnswers = errors.New("formdispatch: answers rejected by form")
	ErrUnknownJob     = errors.New("formdispatch: no queue registered for job")

	// Dispatch errors.
	ErrDeliveryFailed      = errors.New("formdispatch: delivery failed after retries")
	ErrMarkProcessedFailed = errors.New("formdispatch: mark processed failed after retries")

	// Recovery errors.
	ErrRecoveryIncomplete = errors.New("formdispatch: recovery pass incomplete")
	ErrRecoveryAlreadyRun = errors.New("formdispatch: recovery already run")

	// Identity errors, re-exported from the id package.
	ErrSequenceExhausted = id.ErrSequenceExhausted
	ErrShardOutOfRange   = id.ErrShardOutOfRange
)
