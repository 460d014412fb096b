package dlq

import (
	"context"
	"log/slog"

	"github.com/xraph/formdispatch/response"
)

// Extension records a DLQ entry whenever a dispatch exhausts its retries.
type Extension struct {
	svc    *Service
	logger *slog.Logger
}

// NewExtension creates the DLQ extension over svc.
func NewExtension(svc *Service, logger *slog.Logger) *Extension {
	return &Extension{svc: svc, logger: logger}
}

// Name implements ext.Extension.
func (e *Extension) Name() string { return "dlq" }

// OnDispatchFailed implements ext.DispatchFailed.
func (e *Extension) OnDispatchFailed(ctx context.Context, r *response.Response, failed []string, attempts int, err error) error {
	entry, pushErr := e.svc.Push(ctx, r, failed, attempts, err)
	if pushErr != nil {
		return pushErr
	}
	e.logger.Warn("dispatch dead-lettered",
		slog.String("dlq_id", entry.ID.String()),
		slog.String("response_id", r.ID.String()),
		slog.Any("jobs", failed),
	)
	return nil
}
