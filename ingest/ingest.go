// Package ingest accepts submitted answers: it validates them against the
// form, stores the response, and hands the dispatch to a worker pool. The
// caller gets the stored response back as soon as it is durable; dispatch
// outcomes never reach the caller.
package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/formdispatch"
	"github.com/xraph/formdispatch/ext"
	"github.com/xraph/formdispatch/form"
	"github.com/xraph/formdispatch/id"
	"github.com/xraph/formdispatch/response"
	"github.com/xraph/formdispatch/worker"
)

// Submitter takes dispatch requests off the request path.
type Submitter interface {
	Submit(req worker.Request) error
}

// FatalHandler is called when the shard can no longer allocate
// identities. The process cannot make progress after that.
type FatalHandler func(err error)

// Service is the ingestion entry point.
type Service struct {
	forms      form.Store
	responses  *response.Service
	pool       Submitter
	checker    form.AnswerChecker
	extensions *ext.Registry
	fatal      FatalHandler
	logger     *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithChecker replaces form.DefaultChecker.
func WithChecker(c form.AnswerChecker) Option {
	return func(s *Service) { s.checker = c }
}

// WithExtensions sets the registry notified of stored responses.
func WithExtensions(r *ext.Registry) Option {
	return func(s *Service) { s.extensions = r }
}

// WithFatalHandler sets the handler for identity exhaustion.
func WithFatalHandler(fn FatalHandler) Option {
	return func(s *Service) { s.fatal = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// New creates an ingestion service.
func New(forms form.Store, responses *response.Service, pool Submitter, opts ...Option) *Service {
	s := &Service{
		forms:     forms,
		responses: responses,
		pool:      pool,
		checker:   form.DefaultChecker(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.extensions == nil {
		s.extensions = ext.NewRegistry(s.logger)
	}
	return s
}

// Submit validates answers against the form, persists a new response, and
// queues its dispatch. It returns formdispatch.ErrFormNotFound for an
// unknown form and formdispatch.ErrInvalidAnswers for rejected answers.
func (s *Service) Submit(ctx context.Context, formID, owner string, answers []any) (*response.Response, error) {
	f, err := s.forms.GetForm(ctx, formID)
	if err != nil {
		return nil, err
	}

	if err := s.checker.Check(f, answers); err != nil {
		return nil, err
	}

	r, err := s.responses.Insert(ctx, formID, owner, answers)
	if err != nil {
		if response.IsExhausted(err) {
			s.logger.Error("identity space exhausted for shard",
				slog.Uint64("shard", s.responses.Shard()),
			)
			if s.fatal != nil {
				s.fatal(err)
			}
		}
		return nil, err
	}

	s.extensions.EmitResponseStored(ctx, r)

	if err := s.pool.Submit(worker.Request{FormID: formID, Response: r}); err != nil {
		s.logger.Warn("dispatch deferred to recovery",
			slog.String("response_id", r.ID.String()),
			slog.String("error", err.Error()),
		)
	}
	return r, nil
}

// Get returns a stored response by the decimal form of its ID.
func (s *Service) Get(ctx context.Context, responseID string) (*response.Response, error) {
	rid, err := id.Parse(responseID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", formdispatch.ErrResponseNotFound, err)
	}
	return s.responses.Get(ctx, rid)
}

// ListByForm returns the responses of a form.
func (s *Service) ListByForm(ctx context.Context, formID string, opts response.ListOpts) ([]*response.Response, error) {
	if _, err := s.forms.GetForm(ctx, formID); err != nil {
		return nil, err
	}
	return s.responses.ListByForm(ctx, formID, opts)
}

// ListByOwner returns an owner's responses.
func (s *Service) ListByOwner(ctx context.Context, owner string, opts response.ListOpts) ([]*response.Response, error) {
	return s.responses.ListByOwner(ctx, owner, opts)
}
