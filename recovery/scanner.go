// Package recovery redispatches responses left unprocessed by a previous
// process of the same shard. It runs once per boot, pages through the
// shard's backlog in identity order, and stops at the high-water mark
// captured when it started so responses ingested during the scan are left
// to the live dispatch path.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/xraph/formdispatch"
	"github.com/xraph/formdispatch/dispatcher"
	"github.com/xraph/formdispatch/ext"
	"github.com/xraph/formdispatch/form"
	"github.com/xraph/formdispatch/response"
)

// DefaultBatchSize is the page size of a scan.
const DefaultBatchSize = 10

// formLookups bounds concurrent form reads per page.
const formLookups = 8

// Dispatcher redispatches one response.
type Dispatcher interface {
	Dispatch(ctx context.Context, f *form.Form, r *response.Response) (*dispatcher.Outcome, error)
}

// Scanner finds and redispatches the unprocessed backlog of one shard.
type Scanner struct {
	responses  *response.Service
	forms      form.Store
	dispatcher Dispatcher
	extensions *ext.Registry
	logger     *slog.Logger

	batchSize  int
	upperBound uint64
	hasUpper   bool

	ran atomic.Bool
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithBatchSize sets how many responses are fetched and redispatched
// together.
func WithBatchSize(n int) Option {
	return func(s *Scanner) { s.batchSize = n }
}

// WithUpperBound fixes the highest sequence the scan visits. Without it the
// allocator's counter at the start of Run is used.
func WithUpperBound(seq uint64) Option {
	return func(s *Scanner) {
		s.upperBound = seq
		s.hasUpper = true
	}
}

// WithExtensions sets the registry notified when the scan ends.
func WithExtensions(r *ext.Registry) Option {
	return func(s *Scanner) { s.extensions = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scanner) { s.logger = l }
}

// New creates a Scanner.
func New(responses *response.Service, forms form.Store, d Dispatcher, opts ...Option) *Scanner {
	s := &Scanner{
		responses:  responses,
		forms:      forms,
		dispatcher: d,
		batchSize:  DefaultBatchSize,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.batchSize <= 0 {
		s.batchSize = DefaultBatchSize
	}
	if s.extensions == nil {
		s.extensions = ext.NewRegistry(s.logger)
	}
	return s
}

// Run scans the shard once and returns how many responses it marked
// processed. A second call returns ErrRecoveryAlreadyRun.
//
// A page whose form cannot be resolved aborts the scan with an
// ErrFormNotFound error. A page with any failed dispatch is finished and
// then aborts the scan with ErrRecoveryIncomplete. Responses whose jobs are
// all unknown are passed over and stay unprocessed.
func (s *Scanner) Run(ctx context.Context) (int, error) {
	if !s.ran.CompareAndSwap(false, true) {
		return 0, formdispatch.ErrRecoveryAlreadyRun
	}

	start := time.Now()
	upper := s.upperBound
	if !s.hasUpper {
		upper = s.responses.LastSequence()
	}

	s.logger.Info("recovery started",
		slog.Uint64("shard", s.responses.Shard()),
		slog.Uint64("upper_sequence", upper),
		slog.Int("batch_size", s.batchSize),
	)

	n, err := s.scan(ctx, upper)
	if err != nil {
		s.logger.Error("recovery aborted",
			slog.Int("reprocessed", n),
			slog.Duration("elapsed", time.Since(start)),
			slog.String("error", err.Error()),
		)
	} else {
		s.logger.Info("recovery completed",
			slog.Int("reprocessed", n),
			slog.Duration("elapsed", time.Since(start)),
		)
	}

	s.extensions.EmitRecoveryCompleted(ctx, n, err)
	return n, err
}

func (s *Scanner) scan(ctx context.Context, upper uint64) (int, error) {
	shard := s.responses.Shard()

	var (
		cursor uint64
		total  int
	)
	for {
		page, err := s.responses.FindUnprocessedAfter(ctx, shard, cursor, upper, s.batchSize)
		if err != nil {
			return total, err
		}
		if len(page) == 0 {
			return total, nil
		}

		forms, err := s.resolveForms(ctx, page)
		if err != nil {
			return total, err
		}

		n, err := s.dispatchPage(ctx, page, forms)
		total += n
		if err != nil {
			return total, err
		}

		cursor = page[len(page)-1].ID.Sequence()
	}
}

// resolveForms reads every distinct form referenced by page.
func (s *Scanner) resolveForms(ctx context.Context, page []*response.Response) (map[string]*form.Form, error) {
	var (
		mu    sync.Mutex
		forms = make(map[string]*form.Form)
		seen  = make(map[string]string)
	)
	for _, r := range page {
		if _, ok := seen[r.FormID]; !ok {
			seen[r.FormID] = r.ID.String()
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(formLookups)
	for formID, responseID := range seen {
		g.Go(func() error {
			f, err := s.forms.GetForm(gctx, formID)
			if errors.Is(err, context.Canceled) {
				// A sibling lookup already failed and cancelled gctx.
				return err
			}
			if err != nil {
				s.logger.Error("form for unprocessed response not found",
					slog.String("form_id", formID),
					slog.String("response_id", responseID),
					slog.String("error", err.Error()),
				)
				return fmt.Errorf("recovery: form %s of response %s: %w", formID, responseID, err)
			}
			mu.Lock()
			forms[formID] = f
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return forms, nil
}

// dispatchPage redispatches every response of page concurrently and waits
// for all of them.
func (s *Scanner) dispatchPage(ctx context.Context, page []*response.Response, forms map[string]*form.Form) (int, error) {
	var (
		wg          sync.WaitGroup
		mu          sync.Mutex
		reprocessed int
		errs        []error
	)

	for _, r := range page {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := s.dispatcher.Dispatch(ctx, forms[r.FormID], r)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			if out != nil && out.Processed {
				reprocessed++
			}
		}()
	}
	wg.Wait()

	if len(errs) > 0 {
		return reprocessed, fmt.Errorf("%w: %d of %d responses in page failed: %w",
			formdispatch.ErrRecoveryIncomplete, len(errs), len(page), errors.Join(errs...))
	}
	return reprocessed, nil
}
