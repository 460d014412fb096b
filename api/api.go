// Package api exposes ingestion, response reads and dead letter queue
// operations over HTTP using chi.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/xraph/formdispatch/engine"
)

// API wires all HTTP handlers together for a formdispatch engine.
type API struct {
	eng    *engine.Engine
	logger *slog.Logger
}

// Option configures an API.
type Option func(*API)

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *API) { a.logger = l }
}

// New creates an API from a formdispatch Engine.
func New(eng *engine.Engine, opts ...Option) *API {
	a := &API{eng: eng, logger: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Handler returns the fully assembled http.Handler with all routes.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(a.loggingMiddleware)
	r.Use(middleware.Recoverer)

	a.RegisterRoutes(r)
	return r
}

// RegisterRoutes registers every formdispatch route on r.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", a.handleHealthz)

	r.Route("/forms/{formID}/responses", func(r chi.Router) {
		r.Post("/", a.handleSubmit)
		r.Get("/", a.handleListByForm)
	})
	r.Get("/owners/{owner}/responses", a.handleListByOwner)
	r.Get("/responses/{responseID}", a.handleGetResponse)

	r.Route("/dlq", func(r chi.Router) {
		r.Get("/", a.handleListDLQ)
		r.Get("/count", a.handleCountDLQ)
		r.Post("/purge", a.handlePurgeDLQ)
		r.Get("/{entryID}", a.handleGetDLQ)
		r.Post("/{entryID}/replay", a.handleReplayDLQ)
	})
}

// loggingMiddleware logs HTTP requests.
func (a *API) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		a.logger.Info("http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// Serve listens on addr until ctx ends, then shuts the server down within
// shutdownTimeout.
func (a *API) Serve(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("http server starting", slog.String("addr", addr))

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("http server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	}
}
