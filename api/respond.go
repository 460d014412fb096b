package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/xraph/formdispatch"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// DataResponse wraps every successful payload.
type DataResponse struct {
	Data any `json:"data"`
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// SubmitRequest is the body of POST /forms/{formID}/responses.
type SubmitRequest struct {
	Owner     string `json:"owner"`
	Responses []any  `json:"responses"`
}

// CountResponse reports a count.
type CountResponse struct {
	Count int64 `json:"count"`
}

// PurgeResponse reports how many entries a purge removed.
type PurgeResponse struct {
	Purged int64 `json:"purged"`
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
	Shard  uint64 `json:"shard"`
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respondData(w http.ResponseWriter, status int, data any) {
	respondJSON(w, status, DataResponse{Data: data})
}

func (a *API) writeError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, ErrorResponse{Error: message})
}

// writeDomainError maps sentinel errors onto HTTP status codes.
func (a *API) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		a.logger.Error("request failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
	a.writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, formdispatch.ErrFormNotFound),
		errors.Is(err, formdispatch.ErrResponseNotFound),
		errors.Is(err, formdispatch.ErrDLQNotFound):
		return http.StatusNotFound
	case errors.Is(err, formdispatch.ErrInvalidAnswers):
		return http.StatusBadRequest
	case errors.Is(err, formdispatch.ErrDeliveryFailed),
		errors.Is(err, formdispatch.ErrMarkProcessedFailed):
		return http.StatusBadGateway
	case errors.Is(err, formdispatch.ErrSequenceExhausted):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// pagination reads limit and offset query parameters.
func pagination(r *http.Request) (limit, offset int, ok bool) {
	limit, offset = defaultPageSize, 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return 0, 0, false
		}
		limit = min(n, maxPageSize)
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return 0, 0, false
		}
		offset = n
	}
	return limit, offset, true
}
