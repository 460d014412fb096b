package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/xraph/formdispatch"
	"github.com/xraph/formdispatch/dlq"
	"github.com/xraph/formdispatch/id"
	"github.com/xraph/formdispatch/response"
)

// defaultPurgeAge is how old an entry must be for POST /dlq/purge to drop it
// when no older_than is given.
const defaultPurgeAge = 30 * 24 * time.Hour

// handleHealthz handles GET /healthz.
func (a *API) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := a.eng.Store().Ping(r.Context()); err != nil {
		a.logger.Error("store ping failed", "error", err)
		a.writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	respondJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Shard:  a.eng.Responses().Shard(),
	})
}

// handleSubmit handles POST /forms/{formID}/responses.
func (a *API) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Owner == "" {
		a.writeError(w, http.StatusBadRequest, "owner is required")
		return
	}

	resp, err := a.eng.Ingest().Submit(r.Context(), chi.URLParam(r, "formID"), req.Owner, req.Responses)
	if err != nil {
		a.writeDomainError(w, r, err)
		return
	}
	respondData(w, http.StatusCreated, resp)
}

// handleGetResponse handles GET /responses/{responseID}.
func (a *API) handleGetResponse(w http.ResponseWriter, r *http.Request) {
	resp, err := a.eng.Ingest().Get(r.Context(), chi.URLParam(r, "responseID"))
	if err != nil {
		a.writeDomainError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, resp)
}

// handleListByForm handles GET /forms/{formID}/responses.
func (a *API) handleListByForm(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := pagination(r)
	if !ok {
		a.writeError(w, http.StatusBadRequest, "invalid limit or offset")
		return
	}

	resps, err := a.eng.Ingest().ListByForm(r.Context(), chi.URLParam(r, "formID"),
		response.ListOpts{Limit: limit, Offset: offset})
	if err != nil {
		a.writeDomainError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, nonNil(resps))
}

// handleListByOwner handles GET /owners/{owner}/responses.
func (a *API) handleListByOwner(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := pagination(r)
	if !ok {
		a.writeError(w, http.StatusBadRequest, "invalid limit or offset")
		return
	}

	resps, err := a.eng.Ingest().ListByOwner(r.Context(), chi.URLParam(r, "owner"),
		response.ListOpts{Limit: limit, Offset: offset})
	if err != nil {
		a.writeDomainError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, nonNil(resps))
}

// ── DLQ ──────────────────────────────────────────────────────────

// handleListDLQ handles GET /dlq.
func (a *API) handleListDLQ(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := pagination(r)
	if !ok {
		a.writeError(w, http.StatusBadRequest, "invalid limit or offset")
		return
	}

	entries, err := a.eng.DLQService().DLQStore().ListDLQ(r.Context(), dlq.ListOpts{
		Limit:  limit,
		Offset: offset,
		FormID: r.URL.Query().Get("form_id"),
	})
	if err != nil {
		a.writeDomainError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, nonNil(entries))
}

// handleGetDLQ handles GET /dlq/{entryID}.
func (a *API) handleGetDLQ(w http.ResponseWriter, r *http.Request) {
	entryID, err := dlqEntryID(r)
	if err != nil {
		a.writeDomainError(w, r, err)
		return
	}
	entry, err := a.eng.DLQService().DLQStore().GetDLQ(r.Context(), entryID)
	if err != nil {
		a.writeDomainError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, entry)
}

// handleReplayDLQ handles POST /dlq/{entryID}/replay.
func (a *API) handleReplayDLQ(w http.ResponseWriter, r *http.Request) {
	entryID, err := dlqEntryID(r)
	if err != nil {
		a.writeDomainError(w, r, err)
		return
	}
	entry, err := a.eng.DLQService().Replay(r.Context(), entryID)
	if err != nil {
		a.writeDomainError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, entry)
}

// dlqEntryID reads the {entryID} path parameter. A malformed id cannot
// name an entry, so it reports ErrDLQNotFound.
func dlqEntryID(r *http.Request) (id.DLQID, error) {
	entryID, err := id.ParseDLQID(chi.URLParam(r, "entryID"))
	if err != nil {
		return id.NilDLQ, fmt.Errorf("%w: %w", formdispatch.ErrDLQNotFound, err)
	}
	return entryID, nil
}

// handleCountDLQ handles GET /dlq/count.
func (a *API) handleCountDLQ(w http.ResponseWriter, r *http.Request) {
	count, err := a.eng.DLQService().DLQStore().CountDLQ(r.Context())
	if err != nil {
		a.writeDomainError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, CountResponse{Count: count})
}

// handlePurgeDLQ handles POST /dlq/purge?older_than=<duration>.
func (a *API) handlePurgeDLQ(w http.ResponseWriter, r *http.Request) {
	age := defaultPurgeAge
	if v := r.URL.Query().Get("older_than"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			a.writeError(w, http.StatusBadRequest, "invalid older_than duration")
			return
		}
		age = d
	}

	purged, err := a.eng.DLQService().DLQStore().PurgeDLQ(r.Context(), time.Now().UTC().Add(-age))
	if err != nil {
		a.writeDomainError(w, r, err)
		return
	}
	respondData(w, http.StatusOK, PurgeResponse{Purged: purged})
}

// nonNil keeps empty lists encoding as [] rather than null.
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
