package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/opsdeck/ticketq/dlq"
	"github.com/opsdeck/ticketq/id"
	"github.com/opsdeck/ticketq/job"
)

// defaultPurgeAge is how far back POST /v1/deadletter/purge reaches when
// the caller does not supply a cutoff.
const defaultPurgeAge = 30 * 24 * time.Hour

type purgeRequest struct {
	// Before removes records that failed before this time. Zero means
	// "older than the default purge age".
	Before time.Time `json:"before,omitempty"`
}

type purgeResponse struct {
	Purged int64 `json:"purged"`
}

type countResponse struct {
	Count int64 `json:"count"`
}

func (a *API) listRecords(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	opts := dlq.ListOpts{Type: job.Type(q.Get("type"))}
	opts.Limit, opts.Offset = pageParams(q.Get("limit"), q.Get("offset"))
	opts.Limit = limitOrDefault(opts.Limit)

	if v := q.Get("from"); v != "" {
		from, err := time.Parse(time.RFC3339, v)
		if err != nil {
			a.badRequest(w, "invalid from: "+err.Error())
			return
		}
		opts.From = from
	}
	if v := q.Get("to"); v != "" {
		to, err := time.Parse(time.RFC3339, v)
		if err != nil {
			a.badRequest(w, "invalid to: "+err.Error())
			return
		}
		opts.To = to
	}

	records, err := a.eng.DLQService().Store().ListRecords(r.Context(), opts)
	if err != nil {
		a.respondError(w, err)
		return
	}
	a.respond(w, http.StatusOK, records)
}

func (a *API) getRecord(w http.ResponseWriter, r *http.Request) {
	recordID, err := id.ParseRecordID(chi.URLParam(r, "recordID"))
	if err != nil {
		a.badRequest(w, "invalid record ID: "+err.Error())
		return
	}

	rec, err := a.eng.DLQService().Store().GetRecord(r.Context(), recordID)
	if err != nil {
		a.respondError(w, err)
		return
	}
	a.respond(w, http.StatusOK, rec)
}

// retryRecord re-enqueues a dead-lettered job as a fresh job with a
// reset attempt budget. The record is kept and stamped for audit.
func (a *API) retryRecord(w http.ResponseWriter, r *http.Request) {
	recordID, err := id.ParseRecordID(chi.URLParam(r, "recordID"))
	if err != nil {
		a.badRequest(w, "invalid record ID: "+err.Error())
		return
	}

	j, err := a.eng.DLQService().Retry(r.Context(), recordID)
	if err != nil {
		a.respondError(w, err)
		return
	}
	a.respond(w, http.StatusCreated, j)
}

func (a *API) deleteRecord(w http.ResponseWriter, r *http.Request) {
	recordID, err := id.ParseRecordID(chi.URLParam(r, "recordID"))
	if err != nil {
		a.badRequest(w, "invalid record ID: "+err.Error())
		return
	}

	if err := a.eng.DLQService().Store().DeleteRecord(r.Context(), recordID); err != nil {
		a.respondError(w, err)
		return
	}
	a.respond(w, http.StatusNoContent, nil)
}

func (a *API) purgeRecords(w http.ResponseWriter, r *http.Request) {
	var req purgeRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			a.badRequest(w, "invalid request body: "+err.Error())
			return
		}
	}
	before := req.Before
	if before.IsZero() {
		before = time.Now().UTC().Add(-defaultPurgeAge)
	}

	purged, err := a.eng.DLQService().Store().PurgeRecords(r.Context(), before)
	if err != nil {
		a.respondError(w, err)
		return
	}
	a.respond(w, http.StatusOK, purgeResponse{Purged: purged})
}

func (a *API) countRecords(w http.ResponseWriter, r *http.Request) {
	n, err := a.eng.DLQService().Store().CountRecords(r.Context())
	if err != nil {
		a.respondError(w, err)
		return
	}
	a.respond(w, http.StatusOK, countResponse{Count: n})
}
