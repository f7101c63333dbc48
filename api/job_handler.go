package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/opsdeck/ticketq/id"
	"github.com/opsdeck/ticketq/job"
)

// enqueueJobRequest is the body for POST /v1/jobs.
type enqueueJobRequest struct {
	Type        job.Type        `json:"type"`
	Data        json.RawMessage `json:"data,omitempty"`
	MaxAttempts int             `json:"max_attempts,omitempty"`
	OrgID       string          `json:"org_id,omitempty"`
}

// jobCountsResponse groups job counts by status.
type jobCountsResponse struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Completed  int64 `json:"completed"`
	Failed     int64 `json:"failed"`
}

func (a *API) listJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	status := job.Status(q.Get("status"))
	if status == "" {
		status = job.StatusPending
	}

	limit, offset := pageParams(q.Get("limit"), q.Get("offset"))
	jobs, err := a.eng.Manager().List(r.Context(), status, job.ListOpts{
		Type:   job.Type(q.Get("type")),
		Limit:  limitOrDefault(limit),
		Offset: offset,
	})
	if err != nil {
		a.respondError(w, err)
		return
	}
	a.respond(w, http.StatusOK, jobs)
}

func (a *API) getJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := id.ParseJobID(chi.URLParam(r, "jobID"))
	if err != nil {
		a.badRequest(w, "invalid job ID: "+err.Error())
		return
	}

	j, err := a.eng.Manager().Get(r.Context(), jobID)
	if err != nil {
		a.respondError(w, err)
		return
	}
	a.respond(w, http.StatusOK, j)
}

func (a *API) enqueueJob(w http.ResponseWriter, r *http.Request) {
	var req enqueueJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.badRequest(w, "invalid request body: "+err.Error())
		return
	}
	if req.Type == "" {
		a.badRequest(w, "type is required")
		return
	}

	var opts []job.Option
	if req.MaxAttempts > 0 {
		opts = append(opts, job.WithMaxAttempts(req.MaxAttempts))
	}
	if req.OrgID != "" {
		orgID, err := id.ParseOrgID(req.OrgID)
		if err != nil {
			a.badRequest(w, "invalid org ID: "+err.Error())
			return
		}
		opts = append(opts, job.WithOrg(orgID))
	}

	j, err := a.eng.EnqueueRaw(r.Context(), req.Type, req.Data, opts...)
	if err != nil {
		a.respondError(w, err)
		return
	}
	a.respond(w, http.StatusCreated, j)
}

func (a *API) jobCounts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	mgr := a.eng.Manager()

	var counts jobCountsResponse
	var err error
	if counts.Pending, err = mgr.Count(ctx, job.CountOpts{Status: job.StatusPending}); err != nil {
		a.respondError(w, err)
		return
	}
	if counts.Processing, err = mgr.Count(ctx, job.CountOpts{Status: job.StatusProcessing}); err != nil {
		a.respondError(w, err)
		return
	}
	if counts.Completed, err = mgr.Count(ctx, job.CountOpts{Status: job.StatusCompleted}); err != nil {
		a.respondError(w, err)
		return
	}
	if counts.Failed, err = mgr.Count(ctx, job.CountOpts{Status: job.StatusFailed}); err != nil {
		a.respondError(w, err)
		return
	}
	a.respond(w, http.StatusOK, counts)
}

func pageParams(limitStr, offsetStr string) (limit, offset int) {
	limit, _ = strconv.Atoi(limitStr)
	offset, _ = strconv.Atoi(offsetStr)
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
