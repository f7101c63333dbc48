package api

import (
	"net/http"

	"github.com/opsdeck/ticketq/job"
)

// queueStats is the per-type queue depth snapshot.
type queueStats struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
}

// statsResponse is the aggregate system snapshot.
type statsResponse struct {
	Jobs       jobCountsResponse       `json:"jobs"`
	Queues     map[job.Type]queueStats `json:"queues"`
	DeadLetter countResponse           `json:"dead_letter"`
}

func (a *API) stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	mgr := a.eng.Manager()

	var resp statsResponse
	var err error
	if resp.Jobs.Pending, err = mgr.Count(ctx, job.CountOpts{Status: job.StatusPending}); err != nil {
		a.respondError(w, err)
		return
	}
	if resp.Jobs.Processing, err = mgr.Count(ctx, job.CountOpts{Status: job.StatusProcessing}); err != nil {
		a.respondError(w, err)
		return
	}
	if resp.Jobs.Completed, err = mgr.Count(ctx, job.CountOpts{Status: job.StatusCompleted}); err != nil {
		a.respondError(w, err)
		return
	}
	if resp.Jobs.Failed, err = mgr.Count(ctx, job.CountOpts{Status: job.StatusFailed}); err != nil {
		a.respondError(w, err)
		return
	}

	resp.Queues = make(map[job.Type]queueStats, len(job.Types()))
	for _, t := range job.Types() {
		var qs queueStats
		if qs.Pending, err = mgr.PendingLen(ctx, t); err != nil {
			a.respondError(w, err)
			return
		}
		if qs.Processing, err = mgr.ProcessingLen(ctx, t); err != nil {
			a.respondError(w, err)
			return
		}
		resp.Queues[t] = qs
	}

	if resp.DeadLetter.Count, err = a.eng.DLQService().Store().CountRecords(ctx); err != nil {
		a.respondError(w, err)
		return
	}
	a.respond(w, http.StatusOK, resp)
}
