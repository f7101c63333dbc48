package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/opsdeck/ticketq/id"
)

func (a *API) listSchedules(w http.ResponseWriter, r *http.Request) {
	entries, err := a.eng.ScheduleStore().ListEntries(r.Context())
	if err != nil {
		a.respondError(w, err)
		return
	}
	a.respond(w, http.StatusOK, entries)
}

func (a *API) getSchedule(w http.ResponseWriter, r *http.Request) {
	entryID, err := id.ParseEntryID(chi.URLParam(r, "entryID"))
	if err != nil {
		a.badRequest(w, "invalid entry ID: "+err.Error())
		return
	}

	entry, err := a.eng.ScheduleStore().GetEntry(r.Context(), entryID)
	if err != nil {
		a.respondError(w, err)
		return
	}
	a.respond(w, http.StatusOK, entry)
}

func (a *API) deleteSchedule(w http.ResponseWriter, r *http.Request) {
	entryID, err := id.ParseEntryID(chi.URLParam(r, "entryID"))
	if err != nil {
		a.badRequest(w, "invalid entry ID: "+err.Error())
		return
	}

	if err := a.eng.ScheduleStore().DeleteEntry(r.Context(), entryID); err != nil {
		a.respondError(w, err)
		return
	}
	a.respond(w, http.StatusNoContent, nil)
}

func (a *API) enableSchedule(w http.ResponseWriter, r *http.Request) {
	a.setScheduleEnabled(w, r, true)
}

func (a *API) disableSchedule(w http.ResponseWriter, r *http.Request) {
	a.setScheduleEnabled(w, r, false)
}

func (a *API) setScheduleEnabled(w http.ResponseWriter, r *http.Request, enabled bool) {
	entryID, err := id.ParseEntryID(chi.URLParam(r, "entryID"))
	if err != nil {
		a.badRequest(w, "invalid entry ID: "+err.Error())
		return
	}

	entry, err := a.eng.ScheduleStore().GetEntry(r.Context(), entryID)
	if err != nil {
		a.respondError(w, err)
		return
	}
	entry.Enabled = enabled
	if err := a.eng.ScheduleStore().UpdateEntry(r.Context(), entry); err != nil {
		a.respondError(w, err)
		return
	}
	a.respond(w, http.StatusOK, entry)
}
