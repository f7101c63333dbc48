// Package api exposes the operator HTTP surface: job inspection,
// dead-letter triage and replay, automation rule management, and
// schedule control. It is mounted by the ticketqd daemon and can be
// embedded into a host application's router.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/opsdeck/ticketq"
	"github.com/opsdeck/ticketq/engine"
)

// defaultListLimit caps list endpoints when the caller does not page.
const defaultListLimit = 50

// API wires the HTTP handlers over an Engine.
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

// New creates an API from an Engine.
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
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	a.RegisterRoutes(r)
	return r
}

// RegisterRoutes mounts all routes into the given router, so a host
// application can embed the API under its own prefix and middleware.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/v1", func(r chi.Router) {
		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", a.listJobs)
			r.Post("/", a.enqueueJob)
			r.Get("/counts", a.jobCounts)
			r.Get("/{jobID}", a.getJob)
		})

		r.Route("/deadletter", func(r chi.Router) {
			r.Get("/", a.listRecords)
			r.Get("/count", a.countRecords)
			r.Post("/purge", a.purgeRecords)
			r.Get("/{recordID}", a.getRecord)
			r.Delete("/{recordID}", a.deleteRecord)
			r.Post("/{recordID}/retry", a.retryRecord)
		})

		r.Route("/rules", func(r chi.Router) {
			r.Get("/", a.listRules)
			r.Post("/", a.createRule)
			r.Get("/{ruleID}", a.getRule)
			r.Put("/{ruleID}", a.updateRule)
			r.Delete("/{ruleID}", a.deleteRule)
			r.Post("/{ruleID}/enable", a.enableRule)
			r.Post("/{ruleID}/disable", a.disableRule)
		})

		r.Route("/schedules", func(r chi.Router) {
			r.Get("/", a.listSchedules)
			r.Get("/{entryID}", a.getSchedule)
			r.Delete("/{entryID}", a.deleteSchedule)
			r.Post("/{entryID}/enable", a.enableSchedule)
			r.Post("/{entryID}/disable", a.disableSchedule)
		})

		r.Get("/stats", a.stats)
	})
}

// errorResponse is the JSON error envelope.
type errorResponse struct {
	Error string `json:"error"`
}

func (a *API) respond(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Error("encode response", slog.String("error", err.Error()))
	}
}

func (a *API) respondError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ticketq.ErrJobNotFound),
		errors.Is(err, ticketq.ErrRecordNotFound),
		errors.Is(err, ticketq.ErrRuleNotFound),
		errors.Is(err, ticketq.ErrEntryNotFound),
		errors.Is(err, ticketq.ErrTicketNotFound),
		errors.Is(err, ticketq.ErrUserNotFound):
		status = http.StatusNotFound
	case errors.Is(err, ticketq.ErrJobAlreadyExists),
		errors.Is(err, ticketq.ErrDuplicateEntry):
		status = http.StatusConflict
	}
	a.respond(w, status, errorResponse{Error: err.Error()})
}

func (a *API) badRequest(w http.ResponseWriter, msg string) {
	a.respond(w, http.StatusBadRequest, errorResponse{Error: msg})
}

func limitOrDefault(n int) int {
	if n <= 0 {
		return defaultListLimit
	}
	return n
}
