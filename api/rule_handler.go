package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/opsdeck/ticketq"
	"github.com/opsdeck/ticketq/automation"
	"github.com/opsdeck/ticketq/id"
)

// ruleRequest is the body for creating or updating a rule.
type ruleRequest struct {
	OrgID      string                 `json:"org_id"`
	Name       string                 `json:"name"`
	Enabled    *bool                  `json:"enabled,omitempty"`
	Priority   int                    `json:"priority"`
	TriggerOn  automation.Trigger     `json:"trigger_on"`
	Conditions []automation.Condition `json:"conditions,omitempty"`
	Actions    []automation.Action    `json:"actions"`
	CreatedBy  string                 `json:"created_by,omitempty"`
}

func (a *API) listRules(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	opts := automation.ListOpts{}
	opts.Limit, opts.Offset = pageParams(q.Get("limit"), q.Get("offset"))
	opts.Limit = limitOrDefault(opts.Limit)
	if v := q.Get("org_id"); v != "" {
		orgID, err := id.ParseOrgID(v)
		if err != nil {
			a.badRequest(w, "invalid org ID: "+err.Error())
			return
		}
		opts.OrgID = orgID
	}

	rules, err := a.eng.RuleStore().ListRules(r.Context(), opts)
	if err != nil {
		a.respondError(w, err)
		return
	}
	a.respond(w, http.StatusOK, rules)
}

func (a *API) createRule(w http.ResponseWriter, r *http.Request) {
	var req ruleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.badRequest(w, "invalid request body: "+err.Error())
		return
	}

	rule, errMsg := ruleFromRequest(&req)
	if errMsg != "" {
		a.badRequest(w, errMsg)
		return
	}
	rule.Entity = ticketq.NewEntity()
	rule.ID = id.NewRuleID()

	if err := a.eng.RuleStore().CreateRule(r.Context(), rule); err != nil {
		a.respondError(w, err)
		return
	}
	a.respond(w, http.StatusCreated, rule)
}

func (a *API) getRule(w http.ResponseWriter, r *http.Request) {
	ruleID, err := id.ParseRuleID(chi.URLParam(r, "ruleID"))
	if err != nil {
		a.badRequest(w, "invalid rule ID: "+err.Error())
		return
	}

	rule, err := a.eng.RuleStore().GetRule(r.Context(), ruleID)
	if err != nil {
		a.respondError(w, err)
		return
	}
	a.respond(w, http.StatusOK, rule)
}

func (a *API) updateRule(w http.ResponseWriter, r *http.Request) {
	ruleID, err := id.ParseRuleID(chi.URLParam(r, "ruleID"))
	if err != nil {
		a.badRequest(w, "invalid rule ID: "+err.Error())
		return
	}

	existing, err := a.eng.RuleStore().GetRule(r.Context(), ruleID)
	if err != nil {
		a.respondError(w, err)
		return
	}

	var req ruleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.badRequest(w, "invalid request body: "+err.Error())
		return
	}

	rule, errMsg := ruleFromRequest(&req)
	if errMsg != "" {
		a.badRequest(w, errMsg)
		return
	}
	rule.Entity = existing.Entity
	rule.ID = existing.ID

	if err := a.eng.RuleStore().UpdateRule(r.Context(), rule); err != nil {
		a.respondError(w, err)
		return
	}
	a.respond(w, http.StatusOK, rule)
}

func (a *API) deleteRule(w http.ResponseWriter, r *http.Request) {
	ruleID, err := id.ParseRuleID(chi.URLParam(r, "ruleID"))
	if err != nil {
		a.badRequest(w, "invalid rule ID: "+err.Error())
		return
	}

	if err := a.eng.RuleStore().DeleteRule(r.Context(), ruleID); err != nil {
		a.respondError(w, err)
		return
	}
	a.respond(w, http.StatusNoContent, nil)
}

func (a *API) enableRule(w http.ResponseWriter, r *http.Request) {
	a.setRuleEnabled(w, r, true)
}

func (a *API) disableRule(w http.ResponseWriter, r *http.Request) {
	a.setRuleEnabled(w, r, false)
}

func (a *API) setRuleEnabled(w http.ResponseWriter, r *http.Request, enabled bool) {
	ruleID, err := id.ParseRuleID(chi.URLParam(r, "ruleID"))
	if err != nil {
		a.badRequest(w, "invalid rule ID: "+err.Error())
		return
	}

	rule, err := a.eng.RuleStore().GetRule(r.Context(), ruleID)
	if err != nil {
		a.respondError(w, err)
		return
	}
	rule.Enabled = enabled
	if err := a.eng.RuleStore().UpdateRule(r.Context(), rule); err != nil {
		a.respondError(w, err)
		return
	}
	a.respond(w, http.StatusOK, rule)
}

// ruleFromRequest validates and converts the request body. The second
// return is a bad-request message, empty on success.
func ruleFromRequest(req *ruleRequest) (*automation.Rule, string) {
	if req.OrgID == "" {
		return nil, "org_id is required"
	}
	orgID, err := id.ParseOrgID(req.OrgID)
	if err != nil {
		return nil, "invalid org ID: " + err.Error()
	}
	if req.Name == "" {
		return nil, "name is required"
	}
	if req.TriggerOn == "" {
		return nil, "trigger_on is required"
	}
	if len(req.Actions) == 0 {
		return nil, "at least one action is required"
	}

	rule := &automation.Rule{
		OrgID:      orgID,
		Name:       req.Name,
		Enabled:    true,
		Priority:   req.Priority,
		TriggerOn:  req.TriggerOn,
		Conditions: req.Conditions,
		Actions:    req.Actions,
	}
	if req.Enabled != nil {
		rule.Enabled = *req.Enabled
	}
	if req.CreatedBy != "" {
		creator, err := id.ParseUserID(req.CreatedBy)
		if err != nil {
			return nil, "invalid created_by: " + err.Error()
		}
		rule.CreatedBy = &creator
	}
	return rule, ""
}
