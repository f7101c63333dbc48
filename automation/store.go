package automation

import (
	"context"

	"github.com/opsdeck/ticketq/id"
)

// ListOpts pages rule listings.
type ListOpts struct {
	OrgID  id.OrgID
	Limit  int
	Offset int
}

// Store is the persistence interface for automation rules.
type Store interface {
	// CreateRule persists a new rule.
	CreateRule(ctx context.Context, r *Rule) error

	// GetRule retrieves a rule by ID. Returns ticketq.ErrRuleNotFound
	// if absent.
	GetRule(ctx context.Context, ruleID id.RuleID) (*Rule, error)

	// UpdateRule persists changes to an existing rule.
	UpdateRule(ctx context.Context, r *Rule) error

	// DeleteRule removes a rule by ID.
	DeleteRule(ctx context.Context, ruleID id.RuleID) error

	// ListRules returns rules matching opts, ordered by CreatedAt
	// ascending.
	ListRules(ctx context.Context, opts ListOpts) ([]*Rule, error)

	// GetEnabledRules returns the enabled rules for the org and trigger,
	// ordered by Priority descending; ties keep storage order
	// (CreatedAt ascending).
	GetEnabledRules(ctx context.Context, orgID id.OrgID, trigger Trigger) ([]*Rule, error)
}
