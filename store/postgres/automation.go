package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/opsdeck/ticketq"
	"github.com/opsdeck/ticketq/automation"
	"github.com/opsdeck/ticketq/id"
)

// CreateRule persists a new automation rule. Conditions and actions
// are stored as JSONB.
func (s *Store) CreateRule(ctx context.Context, r *automation.Rule) error {
	conds, acts, err := marshalRuleParts(r)
	if err != nil {
		return err
	}
	var creator any
	if r.CreatedBy != nil {
		creator = r.CreatedBy.String()
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO ticketq_rules (
			id, org_id, name, enabled, priority, trigger_on,
			conditions, actions, created_by, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11
		)`,
		r.ID.String(), r.OrgID.String(), r.Name, r.Enabled, r.Priority,
		string(r.TriggerOn), conds, acts, creator,
		r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("ticketq/postgres: create rule: %w", err)
	}
	return nil
}

// GetRule retrieves a rule by ID.
func (s *Store) GetRule(ctx context.Context, ruleID id.RuleID) (*automation.Rule, error) {
	r := s.pool.QueryRow(ctx,
		`SELECT `+ruleColumns+` FROM ticketq_rules WHERE id = $1`,
		ruleID.String(),
	)

	rule, err := scanRule(r)
	if err != nil {
		if isNoRows(err) {
			return nil, ticketq.ErrRuleNotFound
		}
		return nil, fmt.Errorf("ticketq/postgres: get rule: %w", err)
	}
	return rule, nil
}

// UpdateRule persists changes to an existing rule.
func (s *Store) UpdateRule(ctx context.Context, r *automation.Rule) error {
	conds, acts, err := marshalRuleParts(r)
	if err != nil {
		return err
	}
	var creator any
	if r.CreatedBy != nil {
		creator = r.CreatedBy.String()
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE ticketq_rules SET
			org_id = $2, name = $3, enabled = $4, priority = $5,
			trigger_on = $6, conditions = $7, actions = $8,
			created_by = $9, updated_at = NOW()
		WHERE id = $1`,
		r.ID.String(), r.OrgID.String(), r.Name, r.Enabled, r.Priority,
		string(r.TriggerOn), conds, acts, creator,
	)
	if err != nil {
		return fmt.Errorf("ticketq/postgres: update rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ticketq.ErrRuleNotFound
	}
	return nil
}

// DeleteRule removes a rule by ID.
func (s *Store) DeleteRule(ctx context.Context, ruleID id.RuleID) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM ticketq_rules WHERE id = $1`, ruleID.String(),
	)
	if err != nil {
		return fmt.Errorf("ticketq/postgres: delete rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ticketq.ErrRuleNotFound
	}
	return nil
}

// ListRules returns rules matching opts, ordered by CreatedAt ascending.
func (s *Store) ListRules(ctx context.Context, opts automation.ListOpts) ([]*automation.Rule, error) {
	query := `SELECT ` + ruleColumns + ` FROM ticketq_rules WHERE 1=1`
	args := []any{}
	argIdx := 1

	if !opts.OrgID.IsNil() {
		query += fmt.Sprintf(" AND org_id = $%d", argIdx)
		args = append(args, opts.OrgID.String())
		argIdx++
	}

	query += " ORDER BY created_at ASC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ticketq/postgres: list rules: %w", err)
	}
	defer rows.Close()

	return collectRules(rows)
}

// GetEnabledRules returns the enabled rules for the org and trigger,
// Priority descending; ties keep CreatedAt ascending.
func (s *Store) GetEnabledRules(ctx context.Context, orgID id.OrgID, trigger automation.Trigger) ([]*automation.Rule, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+ruleColumns+` FROM ticketq_rules
		WHERE org_id = $1 AND trigger_on = $2 AND enabled
		ORDER BY priority DESC, created_at ASC`,
		orgID.String(), string(trigger),
	)
	if err != nil {
		return nil, fmt.Errorf("ticketq/postgres: get enabled rules: %w", err)
	}
	defer rows.Close()

	return collectRules(rows)
}

func marshalRuleParts(r *automation.Rule) (conds, acts []byte, err error) {
	conds, err = json.Marshal(r.Conditions)
	if err != nil {
		return nil, nil, fmt.Errorf("ticketq/postgres: marshal rule conditions: %w", err)
	}
	acts, err = json.Marshal(r.Actions)
	if err != nil {
		return nil, nil, fmt.Errorf("ticketq/postgres: marshal rule actions: %w", err)
	}
	return conds, acts, nil
}
