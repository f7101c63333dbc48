package redis

import (
	"context"
	"fmt"
	"sort"

	"github.com/opsdeck/ticketq"
	"github.com/opsdeck/ticketq/automation"
	"github.com/opsdeck/ticketq/id"
)

// CreateRule persists a new automation rule.
func (s *Store) CreateRule(ctx context.Context, r *automation.Rule) error {
	rID := r.ID.String()
	if err := s.setEntity(ctx, ruleKey(rID), r); err != nil {
		return fmt.Errorf("ticketq/redis: create rule: %w", err)
	}
	if err := s.client.SAdd(ctx, ruleIDsKey, rID).Err(); err != nil {
		return fmt.Errorf("ticketq/redis: create rule index: %w", err)
	}
	return nil
}

// GetRule retrieves a rule by ID.
func (s *Store) GetRule(ctx context.Context, ruleID id.RuleID) (*automation.Rule, error) {
	var r automation.Rule
	if err := s.getEntity(ctx, ruleKey(ruleID.String()), &r); err != nil {
		if isNotFound(err) {
			return nil, ticketq.ErrRuleNotFound
		}
		return nil, fmt.Errorf("ticketq/redis: get rule: %w", err)
	}
	return &r, nil
}

// UpdateRule persists changes to an existing rule.
func (s *Store) UpdateRule(ctx context.Context, r *automation.Rule) error {
	key := ruleKey(r.ID.String())
	exists, err := s.entityExists(ctx, key)
	if err != nil {
		return fmt.Errorf("ticketq/redis: update rule exists: %w", err)
	}
	if !exists {
		return ticketq.ErrRuleNotFound
	}
	if err := s.setEntity(ctx, key, r); err != nil {
		return fmt.Errorf("ticketq/redis: update rule: %w", err)
	}
	return nil
}

// DeleteRule removes a rule by ID.
func (s *Store) DeleteRule(ctx context.Context, ruleID id.RuleID) error {
	rID := ruleID.String()
	key := ruleKey(rID)

	exists, err := s.entityExists(ctx, key)
	if err != nil {
		return fmt.Errorf("ticketq/redis: delete rule exists: %w", err)
	}
	if !exists {
		return ticketq.ErrRuleNotFound
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.SRem(ctx, ruleIDsKey, rID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("ticketq/redis: delete rule: %w", err)
	}
	return nil
}

// ListRules returns rules matching opts, ordered by CreatedAt ascending.
func (s *Store) ListRules(ctx context.Context, opts automation.ListOpts) ([]*automation.Rule, error) {
	rules, err := s.loadRules(ctx, func(r *automation.Rule) bool {
		return opts.OrgID.IsNil() || r.OrgID == opts.OrgID
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(rules, func(i, k int) bool {
		return rules[i].CreatedAt.Before(rules[k].CreatedAt)
	})
	return paginate(rules, opts.Limit, opts.Offset), nil
}

// GetEnabledRules returns the enabled rules for the org and trigger,
// Priority descending; ties keep CreatedAt ascending.
func (s *Store) GetEnabledRules(ctx context.Context, orgID id.OrgID, trigger automation.Trigger) ([]*automation.Rule, error) {
	rules, err := s.loadRules(ctx, func(r *automation.Rule) bool {
		return r.Enabled && r.OrgID == orgID && r.TriggerOn == trigger
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(rules, func(i, k int) bool {
		return rules[i].CreatedAt.Before(rules[k].CreatedAt)
	})
	sort.SliceStable(rules, func(i, k int) bool {
		return rules[i].Priority > rules[k].Priority
	})
	return rules, nil
}

func (s *Store) loadRules(ctx context.Context, keep func(*automation.Rule) bool) ([]*automation.Rule, error) {
	ids, err := s.client.SMembers(ctx, ruleIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("ticketq/redis: list rules smembers: %w", err)
	}

	rules := make([]*automation.Rule, 0, len(ids))
	for _, rID := range ids {
		var r automation.Rule
		if getErr := s.getEntity(ctx, ruleKey(rID), &r); getErr != nil {
			continue
		}
		if !keep(&r) {
			continue
		}
		rules = append(rules, &r)
	}
	return rules, nil
}
