package automation

import (
	"strings"
	"time"

	"github.com/opsdeck/ticketq/ticket"
)

// ConditionType is the closed predicate vocabulary. Adding a type means
// extending both this list and Evaluate's switch.
type ConditionType string

const (
	CondStatusEquals        ConditionType = "status_equals"
	CondStatusIn            ConditionType = "status_in"
	CondPriorityEquals      ConditionType = "priority_equals"
	CondPriorityIn          ConditionType = "priority_in"
	CondCategoryEquals      ConditionType = "category_equals"
	CondCategoryIn          ConditionType = "category_in"
	CondAssigneeIs          ConditionType = "assignee_is"
	CondAssigneeMissing     ConditionType = "assignee_missing"
	CondSubjectContains     ConditionType = "subject_contains"
	CondDescriptionContains ConditionType = "description_contains"
	CondHasTag              ConditionType = "has_tag"
	CondCreatedBefore       ConditionType = "created_before"
	CondCreatedAfter        ConditionType = "created_after"
)

// Condition is a single typed predicate. Value holds the comparison
// operand; set-membership types use Values instead.
type Condition struct {
	Type   ConditionType `json:"type"`
	Value  string        `json:"value,omitempty"`
	Values []string      `json:"values,omitempty"`
}

// Snapshot is the read-only evaluation context: the ticket as it stood
// when the trigger fired plus its tag names, fetched once per pass.
type Snapshot struct {
	Ticket *ticket.Ticket
	Tags   []string
}

// Evaluate applies a single condition to the snapshot. Pure: no I/O, no
// clock reads. String comparisons are case-insensitive; date bounds are
// inclusive. An unknown condition type never matches.
func Evaluate(c Condition, snap Snapshot) bool {
	t := snap.Ticket

	switch c.Type {
	case CondStatusEquals:
		return strings.EqualFold(string(t.Status), c.Value)
	case CondStatusIn:
		return containsFold(c.Values, string(t.Status))
	case CondPriorityEquals:
		return strings.EqualFold(string(t.Priority), c.Value)
	case CondPriorityIn:
		return containsFold(c.Values, string(t.Priority))
	case CondCategoryEquals:
		return strings.EqualFold(string(t.Category), c.Value)
	case CondCategoryIn:
		return containsFold(c.Values, string(t.Category))
	case CondAssigneeIs:
		return t.Assigned() && t.AssigneeID.String() == c.Value
	case CondAssigneeMissing:
		return !t.Assigned()
	case CondSubjectContains:
		return containsInsensitive(t.Subject, c.Value)
	case CondDescriptionContains:
		return containsInsensitive(t.Description, c.Value)
	case CondHasTag:
		return containsFold(snap.Tags, c.Value)
	case CondCreatedBefore:
		bound, err := time.Parse(time.RFC3339, c.Value)
		if err != nil {
			return false
		}
		return !t.CreatedAt.After(bound)
	case CondCreatedAfter:
		bound, err := time.Parse(time.RFC3339, c.Value)
		if err != nil {
			return false
		}
		return !t.CreatedAt.Before(bound)
	default:
		return false
	}
}

// Match AND-folds a condition list against the snapshot. An empty list
// always matches; the first non-matching condition short-circuits.
func Match(conds []Condition, snap Snapshot) bool {
	for _, c := range conds {
		if !Evaluate(c, snap) {
			return false
		}
	}
	return true
}

func containsInsensitive(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func containsFold(set []string, v string) bool {
	for _, s := range set {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}
