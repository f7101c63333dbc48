package automation

// ActionType is the closed mutation vocabulary. Adding a type means
// extending both this list and the engine's executeAction switch.
type ActionType string

const (
	ActionSetStatus        ActionType = "set_status"
	ActionSetPriority      ActionType = "set_priority"
	ActionSetCategory      ActionType = "set_category"
	ActionAssignUser       ActionType = "assign_user"
	ActionAssignRoundRobin ActionType = "assign_round_robin"
	ActionAddTag           ActionType = "add_tag"
	ActionRemoveTag        ActionType = "remove_tag"
	ActionNotify           ActionType = "notify"
)

// Action is a single typed mutation. Value carries the operand: the
// target status/priority/category, the assignee user ID, the tag name,
// or the notification recipient address.
type Action struct {
	Type  ActionType `json:"type"`
	Value string     `json:"value,omitempty"`
}
