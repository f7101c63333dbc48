package automation

import (
	"context"
	"fmt"

	"github.com/opsdeck/ticketq"
	"github.com/opsdeck/ticketq/id"
	"github.com/opsdeck/ticketq/ticket"
)

// pickRoundRobin returns the internal user with the fewest open assigned
// tickets in the org; ties go to the first minimum in iteration order.
//
// The counts are read point-in-time, outside any transaction with the
// subsequent assignment write, so concurrent rule firings may both pick
// the same "least loaded" user. Accepted trade-off.
func pickRoundRobin(ctx context.Context, store ticket.Store, orgID id.OrgID) (id.UserID, error) {
	users, err := store.ListInternalUsers(ctx, orgID)
	if err != nil {
		return id.ID{}, fmt.Errorf("ticketq/automation: list internal users: %w", err)
	}
	if len(users) == 0 {
		return id.ID{}, ticketq.ErrNoEligibleAssignee
	}

	var (
		best      id.UserID
		bestCount int64 = -1
	)
	for _, u := range users {
		count, err := store.CountOpenAssigned(ctx, orgID, u.ID)
		if err != nil {
			return id.ID{}, fmt.Errorf("ticketq/automation: count open assigned for %s: %w", u.ID, err)
		}
		if bestCount < 0 || count < bestCount {
			best = u.ID
			bestCount = count
		}
	}
	return best, nil
}
