package redis

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/opsdeck/ticketq"
	"github.com/opsdeck/ticketq/id"
	"github.com/opsdeck/ticketq/ticket"
)

// CreateTicket persists a new ticket.
func (s *Store) CreateTicket(ctx context.Context, t *ticket.Ticket) error {
	tID := t.ID.String()
	if err := s.setEntity(ctx, ticketKey(tID), t); err != nil {
		return fmt.Errorf("ticketq/redis: create ticket: %w", err)
	}
	if err := s.client.SAdd(ctx, ticketIDsKey, tID).Err(); err != nil {
		return fmt.Errorf("ticketq/redis: create ticket index: %w", err)
	}
	return nil
}

// GetTicket retrieves a ticket by ID.
func (s *Store) GetTicket(ctx context.Context, ticketID id.TicketID) (*ticket.Ticket, error) {
	var t ticket.Ticket
	if err := s.getEntity(ctx, ticketKey(ticketID.String()), &t); err != nil {
		if isNotFound(err) {
			return nil, ticketq.ErrTicketNotFound
		}
		return nil, fmt.Errorf("ticketq/redis: get ticket: %w", err)
	}
	return &t, nil
}

// UpdateTicket applies the non-nil fields of u to the ticket.
func (s *Store) UpdateTicket(ctx context.Context, ticketID id.TicketID, u ticket.Update) (*ticket.Ticket, error) {
	key := ticketKey(ticketID.String())
	var t ticket.Ticket
	if err := s.getEntity(ctx, key, &t); err != nil {
		if isNotFound(err) {
			return nil, ticketq.ErrTicketNotFound
		}
		return nil, fmt.Errorf("ticketq/redis: update ticket get: %w", err)
	}

	if u.Status != nil {
		t.Status = *u.Status
	}
	if u.Priority != nil {
		t.Priority = *u.Priority
	}
	if u.Category != nil {
		t.Category = *u.Category
	}
	if u.ClearAssignee {
		t.AssigneeID = nil
	} else if u.AssigneeID != nil {
		assignee := *u.AssigneeID
		t.AssigneeID = &assignee
	}
	t.UpdatedAt = time.Now().UTC()

	if err := s.setEntity(ctx, key, &t); err != nil {
		return nil, fmt.Errorf("ticketq/redis: update ticket set: %w", err)
	}
	return &t, nil
}

// ListTickets returns tickets matching opts, ordered by CreatedAt ascending.
func (s *Store) ListTickets(ctx context.Context, opts ticket.ListOpts) ([]*ticket.Ticket, error) {
	ids, err := s.client.SMembers(ctx, ticketIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("ticketq/redis: list tickets smembers: %w", err)
	}

	tickets := make([]*ticket.Ticket, 0, len(ids))
	for _, tID := range ids {
		var t ticket.Ticket
		if getErr := s.getEntity(ctx, ticketKey(tID), &t); getErr != nil {
			continue
		}
		if !opts.OrgID.IsNil() && t.OrgID != opts.OrgID {
			continue
		}
		if opts.Status != "" && t.Status != opts.Status {
			continue
		}
		tickets = append(tickets, &t)
	}

	sort.SliceStable(tickets, func(i, k int) bool {
		return tickets[i].CreatedAt.Before(tickets[k].CreatedAt)
	})
	return paginate(tickets, opts.Limit, opts.Offset), nil
}

// AddTag attaches a tag to a ticket. Adding a present tag is a no-op.
func (s *Store) AddTag(ctx context.Context, ticketID id.TicketID, tag string) error {
	if err := s.requireTicket(ctx, ticketID); err != nil {
		return err
	}
	key := ticketTagsKey(ticketID.String())
	tags, err := s.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("ticketq/redis: add tag lrange: %w", err)
	}
	for _, existing := range tags {
		if strings.EqualFold(existing, tag) {
			return nil
		}
	}
	if err := s.client.RPush(ctx, key, tag).Err(); err != nil {
		return fmt.Errorf("ticketq/redis: add tag: %w", err)
	}
	return nil
}

// RemoveTag detaches a tag. Removing an absent tag is a no-op.
func (s *Store) RemoveTag(ctx context.Context, ticketID id.TicketID, tag string) error {
	if err := s.requireTicket(ctx, ticketID); err != nil {
		return err
	}
	key := ticketTagsKey(ticketID.String())
	tags, err := s.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("ticketq/redis: remove tag lrange: %w", err)
	}
	for _, existing := range tags {
		if strings.EqualFold(existing, tag) {
			if err := s.client.LRem(ctx, key, 1, existing).Err(); err != nil {
				return fmt.Errorf("ticketq/redis: remove tag: %w", err)
			}
			return nil
		}
	}
	return nil
}

// ListTags returns the ticket's tag names.
func (s *Store) ListTags(ctx context.Context, ticketID id.TicketID) ([]string, error) {
	if err := s.requireTicket(ctx, ticketID); err != nil {
		return nil, err
	}
	tags, err := s.client.LRange(ctx, ticketTagsKey(ticketID.String()), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("ticketq/redis: list tags: %w", err)
	}
	return tags, nil
}

// ListInternalUsers returns the org's agents in registration order.
func (s *Store) ListInternalUsers(ctx context.Context, orgID id.OrgID) ([]*ticket.User, error) {
	ids, err := s.client.LRange(ctx, userOrderKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("ticketq/redis: list internal users: %w", err)
	}

	users := make([]*ticket.User, 0, len(ids))
	for _, uID := range ids {
		var u ticket.User
		if getErr := s.getEntity(ctx, userKey(uID), &u); getErr != nil {
			continue
		}
		if !u.Internal || u.OrgID != orgID {
			continue
		}
		users = append(users, &u)
	}
	return users, nil
}

// CountOpenAssigned returns the user's open-assigned ticket count.
func (s *Store) CountOpenAssigned(ctx context.Context, orgID id.OrgID, userID id.UserID) (int64, error) {
	ids, err := s.client.SMembers(ctx, ticketIDsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("ticketq/redis: count open assigned: %w", err)
	}

	var n int64
	for _, tID := range ids {
		var t ticket.Ticket
		if getErr := s.getEntity(ctx, ticketKey(tID), &t); getErr != nil {
			continue
		}
		if t.OrgID != orgID || !t.Status.Open() {
			continue
		}
		if t.AssigneeID != nil && *t.AssigneeID == userID {
			n++
		}
	}
	return n, nil
}

// SetTicketSLA writes recomputed SLA deadlines.
func (s *Store) SetTicketSLA(ctx context.Context, ticketID id.TicketID, responseDue, resolveDue *time.Time) error {
	key := ticketKey(ticketID.String())
	var t ticket.Ticket
	if err := s.getEntity(ctx, key, &t); err != nil {
		if isNotFound(err) {
			return ticketq.ErrTicketNotFound
		}
		return fmt.Errorf("ticketq/redis: set ticket sla get: %w", err)
	}
	t.SLAResponseDue = copyTime(responseDue)
	t.SLAResolveDue = copyTime(resolveDue)
	t.UpdatedAt = time.Now().UTC()
	if err := s.setEntity(ctx, key, &t); err != nil {
		return fmt.Errorf("ticketq/redis: set ticket sla set: %w", err)
	}
	return nil
}

// ListApproachingSLA returns open, unwarned tickets whose resolve
// deadline falls before the given time, soonest first.
func (s *Store) ListApproachingSLA(ctx context.Context, before time.Time) ([]*ticket.Ticket, error) {
	ids, err := s.client.SMembers(ctx, ticketIDsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("ticketq/redis: list approaching sla: %w", err)
	}

	var tickets []*ticket.Ticket
	for _, tID := range ids {
		var t ticket.Ticket
		if getErr := s.getEntity(ctx, ticketKey(tID), &t); getErr != nil {
			continue
		}
		if !t.Status.Open() || t.SLAWarnedAt != nil || t.SLAResolveDue == nil {
			continue
		}
		if !t.SLAResolveDue.Before(before) {
			continue
		}
		tickets = append(tickets, &t)
	}

	sort.SliceStable(tickets, func(i, k int) bool {
		return tickets[i].SLAResolveDue.Before(*tickets[k].SLAResolveDue)
	})
	return tickets, nil
}

// MarkSLAWarned stamps SLAWarnedAt so a ticket is warned once.
func (s *Store) MarkSLAWarned(ctx context.Context, ticketID id.TicketID, at time.Time) error {
	key := ticketKey(ticketID.String())
	var t ticket.Ticket
	if err := s.getEntity(ctx, key, &t); err != nil {
		if isNotFound(err) {
			return ticketq.ErrTicketNotFound
		}
		return fmt.Errorf("ticketq/redis: mark sla warned get: %w", err)
	}
	t.SLAWarnedAt = &at
	t.UpdatedAt = time.Now().UTC()
	if err := s.setEntity(ctx, key, &t); err != nil {
		return fmt.Errorf("ticketq/redis: mark sla warned set: %w", err)
	}
	return nil
}

// CreateUser persists a user account.
func (s *Store) CreateUser(ctx context.Context, u *ticket.User) error {
	uID := u.ID.String()
	key := userKey(uID)

	exists, err := s.entityExists(ctx, key)
	if err != nil {
		return fmt.Errorf("ticketq/redis: create user exists: %w", err)
	}
	if err := s.setEntity(ctx, key, u); err != nil {
		return fmt.Errorf("ticketq/redis: create user: %w", err)
	}
	if !exists {
		if err := s.client.RPush(ctx, userOrderKey, uID).Err(); err != nil {
			return fmt.Errorf("ticketq/redis: create user order: %w", err)
		}
	}
	return nil
}

// GetUser retrieves a user by ID.
func (s *Store) GetUser(ctx context.Context, userID id.UserID) (*ticket.User, error) {
	var u ticket.User
	if err := s.getEntity(ctx, userKey(userID.String()), &u); err != nil {
		if isNotFound(err) {
			return nil, ticketq.ErrUserNotFound
		}
		return nil, fmt.Errorf("ticketq/redis: get user: %w", err)
	}
	return &u, nil
}

func (s *Store) requireTicket(ctx context.Context, ticketID id.TicketID) error {
	exists, err := s.entityExists(ctx, ticketKey(ticketID.String()))
	if err != nil {
		return fmt.Errorf("ticketq/redis: ticket exists: %w", err)
	}
	if !exists {
		return ticketq.ErrTicketNotFound
	}
	return nil
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
