package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/opsdeck/ticketq"
	"github.com/opsdeck/ticketq/id"
	"github.com/opsdeck/ticketq/ticket"
)

// CreateTicket persists a new ticket.
func (s *Store) CreateTicket(ctx context.Context, t *ticket.Ticket) error {
	var assignee any
	if t.AssigneeID != nil {
		assignee = t.AssigneeID.String()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO ticketq_tickets (
			id, org_id, subject, description, status, priority, category,
			assignee_id, requester_id, sla_response_due, sla_resolve_due,
			sla_warned_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11,
			$12, $13, $14
		)`,
		t.ID.String(), t.OrgID.String(), t.Subject, t.Description,
		string(t.Status), string(t.Priority), string(t.Category),
		assignee, t.RequesterID.String(),
		t.SLAResponseDue, t.SLAResolveDue, t.SLAWarnedAt,
		t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("ticketq/postgres: create ticket: %w", err)
	}
	return nil
}

// GetTicket retrieves a ticket by ID.
func (s *Store) GetTicket(ctx context.Context, ticketID id.TicketID) (*ticket.Ticket, error) {
	r := s.pool.QueryRow(ctx,
		`SELECT `+ticketColumns+` FROM ticketq_tickets WHERE id = $1`,
		ticketID.String(),
	)

	t, err := scanTicket(r)
	if err != nil {
		if isNoRows(err) {
			return nil, ticketq.ErrTicketNotFound
		}
		return nil, fmt.Errorf("ticketq/postgres: get ticket: %w", err)
	}
	return t, nil
}

// UpdateTicket applies the non-nil fields of u to the ticket and
// returns the updated row.
func (s *Store) UpdateTicket(ctx context.Context, ticketID id.TicketID, u ticket.Update) (*ticket.Ticket, error) {
	sets := []string{"updated_at = NOW()"}
	args := []any{ticketID.String()}
	argIdx := 2

	if u.Status != nil {
		sets = append(sets, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, string(*u.Status))
		argIdx++
	}
	if u.Priority != nil {
		sets = append(sets, fmt.Sprintf("priority = $%d", argIdx))
		args = append(args, string(*u.Priority))
		argIdx++
	}
	if u.Category != nil {
		sets = append(sets, fmt.Sprintf("category = $%d", argIdx))
		args = append(args, string(*u.Category))
		argIdx++
	}
	if u.ClearAssignee {
		sets = append(sets, "assignee_id = NULL")
	} else if u.AssigneeID != nil {
		sets = append(sets, fmt.Sprintf("assignee_id = $%d", argIdx))
		args = append(args, u.AssigneeID.String())
		argIdx++
	}

	query := `UPDATE ticketq_tickets SET ` + strings.Join(sets, ", ") +
		` WHERE id = $1 RETURNING ` + ticketColumns

	t, err := scanTicket(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if isNoRows(err) {
			return nil, ticketq.ErrTicketNotFound
		}
		return nil, fmt.Errorf("ticketq/postgres: update ticket: %w", err)
	}
	return t, nil
}

// ListTickets returns tickets matching opts, ordered by CreatedAt
// ascending.
func (s *Store) ListTickets(ctx context.Context, opts ticket.ListOpts) ([]*ticket.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM ticketq_tickets WHERE 1=1`
	args := []any{}
	argIdx := 1

	if !opts.OrgID.IsNil() {
		query += fmt.Sprintf(" AND org_id = $%d", argIdx)
		args = append(args, opts.OrgID.String())
		argIdx++
	}
	if opts.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, string(opts.Status))
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
		return nil, fmt.Errorf("ticketq/postgres: list tickets: %w", err)
	}
	defer rows.Close()

	return collectTickets(rows)
}

// AddTag attaches a tag to a ticket. Adding a present tag is a no-op.
// Tag matching is case-insensitive.
func (s *Store) AddTag(ctx context.Context, ticketID id.TicketID, tag string) error {
	if err := s.requireTicket(ctx, ticketID); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO ticketq_ticket_tags (ticket_id, tag)
		SELECT $1, $2
		WHERE NOT EXISTS (
			SELECT 1 FROM ticketq_ticket_tags
			WHERE ticket_id = $1 AND LOWER(tag) = LOWER($2)
		)`,
		ticketID.String(), tag,
	)
	if err != nil {
		return fmt.Errorf("ticketq/postgres: add tag: %w", err)
	}
	return nil
}

// RemoveTag detaches a tag. Removing an absent tag is a no-op.
func (s *Store) RemoveTag(ctx context.Context, ticketID id.TicketID, tag string) error {
	if err := s.requireTicket(ctx, ticketID); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, `
		DELETE FROM ticketq_ticket_tags
		WHERE ticket_id = $1 AND LOWER(tag) = LOWER($2)`,
		ticketID.String(), tag,
	)
	if err != nil {
		return fmt.Errorf("ticketq/postgres: remove tag: %w", err)
	}
	return nil
}

// ListTags returns the ticket's tag names in insertion order.
func (s *Store) ListTags(ctx context.Context, ticketID id.TicketID) ([]string, error) {
	if err := s.requireTicket(ctx, ticketID); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `
		SELECT tag FROM ticketq_ticket_tags
		WHERE ticket_id = $1 ORDER BY seq ASC`,
		ticketID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("ticketq/postgres: list tags: %w", err)
	}
	defer rows.Close()

	var tags []string
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, fmt.Errorf("ticketq/postgres: scan tag: %w", err)
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

// ListInternalUsers returns the org's agents in registration order.
func (s *Store) ListInternalUsers(ctx context.Context, orgID id.OrgID) ([]*ticket.User, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+userColumns+` FROM ticketq_users
		WHERE org_id = $1 AND internal
		ORDER BY seq ASC`,
		orgID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("ticketq/postgres: list internal users: %w", err)
	}
	defer rows.Close()

	var users []*ticket.User
	for rows.Next() {
		u, scanErr := scanUser(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// CountOpenAssigned returns the user's open-assigned ticket count.
func (s *Store) CountOpenAssigned(ctx context.Context, orgID id.OrgID, userID id.UserID) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM ticketq_tickets
		WHERE org_id = $1 AND assignee_id = $2
		  AND status IN ('OPEN', 'IN_PROGRESS', 'ON_HOLD')`,
		orgID.String(), userID.String(),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("ticketq/postgres: count open assigned: %w", err)
	}
	return n, nil
}

// SetTicketSLA writes recomputed SLA deadlines.
func (s *Store) SetTicketSLA(ctx context.Context, ticketID id.TicketID, responseDue, resolveDue *time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE ticketq_tickets SET
			sla_response_due = $2, sla_resolve_due = $3, updated_at = NOW()
		WHERE id = $1`,
		ticketID.String(), responseDue, resolveDue,
	)
	if err != nil {
		return fmt.Errorf("ticketq/postgres: set ticket sla: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ticketq.ErrTicketNotFound
	}
	return nil
}

// ListApproachingSLA returns open, unwarned tickets whose resolve
// deadline falls before the given time, soonest first.
func (s *Store) ListApproachingSLA(ctx context.Context, before time.Time) ([]*ticket.Ticket, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+ticketColumns+` FROM ticketq_tickets
		WHERE status IN ('OPEN', 'IN_PROGRESS', 'ON_HOLD')
		  AND sla_warned_at IS NULL
		  AND sla_resolve_due IS NOT NULL
		  AND sla_resolve_due < $1
		ORDER BY sla_resolve_due ASC`,
		before,
	)
	if err != nil {
		return nil, fmt.Errorf("ticketq/postgres: list approaching sla: %w", err)
	}
	defer rows.Close()

	return collectTickets(rows)
}

// MarkSLAWarned stamps SLAWarnedAt so a ticket is warned once.
func (s *Store) MarkSLAWarned(ctx context.Context, ticketID id.TicketID, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE ticketq_tickets SET sla_warned_at = $2, updated_at = NOW()
		WHERE id = $1`,
		ticketID.String(), at,
	)
	if err != nil {
		return fmt.Errorf("ticketq/postgres: mark sla warned: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ticketq.ErrTicketNotFound
	}
	return nil
}

// CreateUser persists a user account. Re-creating an existing user
// updates its profile and keeps its position in the iteration order.
func (s *Store) CreateUser(ctx context.Context, u *ticket.User) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO ticketq_users (
			id, org_id, name, email, internal, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			org_id = EXCLUDED.org_id, name = EXCLUDED.name,
			email = EXCLUDED.email, internal = EXCLUDED.internal,
			updated_at = NOW()`,
		u.ID.String(), u.OrgID.String(), u.Name, u.Email, u.Internal,
		u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("ticketq/postgres: create user: %w", err)
	}
	return nil
}

// GetUser retrieves a user by ID.
func (s *Store) GetUser(ctx context.Context, userID id.UserID) (*ticket.User, error) {
	r := s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM ticketq_users WHERE id = $1`,
		userID.String(),
	)

	u, err := scanUser(r)
	if err != nil {
		if isNoRows(err) {
			return nil, ticketq.ErrUserNotFound
		}
		return nil, fmt.Errorf("ticketq/postgres: get user: %w", err)
	}
	return u, nil
}

func (s *Store) requireTicket(ctx context.Context, ticketID id.TicketID) error {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM ticketq_tickets WHERE id = $1)`,
		ticketID.String(),
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("ticketq/postgres: ticket exists: %w", err)
	}
	if !exists {
		return ticketq.ErrTicketNotFound
	}
	return nil
}
