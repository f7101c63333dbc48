package postgres

import (
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/opsdeck/ticketq/automation"
	"github.com/opsdeck/ticketq/dlq"
	"github.com/opsdeck/ticketq/id"
	"github.com/opsdeck/ticketq/job"
	"github.com/opsdeck/ticketq/schedule"
	"github.com/opsdeck/ticketq/ticket"
)

// row is the shared scan surface of pgx.Row and pgx.Rows.
type row interface {
	Scan(dest ...any) error
}

// ── Job scanning ──────────────────────────────────────────────────

const jobColumns = `
	id, type, status, data, result, attempts, max_attempts,
	last_error, org_id, started_at, completed_at, retry_at,
	created_at, updated_at`

func scanJob(r row) (*job.Job, error) {
	var (
		j        job.Job
		rawID    string
		rawType  string
		rawState string
		rawOrg   string
	)
	err := r.Scan(
		&rawID, &rawType, &rawState, &j.Data, &j.Result,
		&j.Attempts, &j.MaxAttempts, &j.LastError, &rawOrg,
		&j.StartedAt, &j.CompletedAt, &j.RetryAt,
		&j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	j.ID, err = id.ParseJobID(rawID)
	if err != nil {
		return nil, fmt.Errorf("parse job id %q: %w", rawID, err)
	}
	j.Type = job.Type(rawType)
	j.Status = job.Status(rawState)
	if rawOrg != "" {
		j.OrgID, err = id.ParseOrgID(rawOrg)
		if err != nil {
			return nil, fmt.Errorf("parse org id %q: %w", rawOrg, err)
		}
	}
	return &j, nil
}

func collectJobs(rows pgx.Rows) ([]*job.Job, error) {
	var jobs []*job.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// ── Dead-letter record scanning ───────────────────────────────────

const recordColumns = `
	id, job_id, job_type, data, error, attempts, max_attempts,
	org_id, failed_at, retried_at, created_at`

func scanRecord(r row) (*dlq.Record, error) {
	var (
		rec     dlq.Record
		rawID   string
		rawJob  string
		rawType string
		rawOrg  string
	)
	err := r.Scan(
		&rawID, &rawJob, &rawType, &rec.Data, &rec.Error,
		&rec.Attempts, &rec.MaxAttempts, &rawOrg,
		&rec.FailedAt, &rec.RetriedAt, &rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.ID, err = id.ParseRecordID(rawID)
	if err != nil {
		return nil, fmt.Errorf("parse record id %q: %w", rawID, err)
	}
	rec.JobID, err = id.ParseJobID(rawJob)
	if err != nil {
		return nil, fmt.Errorf("parse record job id %q: %w", rawJob, err)
	}
	rec.JobType = job.Type(rawType)
	if rawOrg != "" {
		rec.OrgID, err = id.ParseOrgID(rawOrg)
		if err != nil {
			return nil, fmt.Errorf("parse org id %q: %w", rawOrg, err)
		}
	}
	return &rec, nil
}

func collectRecords(rows pgx.Rows) ([]*dlq.Record, error) {
	var records []*dlq.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ── Ticket scanning ───────────────────────────────────────────────

const ticketColumns = `
	id, org_id, subject, description, status, priority, category,
	assignee_id, requester_id, sla_response_due, sla_resolve_due,
	sla_warned_at, created_at, updated_at`

func scanTicket(r row) (*ticket.Ticket, error) {
	var (
		t           ticket.Ticket
		rawID       string
		rawOrg      string
		rawStatus   string
		rawPriority string
		rawCategory string
		rawAssignee *string
		rawReq      string
	)
	err := r.Scan(
		&rawID, &rawOrg, &t.Subject, &t.Description,
		&rawStatus, &rawPriority, &rawCategory,
		&rawAssignee, &rawReq,
		&t.SLAResponseDue, &t.SLAResolveDue, &t.SLAWarnedAt,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.ID, err = id.ParseTicketID(rawID)
	if err != nil {
		return nil, fmt.Errorf("parse ticket id %q: %w", rawID, err)
	}
	t.OrgID, err = id.ParseOrgID(rawOrg)
	if err != nil {
		return nil, fmt.Errorf("parse org id %q: %w", rawOrg, err)
	}
	t.Status = ticket.Status(rawStatus)
	t.Priority = ticket.Priority(rawPriority)
	t.Category = ticket.Category(rawCategory)
	if rawAssignee != nil && *rawAssignee != "" {
		assignee, aErr := id.ParseUserID(*rawAssignee)
		if aErr != nil {
			return nil, fmt.Errorf("parse assignee id %q: %w", *rawAssignee, aErr)
		}
		t.AssigneeID = &assignee
	}
	if rawReq != "" {
		t.RequesterID, err = id.ParseUserID(rawReq)
		if err != nil {
			return nil, fmt.Errorf("parse requester id %q: %w", rawReq, err)
		}
	}
	return &t, nil
}

func collectTickets(rows pgx.Rows) ([]*ticket.Ticket, error) {
	var tickets []*ticket.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}

// ── User scanning ─────────────────────────────────────────────────

const userColumns = `
	id, org_id, name, email, internal, created_at, updated_at`

func scanUser(r row) (*ticket.User, error) {
	var (
		u      ticket.User
		rawID  string
		rawOrg string
	)
	err := r.Scan(
		&rawID, &rawOrg, &u.Name, &u.Email, &u.Internal,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	u.ID, err = id.ParseUserID(rawID)
	if err != nil {
		return nil, fmt.Errorf("parse user id %q: %w", rawID, err)
	}
	u.OrgID, err = id.ParseOrgID(rawOrg)
	if err != nil {
		return nil, fmt.Errorf("parse org id %q: %w", rawOrg, err)
	}
	return &u, nil
}

// ── Rule scanning ─────────────────────────────────────────────────

const ruleColumns = `
	id, org_id, name, enabled, priority, trigger_on,
	conditions, actions, created_by, created_at, updated_at`

func scanRule(r row) (*automation.Rule, error) {
	var (
		rule       automation.Rule
		rawID      string
		rawOrg     string
		rawTrigger string
		rawConds   []byte
		rawActs    []byte
		rawCreator *string
	)
	err := r.Scan(
		&rawID, &rawOrg, &rule.Name, &rule.Enabled, &rule.Priority,
		&rawTrigger, &rawConds, &rawActs, &rawCreator,
		&rule.CreatedAt, &rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rule.ID, err = id.ParseRuleID(rawID)
	if err != nil {
		return nil, fmt.Errorf("parse rule id %q: %w", rawID, err)
	}
	rule.OrgID, err = id.ParseOrgID(rawOrg)
	if err != nil {
		return nil, fmt.Errorf("parse org id %q: %w", rawOrg, err)
	}
	rule.TriggerOn = automation.Trigger(rawTrigger)
	if err := json.Unmarshal(rawConds, &rule.Conditions); err != nil {
		return nil, fmt.Errorf("unmarshal rule conditions: %w", err)
	}
	if err := json.Unmarshal(rawActs, &rule.Actions); err != nil {
		return nil, fmt.Errorf("unmarshal rule actions: %w", err)
	}
	if rawCreator != nil && *rawCreator != "" {
		creator, cErr := id.ParseUserID(*rawCreator)
		if cErr != nil {
			return nil, fmt.Errorf("parse rule creator id %q: %w", *rawCreator, cErr)
		}
		rule.CreatedBy = &creator
	}
	return &rule, nil
}

func collectRules(rows pgx.Rows) ([]*automation.Rule, error) {
	var rules []*automation.Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// ── Schedule entry scanning ───────────────────────────────────────

const entryColumns = `
	id, name, schedule, job_type, payload, org_id,
	last_run_at, next_run_at, locked_by, locked_until, enabled,
	created_at, updated_at`

func scanEntry(r row) (*schedule.Entry, error) {
	var (
		e       schedule.Entry
		rawID   string
		rawType string
		rawOrg  string
	)
	err := r.Scan(
		&rawID, &e.Name, &e.Schedule, &rawType, &e.Payload, &rawOrg,
		&e.LastRunAt, &e.NextRunAt, &e.LockedBy, &e.LockedUntil,
		&e.Enabled, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.ID, err = id.ParseEntryID(rawID)
	if err != nil {
		return nil, fmt.Errorf("parse entry id %q: %w", rawID, err)
	}
	e.JobType = job.Type(rawType)
	if rawOrg != "" {
		e.OrgID, err = id.ParseOrgID(rawOrg)
		if err != nil {
			return nil, fmt.Errorf("parse org id %q: %w", rawOrg, err)
		}
	}
	return &e, nil
}
