package ticketq

import "errors"

var (
	// Store errors.
	ErrNoStore         = errors.New("ticketq: no store configured")
	ErrStoreClosed     = errors.New("ticketq: store closed")
	ErrMigrationFailed = errors.New("ticketq: migration failed")

	// Not found errors.
	ErrJobNotFound    = errors.New("ticketq: job not found")
	ErrRecordNotFound = errors.New("ticketq: dead-letter record not found")
	ErrRuleNotFound   = errors.New("ticketq: automation rule not found")
	ErrTicketNotFound = errors.New("ticketq: ticket not found")
	ErrUserNotFound   = errors.New("ticketq: user not found")
	ErrEntryNotFound  = errors.New("ticketq: schedule entry not found")

	// Conflict errors.
	ErrJobAlreadyExists = errors.New("ticketq: job already exists")
	ErrDuplicateEntry   = errors.New("ticketq: duplicate schedule entry")

	// State errors.
	ErrInvalidState       = errors.New("ticketq: invalid state transition")
	ErrAttemptsExhausted  = errors.New("ticketq: attempts exhausted")
	ErrHandlerNotFound    = errors.New("ticketq: no handler registered")
	ErrNoEligibleAssignee = errors.New("ticketq: no eligible assignee")
)
