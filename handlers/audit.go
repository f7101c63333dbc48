package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/opsdeck/ticketq/job"
)

// defaultRetentionDays is how long audit entries are kept when the
// payload does not say otherwise.
const defaultRetentionDays = 90

// AuditCompactionPayload is the audit_compaction job payload.
type AuditCompactionPayload struct {
	RetentionDays int `json:"retention_days,omitempty"`
}

// AuditLog is the injected audit storage the compaction job prunes.
type AuditLog interface {
	// CompactBefore removes entries older than the cutoff and returns
	// how many were removed.
	CompactBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// AuditCompactionResult is the audit_compaction job result.
type AuditCompactionResult struct {
	Cutoff  time.Time `json:"cutoff"`
	Removed int64     `json:"removed"`
}

// NewAuditCompaction returns the audit_compaction handler definition.
// Compaction deletes strictly by cutoff, so redelivery removes nothing
// the first run did not already remove.
func NewAuditCompaction(audit AuditLog) *job.Definition[AuditCompactionPayload] {
	return job.NewDefinition(job.TypeAuditCompaction, func(ctx context.Context, p AuditCompactionPayload) (any, error) {
		days := p.RetentionDays
		if days <= 0 {
			days = defaultRetentionDays
		}
		cutoff := time.Now().UTC().AddDate(0, 0, -days)

		removed, err := audit.CompactBefore(ctx, cutoff)
		if err != nil {
			return nil, fmt.Errorf("handlers: audit_compaction before %s: %w", cutoff.Format(time.RFC3339), err)
		}
		return AuditCompactionResult{Cutoff: cutoff, Removed: removed}, nil
	})
}
