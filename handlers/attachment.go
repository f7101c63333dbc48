package handlers

import (
	"context"
	"fmt"

	"github.com/opsdeck/ticketq/job"
)

// ScanStatus is the attachment scan state machine. Clean, Infected, and
// ScanError are terminal.
type ScanStatus string

const (
	ScanPending  ScanStatus = "PENDING"
	ScanScanning ScanStatus = "SCANNING"
	ScanClean    ScanStatus = "CLEAN"
	ScanInfected ScanStatus = "INFECTED"
	ScanError    ScanStatus = "ERROR"
)

// Terminal reports whether the status is a final scan verdict.
func (s ScanStatus) Terminal() bool {
	return s == ScanClean || s == ScanInfected || s == ScanError
}

// AttachmentPayload is the process_attachment job payload.
type AttachmentPayload struct {
	AttachmentID string `json:"attachment_id"`
}

// AttachmentStatuses persists the per-attachment scan status.
type AttachmentStatuses interface {
	GetScanStatus(ctx context.Context, attachmentID string) (ScanStatus, error)
	SetScanStatus(ctx context.Context, attachmentID string, status ScanStatus) error
}

// Scanner is the injected virus-scanning capability. It returns
// ScanClean or ScanInfected.
type Scanner interface {
	Scan(ctx context.Context, attachmentID string) (ScanStatus, error)
}

// ScanResult is the process_attachment job result.
type ScanResult struct {
	AttachmentID string     `json:"attachment_id"`
	Status       ScanStatus `json:"status"`
}

// NewProcessAttachment returns the process_attachment handler definition.
// An attachment whose stored status is already terminal is not rescanned;
// the handler reports the existing verdict, which makes redelivery safe.
func NewProcessAttachment(statuses AttachmentStatuses, scanner Scanner) *job.Definition[AttachmentPayload] {
	return job.NewDefinition(job.TypeProcessAttachment, func(ctx context.Context, p AttachmentPayload) (any, error) {
		if p.AttachmentID == "" {
			return nil, fmt.Errorf("handlers: process_attachment: empty attachment id")
		}

		current, err := statuses.GetScanStatus(ctx, p.AttachmentID)
		if err != nil {
			return nil, fmt.Errorf("handlers: process_attachment status %s: %w", p.AttachmentID, err)
		}
		if current.Terminal() {
			return ScanResult{AttachmentID: p.AttachmentID, Status: current}, nil
		}

		if err := statuses.SetScanStatus(ctx, p.AttachmentID, ScanScanning); err != nil {
			return nil, fmt.Errorf("handlers: process_attachment mark scanning %s: %w", p.AttachmentID, err)
		}

		verdict, scanErr := scanner.Scan(ctx, p.AttachmentID)
		if scanErr != nil {
			// Scanner failures go back to PENDING so a retry rescans.
			if resetErr := statuses.SetScanStatus(ctx, p.AttachmentID, ScanPending); resetErr != nil {
				return nil, fmt.Errorf("handlers: process_attachment reset %s after scan error: %w", p.AttachmentID, resetErr)
			}
			return nil, fmt.Errorf("handlers: process_attachment scan %s: %w", p.AttachmentID, scanErr)
		}
		if verdict != ScanClean && verdict != ScanInfected {
			verdict = ScanError
		}

		if err := statuses.SetScanStatus(ctx, p.AttachmentID, verdict); err != nil {
			return nil, fmt.Errorf("handlers: process_attachment persist verdict %s: %w", p.AttachmentID, err)
		}
		return ScanResult{AttachmentID: p.AttachmentID, Status: verdict}, nil
	})
}
