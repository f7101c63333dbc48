package handlers

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"time"

	"github.com/opsdeck/ticketq/id"
	"github.com/opsdeck/ticketq/job"
	"github.com/opsdeck/ticketq/ticket"
)

// ExportPayload is the generate_export job payload: a ticket export
// scoped to one requester within an org.
type ExportPayload struct {
	OrgID       id.OrgID  `json:"org_id"`
	RequesterID id.UserID `json:"requester_id"`
}

// OrgExportPayload is the generate_org_export job payload: every ticket
// in the org.
type OrgExportPayload struct {
	OrgID id.OrgID `json:"org_id"`
}

// BlobStore is the injected export storage. Put overwrites any existing
// object under the same key and returns a retrievable URL.
type BlobStore interface {
	Put(ctx context.Context, key string, contentType string, data []byte) (string, error)
}

// ExportResult is the job result for both export types.
type ExportResult struct {
	Key     string `json:"key"`
	URL     string `json:"url"`
	Tickets int    `json:"tickets"`
}

// NewGenerateExport returns the generate_export handler definition.
// The blob key is derived from the payload, so a retried job overwrites
// its own earlier output instead of producing a second file.
func NewGenerateExport(tickets ticket.Store, blobs BlobStore) *job.Definition[ExportPayload] {
	return job.NewDefinition(job.TypeGenerateExport, func(ctx context.Context, p ExportPayload) (any, error) {
		if p.OrgID.IsNil() || p.RequesterID.IsNil() {
			return nil, fmt.Errorf("handlers: generate_export: org and requester are required")
		}

		all, err := tickets.ListTickets(ctx, ticket.ListOpts{OrgID: p.OrgID})
		if err != nil {
			return nil, fmt.Errorf("handlers: generate_export list tickets: %w", err)
		}
		var mine []*ticket.Ticket
		for _, t := range all {
			if t.RequesterID == p.RequesterID {
				mine = append(mine, t)
			}
		}

		data, err := renderTicketCSV(mine)
		if err != nil {
			return nil, fmt.Errorf("handlers: generate_export render: %w", err)
		}

		key := fmt.Sprintf("exports/%s/requester/%s.csv", p.OrgID, p.RequesterID)
		url, err := blobs.Put(ctx, key, "text/csv", data)
		if err != nil {
			return nil, fmt.Errorf("handlers: generate_export store %s: %w", key, err)
		}
		return ExportResult{Key: key, URL: url, Tickets: len(mine)}, nil
	})
}

// NewGenerateOrgExport returns the generate_org_export handler definition.
func NewGenerateOrgExport(tickets ticket.Store, blobs BlobStore) *job.Definition[OrgExportPayload] {
	return job.NewDefinition(job.TypeGenerateOrgExport, func(ctx context.Context, p OrgExportPayload) (any, error) {
		if p.OrgID.IsNil() {
			return nil, fmt.Errorf("handlers: generate_org_export: org is required")
		}

		all, err := tickets.ListTickets(ctx, ticket.ListOpts{OrgID: p.OrgID})
		if err != nil {
			return nil, fmt.Errorf("handlers: generate_org_export list tickets: %w", err)
		}

		data, err := renderTicketCSV(all)
		if err != nil {
			return nil, fmt.Errorf("handlers: generate_org_export render: %w", err)
		}

		key := fmt.Sprintf("exports/%s/org.csv", p.OrgID)
		url, err := blobs.Put(ctx, key, "text/csv", data)
		if err != nil {
			return nil, fmt.Errorf("handlers: generate_org_export store %s: %w", key, err)
		}
		return ExportResult{Key: key, URL: url, Tickets: len(all)}, nil
	})
}

func renderTicketCSV(tickets []*ticket.Ticket) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	header := []string{"id", "subject", "status", "priority", "category", "assignee", "created_at"}
	if err := w.Write(header); err != nil {
		return nil, err
	}
	for _, t := range tickets {
		assignee := ""
		if t.Assigned() {
			assignee = t.AssigneeID.String()
		}
		row := []string{
			t.ID.String(),
			t.Subject,
			string(t.Status),
			string(t.Priority),
			string(t.Category),
			assignee,
			t.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
