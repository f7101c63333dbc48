package handlers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/opsdeck/ticketq/job"
)

// dedupeWindow is how long a sent email suppresses an identical resend.
// The queue delivers at least once; this window turns redelivery into a
// no-op instead of a duplicate email.
const dedupeWindow = time.Hour

// EmailPayload is the send_email job payload.
type EmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
	Text    string `json:"text,omitempty"`
}

// Mailer is the injected email-sending capability.
type Mailer interface {
	Send(ctx context.Context, msg EmailPayload) error
}

// SentLog records delivered emails so retries can detect an already-sent
// message.
type SentLog interface {
	// AlreadySent reports whether the keyed message was sent at or
	// after the given time.
	AlreadySent(ctx context.Context, key string, since time.Time) (bool, error)

	// MarkSent records that the keyed message was sent at the given time.
	MarkSent(ctx context.Context, key string, at time.Time) error
}

// emailKey derives the dedupe key from the message content, so two jobs
// carrying the same email collapse regardless of job identity.
func emailKey(msg EmailPayload) string {
	h := sha256.New()
	h.Write([]byte(msg.To))
	h.Write([]byte{0})
	h.Write([]byte(msg.Subject))
	h.Write([]byte{0})
	h.Write([]byte(msg.HTML))
	return hex.EncodeToString(h.Sum(nil))
}

// NewSendEmail returns the send_email handler definition.
func NewSendEmail(mailer Mailer, sent SentLog) *job.Definition[EmailPayload] {
	return job.NewDefinition(job.TypeSendEmail, func(ctx context.Context, p EmailPayload) (any, error) {
		if p.To == "" {
			return nil, fmt.Errorf("handlers: send_email: empty recipient")
		}

		key := emailKey(p)
		now := time.Now().UTC()
		dup, err := sent.AlreadySent(ctx, key, now.Add(-dedupeWindow))
		if err != nil {
			return nil, fmt.Errorf("handlers: send_email dedupe check: %w", err)
		}
		if dup {
			return map[string]any{"deduplicated": true}, nil
		}

		if err := mailer.Send(ctx, p); err != nil {
			return nil, fmt.Errorf("handlers: send_email to %s: %w", p.To, err)
		}
		if err := sent.MarkSent(ctx, key, now); err != nil {
			return nil, fmt.Errorf("handlers: send_email mark sent: %w", err)
		}
		return map[string]any{"sent_at": now}, nil
	})
}
