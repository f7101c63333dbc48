package job

import "context"

// Definition is a typed job definition with a handler function.
// T is the payload type (must be JSON-serializable).
//
// The handler returns the job result (stored on the job record for later
// retrieval; may be nil) and an error. A nil error marks the job completed;
// a non-nil error routes it through the retry policy. Handlers MUST be
// idempotent: the queue delivers at least once, so re-executing with the
// same payload must not duplicate externally visible side effects.
type Definition[T any] struct {
	// Type is the job type this handler processes.
	Type Type

	// Handler is the function that processes the job payload.
	Handler func(ctx context.Context, payload T) (any, error)
}

// NewDefinition creates a typed job definition.
func NewDefinition[T any](t Type, handler func(ctx context.Context, payload T) (any, error)) *Definition[T] {
	return &Definition[T]{
		Type:    t,
		Handler: handler,
	}
}
