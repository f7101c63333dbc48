// Package tenant provides helpers to capture and restore the tenant
// (organization) identity from/to context.Context.
//
// Jobs persist their OrgID; these helpers bridge between that field and
// the context so handlers see the same tenant as the original enqueue
// caller.
package tenant

import (
	"context"

	"github.com/opsdeck/ticketq/id"
)

type ctxKey struct{}

// Capture extracts the org identifier from the context. Returns a nil
// ID if no tenant is present.
func Capture(ctx context.Context) id.OrgID {
	orgID, ok := ctx.Value(ctxKey{}).(id.OrgID)
	if !ok {
		return id.ID{}
	}
	return orgID
}

// Restore attaches the org identity to the context. A nil org ID
// returns the context unchanged.
func Restore(ctx context.Context, orgID id.OrgID) context.Context {
	if orgID.IsNil() {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, orgID)
}
