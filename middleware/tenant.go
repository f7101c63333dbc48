package middleware

import (
	"context"

	"github.com/opsdeck/ticketq/job"
	"github.com/opsdeck/ticketq/tenant"
)

// Tenant returns middleware that restores the tenant identity from the
// job's OrgID field into the context. This ensures handlers see the
// same org as the original enqueue caller.
func Tenant() Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		ctx = tenant.Restore(ctx, j.OrgID)
		return next(ctx)
	}
}
