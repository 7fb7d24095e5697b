package cpqlorm

import "context"

// TenantContext is the ambient, per-logical-task tenant identifier
// (spec.md §4.H). Go has no async-local/continuation-local storage
// primitive, so per spec.md §9's redesign guidance ("when not available,
// every public operation must accept an explicit context parameter") the
// tenant value rides context.Context rather than a goroutine-local slot.
// set/clear/current are expressed as pure functions over a context so the
// "ambient" value is still explicit at every call site, matching how the
// teacher threads ctx context.Context through every Model[T] operation.
type tenantKey struct{}

// WithTenant returns a context carrying tenantID as the ambient tenant.
// Switching tenants between operations is done by deriving a new context
// from a different call to WithTenant; it never mutates a shared value.
func WithTenant(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantKey{}, tenantID)
}

// WithoutTenant clears the ambient tenant for the derived context.
func WithoutTenant(ctx context.Context) context.Context {
	return context.WithValue(ctx, tenantKey{}, "")
}

// CurrentTenant returns the ambient tenant identifier and whether one is
// set. The entity manager and SQL generator read this without mutating it.
func CurrentTenant(ctx context.Context) (string, bool) {
	v, _ := ctx.Value(tenantKey{}).(string)
	return v, v != ""
}
