// context.go carries the cxdb context ID a report belongs to through
// context.Context.

package diag

import "context"

type contextIDKey struct{}

// WithContextID attaches a cxdb context ID to ctx. Sinks that understand
// context IDs append reports to that context instead of creating one.
func WithContextID(ctx context.Context, contextID uint64) context.Context {
	return context.WithValue(ctx, contextIDKey{}, contextID)
}

// ContextIDFromContext returns the ID set by WithContextID. The boolean is
// false when none was set, which distinguishes an unset ID from ID 0.
func ContextIDFromContext(ctx context.Context) (uint64, bool) {
	id, ok := ctx.Value(contextIDKey{}).(uint64)
	return id, ok
}
