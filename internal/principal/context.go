package principal

import "context"

type contextKey struct{}

// ContextWith stores the resolved principal in context.
func ContextWith(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

// FromContext extracts the principal from context.
func FromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(contextKey{}).(*Principal)
	return p
}
