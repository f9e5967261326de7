// Package scope carries the calling user's identity on a context.
//
// The admin API resolves the user once per request and every service below
// it reads the owner from the context instead of trusting request bodies.
package scope

import "context"

type userKey struct{}

// WithUser returns a copy of ctx carrying userID. An empty userID leaves ctx unchanged.
func WithUser(ctx context.Context, userID string) context.Context {
	if userID == "" {
		return ctx
	}
	return context.WithValue(ctx, userKey{}, userID)
}

// User returns the user carried by ctx, or "" when none was set.
func User(ctx context.Context) string {
	v, _ := ctx.Value(userKey{}).(string)
	return v
}

// Capture returns the user carried by ctx and whether one was present.
func Capture(ctx context.Context) (string, bool) {
	u := User(ctx)
	return u, u != ""
}
