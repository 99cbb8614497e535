package auth

import "context"

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// ActorContextKey is the key for storing the Actor in request context
	ActorContextKey ContextKey = "actor"
)

// Actor is the authenticated user a request acts on behalf of. It is injected
// into the request context by the auth middleware from a verified token.
//
// ID is what the enrollment records are stamped with as creator and last
// updater; Company selects the enrollment policy that applies.
type Actor struct {
	ID      string
	Email   string
	Company string
}

// WithActor returns a copy of ctx carrying actor.
func WithActor(ctx context.Context, actor *Actor) context.Context {
	return context.WithValue(ctx, ActorContextKey, actor)
}

// ActorFromContext extracts the Actor from a request context.
// Returns nil if no actor is available (request had no valid token).
//
// Usage in handlers:
//
//	actor := auth.ActorFromContext(r.Context())
//	if actor == nil {
//	    // Handle unauthorized request
//	}
func ActorFromContext(ctx context.Context) *Actor {
	actor, ok := ctx.Value(ActorContextKey).(*Actor)
	if !ok {
		return nil
	}
	return actor
}
