package model

import "context"

type userIDKey struct{}

// WithUserID attaches the internal user id to ctx so downstream HTTP
// transports (LLM providers) can propagate it without threading it through
// every function signature.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// GetUserIDFromContext retrieves the user id set by WithUserID.
func GetUserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(userIDKey{}).(string)
	return userID, ok
}
