package api

import "context"

type contextKey string

const currentUserKey contextKey = "currentUser"

// ContextWithCurrentUser stores the resolved identity for downstream handlers.
func ContextWithCurrentUser(ctx context.Context, user *CurrentUser) context.Context {
	return context.WithValue(ctx, currentUserKey, user)
}

// CurrentUserFromContext returns the identity placed by the authentication guard.
func CurrentUserFromContext(ctx context.Context) (*CurrentUser, bool) {
	user, ok := ctx.Value(currentUserKey).(*CurrentUser)
	return user, ok
}
