package monitor

import (
	"context"
	"errors"
)

// Authorizer decides whether monitoring may start
type Authorizer interface {
	Authorize(ctx context.Context) error
}

// AuthorizerFunc adapts a function to Authorizer
type AuthorizerFunc func(ctx context.Context) error

func (f AuthorizerFunc) Authorize(ctx context.Context) error { return f(ctx) }

// SourceAuthorizer permits monitoring when at least one snapshot source
// can run on this system.
func SourceAuthorizer(p SnapshotProvider) Authorizer {
	return AuthorizerFunc(func(ctx context.Context) error {
		if !p.Available() {
			return &AuthorizationError{Reason: "no window or process source is available"}
		}
		return nil
	})
}

func asAuthorizationError(err error) *AuthorizationError {
	var authErr *AuthorizationError
	if errors.As(err, &authErr) {
		return authErr
	}
	return &AuthorizationError{Reason: "authorization check failed", Err: err}
}
