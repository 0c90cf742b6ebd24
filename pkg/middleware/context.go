package middleware

import (
	"context"

	"github.com/serandules/throttle/pkg/throttle"
)

type contextKey int

const (
	tokenKey contextKey = iota
	actionKey
	requestIDKey
)

// WithToken stores the request's authenticated token in ctx. The auth layer
// calls this before the throttle middleware runs.
func WithToken(ctx context.Context, token *throttle.Token) context.Context {
	return context.WithValue(ctx, tokenKey, token)
}

// TokenFromContext returns the token stored by WithToken, or nil.
func TokenFromContext(ctx context.Context) *throttle.Token {
	token, _ := ctx.Value(tokenKey).(*throttle.Token)
	return token
}

// WithAction overrides the action classification for this request, taking
// precedence over the HTTP method mapping.
func WithAction(ctx context.Context, action throttle.Action) context.Context {
	return context.WithValue(ctx, actionKey, action)
}

// ActionFromContext returns the override stored by WithAction, or "".
func ActionFromContext(ctx context.Context) throttle.Action {
	action, _ := ctx.Value(actionKey).(throttle.Action)
	return action
}

// RequestIDFromContext returns the id assigned by the RequestID middleware,
// or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
