package requestid

import (
	"context"

	"github.com/oklog/ulid/v2"
)

// requestIDKey is an unexported type for context keys within this package.
type requestIDKey struct{}

// New mints a lexicographically sortable request ID.
func New() string {
	return ulid.Make().String()
}

// FromContext fetches a request ID from the context if present.
func FromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if val, ok := ctx.Value(requestIDKey{}).(string); ok {
		return val
	}
	return ""
}

// WithRequestID sets the request ID onto the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, id)
}

// Ensure guarantees a request ID on the context, generating one when missing.
func Ensure(ctx context.Context) (context.Context, string) {
	id := FromContext(ctx)
	if id == "" {
		id = New()
	}
	return WithRequestID(ctx, id), id
}
