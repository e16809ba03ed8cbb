// Package auditcontext carries request attributes captured at the HTTP edge
// so audit rows can record who acted from where.
package auditcontext

import (
	"context"
	"strings"
)

type requestIDKey struct{}
type ipAddressKey struct{}
type userAgentKey struct{}
type actorKey struct{}

type actor struct {
	Type string
	ID   string
}

// WithRequestID records the correlation ID for audit entries.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestIDFromContext returns the correlation ID or empty.
func RequestIDFromContext(ctx context.Context) string {
	return stringFromContext(ctx, requestIDKey{})
}

// WithIPAddress records the client IP for audit entries.
func WithIPAddress(ctx context.Context, ip string) context.Context {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return ctx
	}
	return context.WithValue(ctx, ipAddressKey{}, ip)
}

// IPAddressFromContext returns the client IP or empty.
func IPAddressFromContext(ctx context.Context) string {
	return stringFromContext(ctx, ipAddressKey{})
}

// WithUserAgent records the client user agent for audit entries.
func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	userAgent = strings.TrimSpace(userAgent)
	if userAgent == "" {
		return ctx
	}
	return context.WithValue(ctx, userAgentKey{}, userAgent)
}

// UserAgentFromContext returns the client user agent or empty.
func UserAgentFromContext(ctx context.Context) string {
	return stringFromContext(ctx, userAgentKey{})
}

// WithActor records the acting principal for audit entries.
func WithActor(ctx context.Context, actorType, actorID string) context.Context {
	actorType = strings.TrimSpace(actorType)
	actorID = strings.TrimSpace(actorID)
	if actorType == "" && actorID == "" {
		return ctx
	}
	return context.WithValue(ctx, actorKey{}, actor{Type: actorType, ID: actorID})
}

// ActorFromContext returns the acting principal, or empty strings.
func ActorFromContext(ctx context.Context) (string, string) {
	if ctx == nil {
		return "", ""
	}
	if value, ok := ctx.Value(actorKey{}).(actor); ok {
		return value.Type, value.ID
	}
	return "", ""
}

func stringFromContext(ctx context.Context, key any) string {
	if ctx == nil {
		return ""
	}
	if value, ok := ctx.Value(key).(string); ok {
		return value
	}
	return ""
}
