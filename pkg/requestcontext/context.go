// Package requestcontext provides HTTP-independent accessors for
// request-scoped values.
//
// Middleware sets these values; services and stores read them without
// importing net/http. The injectable clock (Now/WithTime) is what makes
// QR expiry boundaries unit-testable.
package requestcontext

import (
	"context"
	"time"
)

type (
	actorIDKey     struct{}
	gateKey        struct{}
	deviceKey      struct{}
	clientIPKey    struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

// Exported context keys for tests that need raw context.WithValue.
var (
	ContextKeyActorID     = actorIDKey{}
	ContextKeyGate        = gateKey{}
	ContextKeyDevice      = deviceKey{}
	ContextKeyClientIP    = clientIPKey{}
	ContextKeyRequestID   = requestIDKey{}
	ContextKeyRequestTime = requestTimeKey{}
)

// ActorID retrieves the authenticated caller (host, admin, or officer)
// from the context. Empty when the request is unauthenticated.
func ActorID(ctx context.Context) string {
	if v, ok := ctx.Value(ContextKeyActorID).(string); ok {
		return v
	}
	return ""
}

// WithActorID injects the authenticated caller into the context.
func WithActorID(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, ContextKeyActorID, actorID)
}

// Gate retrieves the gate label of the scanning station, if any.
func Gate(ctx context.Context) string {
	if v, ok := ctx.Value(ContextKeyGate).(string); ok {
		return v
	}
	return ""
}

// WithGate injects a gate label into the context.
func WithGate(ctx context.Context, gate string) context.Context {
	return context.WithValue(ctx, ContextKeyGate, gate)
}

// Device retrieves the scanning device description parsed from the
// User-Agent header. Empty for non-gate clients.
func Device(ctx context.Context) string {
	if v, ok := ctx.Value(ContextKeyDevice).(string); ok {
		return v
	}
	return ""
}

// WithDevice injects a device description into the context.
func WithDevice(ctx context.Context, device string) context.Context {
	return context.WithValue(ctx, ContextKeyDevice, device)
}

// ClientIP retrieves the client IP address from the context.
func ClientIP(ctx context.Context) string {
	if v, ok := ctx.Value(ContextKeyClientIP).(string); ok {
		return v
	}
	return ""
}

// WithClientIP injects the client IP address into the context.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, ContextKeyClientIP, ip)
}

// RequestID retrieves the correlation ID from the context.
func RequestID(ctx context.Context) string {
	if v, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return v
	}
	return ""
}

// WithRequestID injects a correlation ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// Now retrieves the request-scoped time from context. Falls back to
// time.Now() for non-HTTP contexts (sweepers, CLI, tests that don't care).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context. Used by the request-time
// middleware, by sweepers that need a consistent batch timestamp, and by
// tests exercising expiry boundaries.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}
