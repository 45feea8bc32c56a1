package testutil

import (
	"net/http"
	"time"

	"passage/pkg/requestcontext"
)

// WithActor adds an authenticated actor to the request context.
// This simulates what the auth middleware would do for authenticated requests.
func WithActor(req *http.Request, actorID string) *http.Request {
	return req.WithContext(requestcontext.WithActorID(req.Context(), actorID))
}

// WithGate adds a gate label to the request context, as the scan handler
// expects for requests coming from a gate station.
func WithGate(req *http.Request, gate string) *http.Request {
	return req.WithContext(requestcontext.WithGate(req.Context(), gate))
}

// WithFrozenTime pins the request-scoped clock, so handlers under test see a
// deterministic "now".
func WithFrozenTime(req *http.Request, t time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), t))
}
