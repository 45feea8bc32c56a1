package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"passage/pkg/requestcontext"
)

// JWTValidator defines the interface for validating JWT tokens.
type JWTValidator interface {
	ValidateToken(tokenString string) (*JWTClaims, error)
}

// JWTClaims represents the claims we expect from the JWT validator.
type JWTClaims struct {
	ActorID string
	Role    string
}

type contextKeyActorRole struct{}

// ContextKeyActorRole is exported for use in handlers and tests.
var ContextKeyActorRole = contextKeyActorRole{}

// GetActorID retrieves the authenticated actor from the context.
func GetActorID(ctx context.Context) string {
	return requestcontext.ActorID(ctx)
}

// GetActorRole retrieves the authenticated actor's role from the context.
func GetActorRole(ctx context.Context) string {
	role, ok := ctx.Value(ContextKeyActorRole).(string)
	if !ok {
		return ""
	}
	return role
}

// RequireAuth validates the bearer token and stores the actor identity in
// the request context. Hosts create visits; officers submit scans; admins
// manage bans and licenses.
func RequireAuth(validator JWTValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok {
				unauthorized(w, r, logger, "missing or invalid Authorization header")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(r.Context(), "unauthorized access - invalid token",
					"error", err,
					"request_id", requestcontext.RequestID(r.Context()),
				)
				unauthorized(w, r, logger, "invalid or expired token")
				return
			}

			ctx := requestcontext.WithActorID(r.Context(), claims.ActorID)
			ctx = context.WithValue(ctx, ContextKeyActorRole, claims.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter, r *http.Request, logger *slog.Logger, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	if _, err := w.Write([]byte(`{"error":"unauthorized","error_description":"` + description + `"}`)); err != nil {
		logger.ErrorContext(r.Context(), "failed to write unauthorized response",
			"error", err,
			"request_id", requestcontext.RequestID(r.Context()),
		)
	}
}
