// Package httpapi assembles the public router: middleware chain, health and
// metrics endpoints, and the authenticated API surface.
package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	banhandler "passage/internal/ban/handler"
	licensehandler "passage/internal/license/handler"
	"passage/internal/platform/middleware"
	scanhandler "passage/internal/scan/handler"
	visithandler "passage/internal/visit/handler"
)

// Handlers collects the feature handlers the router mounts.
type Handlers struct {
	Visits   *visithandler.Handler
	Scans    *scanhandler.Handler
	Bans     *banhandler.Handler
	Licenses *licensehandler.Handler
}

// NewRouter wires all endpoints. Health and metrics stay outside the auth
// boundary; everything else requires a bearer token.
func NewRouter(h Handlers, validator middleware.JWTValidator, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.RequestTime)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))
		r.Use(middleware.ContentTypeJSON)
		r.Use(middleware.Device)
		r.Use(middleware.RequireAuth(validator, logger))

		h.Visits.Register(r)
		h.Scans.Register(r)
		h.Bans.Register(r)
		h.Licenses.Register(r)
	})

	return r
}
