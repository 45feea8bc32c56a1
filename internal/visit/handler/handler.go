// Package handler wires the host-facing visit endpoints to the visit
// service.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"passage/internal/visit/models"
	"passage/internal/visit/service"
	id "passage/pkg/domain"
	dErrors "passage/pkg/domain-errors"
	"passage/pkg/platform/httputil"
	"passage/pkg/requestcontext"
)

// Service defines the interface for visit lifecycle operations.
type Service interface {
	CreateVisit(ctx context.Context, hostID id.HostID, req *models.CreateVisitRequest) (*models.CreatedVisit, error)
	GetVisit(ctx context.Context, visitID id.VisitID) (*service.VisitDetails, error)
	ListVisits(ctx context.Context, hostID id.HostID) ([]*models.Visit, error)
	CancelVisit(ctx context.Context, visitID id.VisitID) (*models.Visit, error)
	ReissueCode(ctx context.Context, visitID id.VisitID) (*models.CreatedVisit, error)
	CodePNG(ctx context.Context, visitID id.VisitID, size int) ([]byte, error)
}

// Handler wires visit endpoints to the visit service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a visit handler with its dependencies.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Register mounts visit endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/visits", h.HandleCreate)
	r.Get("/visits", h.HandleList)
	r.Get("/visits/{visitID}", h.HandleGet)
	r.Post("/visits/{visitID}/cancel", h.HandleCancel)
	r.Post("/visits/{visitID}/reissue", h.HandleReissue)
	r.Get("/visits/{visitID}/qr.png", h.HandleCodePNG)
}

// HandleCreate handles POST /visits requests.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	hostID, ok := h.requireHost(w, ctx)
	if !ok {
		return
	}

	req, ok := httputil.DecodeAndPrepare[models.CreateVisitRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	created, err := h.service.CreateVisit(ctx, hostID, req)
	if err != nil {
		h.logger.WarnContext(ctx, "visit creation rejected",
			"request_id", requestID,
			"host_id", hostID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "visit created",
		"request_id", requestID,
		"host_id", hostID,
		"visit_id", created.VisitID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusCreated, created)
}

// HandleList handles GET /visits requests.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	hostID, ok := h.requireHost(w, ctx)
	if !ok {
		return
	}

	visits, err := h.service.ListVisits(ctx, hostID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"visits": visits})
}

// HandleGet handles GET /visits/{visitID} requests.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	visitID, ok := h.pathVisitID(w, r)
	if !ok {
		return
	}

	details, err := h.service.GetVisit(ctx, visitID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, details)
}

// HandleCancel handles POST /visits/{visitID}/cancel requests.
func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	if _, ok := h.requireHost(w, ctx); !ok {
		return
	}
	visitID, ok := h.pathVisitID(w, r)
	if !ok {
		return
	}

	visit, err := h.service.CancelVisit(ctx, visitID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "visit cancelled",
		"request_id", requestID,
		"visit_id", visitID,
	)
	httputil.WriteJSON(w, http.StatusOK, visit)
}

// HandleReissue handles POST /visits/{visitID}/reissue requests.
func (h *Handler) HandleReissue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	if _, ok := h.requireHost(w, ctx); !ok {
		return
	}
	visitID, ok := h.pathVisitID(w, r)
	if !ok {
		return
	}

	reissued, err := h.service.ReissueCode(ctx, visitID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "qr code reissued",
		"request_id", requestID,
		"visit_id", visitID,
	)
	httputil.WriteJSON(w, http.StatusOK, reissued)
}

// HandleCodePNG handles GET /visits/{visitID}/qr.png requests.
func (h *Handler) HandleCodePNG(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	visitID, ok := h.pathVisitID(w, r)
	if !ok {
		return
	}

	size := 256
	if raw := r.URL.Query().Get("size"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 64 || parsed > 1024 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "size must be between 64 and 1024"))
			return
		}
		size = parsed
	}

	png, err := h.service.CodePNG(ctx, visitID, size)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

func (h *Handler) requireHost(w http.ResponseWriter, ctx context.Context) (id.HostID, bool) {
	hostID, err := id.ParseHostID(requestcontext.ActorID(ctx))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return id.HostID{}, false
	}
	return hostID, true
}

func (h *Handler) pathVisitID(w http.ResponseWriter, r *http.Request) (id.VisitID, bool) {
	visitID, err := id.ParseVisitID(chi.URLParam(r, "visitID"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.VisitID{}, false
	}
	return visitID, true
}
