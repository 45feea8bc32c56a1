// Package handler exposes the license accountant's admin endpoints.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"passage/internal/license/models"
	"passage/internal/platform/middleware"
	id "passage/pkg/domain"
	dErrors "passage/pkg/domain-errors"
	"passage/pkg/platform/httputil"
	"passage/pkg/requestcontext"
)

// Service defines the interface for license accounting operations.
type Service interface {
	SetBuildingCap(ctx context.Context, buildingID id.BuildingID, total int) (*models.BuildingLicenseState, error)
	GetState(ctx context.Context, buildingID id.BuildingID) (*models.BuildingLicenseState, error)
	OnboardUser(ctx context.Context, buildingID id.BuildingID, userID id.UserID) error
	DeactivateUser(ctx context.Context, buildingID id.BuildingID, userID id.UserID) error
}

// Handler wires license endpoints to the license service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a license handler with its dependencies.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Register mounts license endpoints on the router. All of them are admin
// operations.
func (h *Handler) Register(r chi.Router) {
	r.Put("/buildings/{buildingID}/licenses", h.HandleSetCap)
	r.Get("/buildings/{buildingID}/licenses", h.HandleGetState)
	r.Post("/buildings/{buildingID}/users", h.HandleOnboard)
	r.Delete("/buildings/{buildingID}/users/{userID}", h.HandleDeactivate)
}

// SetCapRequest carries the new license total for a building.
type SetCapRequest struct {
	TotalLicenses int `json:"total_licenses"`
}

func (r *SetCapRequest) Validate() error {
	if r.TotalLicenses < 0 {
		return dErrors.New(dErrors.CodeValidation, "total_licenses must not be negative")
	}
	return nil
}

// OnboardRequest names the user to activate.
type OnboardRequest struct {
	UserID string `json:"user_id"`
}

func (r *OnboardRequest) Validate() error {
	if r.UserID == "" {
		return dErrors.New(dErrors.CodeValidation, "user_id is required")
	}
	return nil
}

// HandleSetCap handles PUT /buildings/{buildingID}/licenses requests.
func (h *Handler) HandleSetCap(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	buildingID, ok := h.requireAdminAndBuilding(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[SetCapRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	state, err := h.service.SetBuildingCap(ctx, buildingID, req.TotalLicenses)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "building license cap set",
		"request_id", requestID,
		"building_id", buildingID,
		"total_licenses", req.TotalLicenses,
	)
	httputil.WriteJSON(w, http.StatusOK, state)
}

// HandleGetState handles GET /buildings/{buildingID}/licenses requests.
func (h *Handler) HandleGetState(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	buildingID, ok := h.requireAdminAndBuilding(w, r)
	if !ok {
		return
	}

	state, err := h.service.GetState(ctx, buildingID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, state)
}

// HandleOnboard handles POST /buildings/{buildingID}/users requests.
func (h *Handler) HandleOnboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	buildingID, ok := h.requireAdminAndBuilding(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[OnboardRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	userID, err := id.ParseUserID(req.UserID)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "user_id is not a valid id"))
		return
	}

	if err := h.service.OnboardUser(ctx, buildingID, userID); err != nil {
		h.logger.WarnContext(ctx, "user onboarding rejected",
			"request_id", requestID,
			"building_id", buildingID,
			"user_id", userID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "user onboarded",
		"request_id", requestID,
		"building_id", buildingID,
		"user_id", userID,
	)
	w.WriteHeader(http.StatusNoContent)
}

// HandleDeactivate handles DELETE /buildings/{buildingID}/users/{userID}
// requests.
func (h *Handler) HandleDeactivate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	buildingID, ok := h.requireAdminAndBuilding(w, r)
	if !ok {
		return
	}
	userID, err := id.ParseUserID(chi.URLParam(r, "userID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := h.service.DeactivateUser(ctx, buildingID, userID); err != nil {
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "user deactivated",
		"request_id", requestID,
		"building_id", buildingID,
		"user_id", userID,
	)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) requireAdminAndBuilding(w http.ResponseWriter, r *http.Request) (id.BuildingID, bool) {
	if middleware.GetActorRole(r.Context()) != "admin" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "license management requires an admin"))
		return id.BuildingID{}, false
	}
	buildingID, err := id.ParseBuildingID(chi.URLParam(r, "buildingID"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.BuildingID{}, false
	}
	return buildingID, true
}
