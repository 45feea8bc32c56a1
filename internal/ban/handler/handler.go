// Package handler exposes the ban registry over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"passage/internal/ban/models"
	"passage/internal/ban/service"
	"passage/internal/platform/middleware"
	id "passage/pkg/domain"
	dErrors "passage/pkg/domain-errors"
	"passage/pkg/platform/httputil"
	"passage/pkg/requestcontext"
)

// Service defines the interface for ban registry operations.
type Service interface {
	CreateBan(ctx context.Context, req service.CreateBanRequest) (*models.Ban, error)
	GetBan(ctx context.Context, banID id.BanID) (*models.Ban, error)
	ListBans(ctx context.Context, buildingID id.BuildingID) ([]*models.Ban, error)
	Unban(ctx context.Context, banID id.BanID, reason string) (*models.Ban, error)
}

// Handler wires ban endpoints to the ban service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a ban handler with its dependencies.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Register mounts ban endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/bans", h.HandleCreate)
	r.Get("/bans", h.HandleList)
	r.Get("/bans/{banID}", h.HandleGet)
	r.Post("/bans/{banID}/unban", h.HandleUnban)
}

// CreateBanRequest is the transport payload for a new ban. Omitting host_id
// makes the ban building-wide, which only admins may do.
type CreateBanRequest struct {
	BuildingID string     `json:"building_id"`
	HostID     string     `json:"host_id,omitempty"`
	Phone      string     `json:"phone"`
	Severity   string     `json:"severity,omitempty"`
	Reason     string     `json:"reason"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

func (r *CreateBanRequest) Normalize() {
	r.Phone = strings.TrimSpace(r.Phone)
	r.Reason = strings.TrimSpace(r.Reason)
}

func (r *CreateBanRequest) Validate() error {
	if r.BuildingID == "" {
		return dErrors.New(dErrors.CodeValidation, "building_id is required")
	}
	if r.Phone == "" {
		return dErrors.New(dErrors.CodeValidation, "phone is required")
	}
	return nil
}

// UnbanRequest carries the lift reason for the audit trail.
type UnbanRequest struct {
	Reason string `json:"reason,omitempty"`
}

// HandleCreate handles POST /bans requests.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[CreateBanRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	buildingID, err := id.ParseBuildingID(req.BuildingID)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "building_id is not a valid id"))
		return
	}

	var hostID *id.HostID
	if req.HostID != "" {
		parsed, err := id.ParseHostID(req.HostID)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "host_id is not a valid id"))
			return
		}
		hostID = &parsed
	}

	// Hosts manage their personal list; the building-wide list is admin
	// territory.
	if hostID == nil && middleware.GetActorRole(ctx) != "admin" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "building-wide bans require an admin"))
		return
	}

	ban, err := h.service.CreateBan(ctx, service.CreateBanRequest{
		BuildingID: buildingID,
		HostID:     hostID,
		Phone:      req.Phone,
		Severity:   models.Severity(req.Severity),
		Reason:     req.Reason,
		ExpiresAt:  req.ExpiresAt,
	})
	if err != nil {
		h.logger.WarnContext(ctx, "ban creation rejected",
			"request_id", requestID,
			"building_id", buildingID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "ban created",
		"request_id", requestID,
		"ban_id", ban.ID,
		"building_id", ban.BuildingID,
		"scope", ban.Scope(),
	)
	httputil.WriteJSON(w, http.StatusCreated, ban)
}

// HandleList handles GET /bans?building_id= requests.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	buildingID, err := id.ParseBuildingID(r.URL.Query().Get("building_id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "building_id query parameter is required"))
		return
	}

	bans, err := h.service.ListBans(ctx, buildingID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"bans": bans})
}

// HandleGet handles GET /bans/{banID} requests.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	banID, err := id.ParseBanID(chi.URLParam(r, "banID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	ban, err := h.service.GetBan(ctx, banID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ban)
}

// HandleUnban handles POST /bans/{banID}/unban requests.
func (h *Handler) HandleUnban(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	banID, err := id.ParseBanID(chi.URLParam(r, "banID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	req, ok := httputil.DecodeAndPrepare[UnbanRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	ban, err := h.service.Unban(ctx, banID, req.Reason)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "ban lifted",
		"request_id", requestID,
		"ban_id", banID,
	)
	httputil.WriteJSON(w, http.StatusOK, ban)
}
