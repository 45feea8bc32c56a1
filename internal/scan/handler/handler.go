// Package handler exposes the gate-scan endpoint. Rejections are 200s with
// a failure outcome; the officer's device renders the message either way.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"passage/internal/scan"
	id "passage/pkg/domain"
	dErrors "passage/pkg/domain-errors"
	"passage/pkg/platform/httputil"
	"passage/pkg/requestcontext"
)

// Processor defines the interface for scan processing.
type Processor interface {
	ProcessScan(ctx context.Context, req scan.Request) (*scan.Result, error)
}

// Handler wires the scan endpoint to the processor.
type Handler struct {
	processor Processor
	logger    *slog.Logger
}

// New constructs a scan handler with its dependencies.
func New(processor Processor, logger *slog.Logger) *Handler {
	return &Handler{
		processor: processor,
		logger:    logger,
	}
}

// Register mounts the scan endpoint on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/scan", h.HandleScan)
}

// HandleScan handles POST /scan requests.
func (h *Handler) HandleScan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	req, ok := httputil.DecodeAndPrepare[scan.Request](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	req.Code = strings.TrimSpace(req.Code)
	if req.Code == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "code is required"))
		return
	}
	switch req.Kind {
	case "", scan.KindAuto, scan.KindEntry, scan.KindExit:
	default:
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "scan_kind must be auto, entry, or exit"))
		return
	}
	if req.OfficerID.IsZero() {
		// The authenticated actor is the officer unless the gate client
		// stated one explicitly.
		if officerID, err := id.ParseOfficerID(requestcontext.ActorID(ctx)); err == nil {
			req.OfficerID = officerID
		}
	}

	result, err := h.processor.ProcessScan(ctx, *req)
	if err != nil {
		h.logger.ErrorContext(ctx, "scan processing failed",
			"request_id", requestID,
			"gate", req.Gate,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "scan processed",
		"request_id", requestID,
		"outcome", result.Outcome,
		"gate", req.Gate,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, result)
}
