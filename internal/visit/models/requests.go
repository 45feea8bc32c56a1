package models

import (
	"strings"
	"time"

	dErrors "passage/pkg/domain-errors"
)

// VisitorInput is one invited visitor in a creation request.
type VisitorInput struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email,omitempty"`
}

// CreateVisitRequest is the host client's visit-creation payload.
type CreateVisitRequest struct {
	BuildingID    string         `json:"building_id"`
	Title         string         `json:"title"`
	Description   string         `json:"description,omitempty"`
	ExpectedStart time.Time      `json:"expected_start"`
	ExpectedEnd   *time.Time     `json:"expected_end,omitempty"`
	MaxVisitors   int            `json:"max_visitors,omitempty"`
	Visitors      []VisitorInput `json:"visitors"`
}

// Normalize trims free-text fields and defaults the visitor cap to the
// number of invited visitors.
func (r *CreateVisitRequest) Normalize() {
	r.Title = strings.TrimSpace(r.Title)
	r.Description = strings.TrimSpace(r.Description)
	for i := range r.Visitors {
		r.Visitors[i].Name = strings.TrimSpace(r.Visitors[i].Name)
		r.Visitors[i].Phone = strings.TrimSpace(r.Visitors[i].Phone)
		r.Visitors[i].Email = strings.TrimSpace(r.Visitors[i].Email)
	}
	if r.MaxVisitors == 0 {
		r.MaxVisitors = len(r.Visitors)
	}
}

// Validate rejects requests that could never produce a valid visit.
func (r *CreateVisitRequest) Validate() error {
	if r.Title == "" {
		return dErrors.New(dErrors.CodeValidation, "title is required")
	}
	if r.ExpectedStart.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "expected_start is required")
	}
	if len(r.Visitors) == 0 {
		return dErrors.New(dErrors.CodeValidation, "at least one visitor is required")
	}
	for _, v := range r.Visitors {
		if v.Phone == "" {
			return dErrors.New(dErrors.CodeValidation, "every visitor needs a phone number")
		}
	}
	if r.MaxVisitors < len(r.Visitors) {
		return dErrors.New(dErrors.CodeValidation, "max_visitors is below the invited visitor count")
	}
	return nil
}

// CreatedVisit is what the host client gets back: the id plus the QR
// material needed to render the pass.
type CreatedVisit struct {
	VisitID  string    `json:"visit_id"`
	QRToken  string    `json:"qr_token"`
	QRExpiry time.Time `json:"qr_expiry"`
}
