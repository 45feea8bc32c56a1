package jwttoken

import (
	"passage/internal/platform/middleware"
)

// MiddlewareAdapter bridges JWTService to the middleware.JWTValidator
// interface so the middleware package stays free of JWT library imports.
type MiddlewareAdapter struct {
	service *JWTService
}

func NewMiddlewareAdapter(service *JWTService) *MiddlewareAdapter {
	return &MiddlewareAdapter{service: service}
}

func (a *MiddlewareAdapter) ValidateToken(tokenString string) (*middleware.JWTClaims, error) {
	claims, err := a.service.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	return &middleware.JWTClaims{
		ActorID: claims.ActorID,
		Role:    claims.Role,
	}, nil
}
