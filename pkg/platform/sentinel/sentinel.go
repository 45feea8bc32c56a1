package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) so services can translate them into domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: record does not exist in store
// - ErrExpired: QR code or ban past its expiry
// - ErrAlreadyUsed: unique value (qr_code, phone per scope) already taken
// - ErrInvalidState: visit in wrong state for the requested transition
// - ErrConcurrentModification: optimistic write lost the race; retryable
// - ErrUnavailable: backing service temporarily unreachable
var (
	ErrNotFound               = errors.New("not found")
	ErrConflict               = errors.New("conflict")
	ErrExpired                = errors.New("expired")
	ErrAlreadyUsed            = errors.New("already used")
	ErrInvalidState           = errors.New("invalid state")
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrUnavailable            = errors.New("unavailable")
)
