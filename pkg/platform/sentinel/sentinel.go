package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and infrastructure layers return
// these (optionally wrapped) so services can translate them into domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: entity does not exist in store
// - ErrConflict: write would violate a uniqueness constraint
// - ErrAlreadyUsed: resource (domain name, payment session) already consumed
// - ErrInvalidState: entity in wrong state for requested operation
// - ErrOperationInFlight: another operation holds the per-entity lease
// - ErrUnavailable: external service or resource temporarily unavailable
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrAlreadyUsed       = errors.New("already used")
	ErrInvalidState      = errors.New("invalid state")
	ErrOperationInFlight = errors.New("operation in flight")
	ErrUnavailable       = errors.New("unavailable")
)
