// Package common defines shared sentinel errors used across the storage,
// service and HTTP layers. Callers should use errors.Is to match these
// values.
package common

import "errors"

var (
	// Validation errors, rejected at the boundary.
	ErrInvalidName = errors.New("invalid name")

	// Storage-level errors.
	ErrNotFound         = errors.New("not found")
	ErrAlreadyExists    = errors.New("already exists")
	ErrStoreUnavailable = errors.New("object storage is not configured")

	// External collaborators (TTS, Gemini). Bulk callers degrade to empty
	// results; only single-item endpoints surface this to the user.
	ErrExternalService = errors.New("external service failure")

	// Auth errors on admin-guarded endpoints.
	ErrInvalidToken = errors.New("invalid token")
)
