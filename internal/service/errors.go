package service

import "errors"

// Error taxonomy of the messaging core. Store I/O failures are wrapped with
// context and surface as neither of these; handlers treat them as storage
// errors. repository.ErrNotFound passes through unchanged.
var (
	// ErrValidation rejects a request before any side effect.
	ErrValidation = errors.New("validation failed")
	// ErrForbidden marks an operation on a message the requester cannot act on.
	ErrForbidden = errors.New("forbidden")
)
