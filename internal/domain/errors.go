package domain

import "errors"

// Outcome errors shared by the credential services. Handlers map them to
// transport responses with errors.Is; anything else is an infrastructure failure.
var (
	ErrInvalidCredential = errors.New("invalid credential")
	ErrRevoked           = errors.New("credential revoked")
	ErrForbidden         = errors.New("forbidden")
	ErrNotFound          = errors.New("not found")
	ErrAlreadyUsed       = errors.New("token already used")
	ErrExpired           = errors.New("token expired")
	ErrConflict          = errors.New("conflict")
	ErrValidation        = errors.New("validation")
)

// IsUnauthorized reports whether err means the presented credential must not be
// accepted and the client should authenticate again.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrInvalidCredential) || errors.Is(err, ErrRevoked)
}
