package domain

import "errors"

var (
	// ErrValidation marks client-caused input errors.
	ErrValidation = errors.New("validation error")

	// ErrLoggedOut signals an explicit transport logout. The session is not
	// recoverable without a new credential bootstrap.
	ErrLoggedOut = errors.New("session logged out")
)
