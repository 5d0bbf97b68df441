package service

import "errors"

var (
	ErrInvalidLocator   = errors.New("invalid locator")
	ErrResourceNotFound = errors.New("resource not found")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrUnauthenticated  = errors.New("unauthenticated")
	ErrInvalidSize      = errors.New("invalid size")
	ErrMissingSize      = errors.New("missing size")

	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailExists        = errors.New("email already exists")
	ErrFileTooLarge       = errors.New("file size too large")
	ErrEmptyFile          = errors.New("empty file")

	ErrRegistrationForbidden = errors.New("registration requires a logged-in user or the registration key")
	ErrRealmRequired         = errors.New("realm_id is required")
)

// IsAccessDenied reports errors that are shown to clients as the same
// "not authorized" message, so a missing upload looks like someone
// else's upload.
func IsAccessDenied(err error) bool {
	return errors.Is(err, ErrResourceNotFound) ||
		errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrUnauthenticated)
}
