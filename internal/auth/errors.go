package auth

import "errors"

var (
	ErrInvalidToken   = errors.New("auth: invalid token")
	ErrExpiredToken   = errors.New("auth: expired token")
	ErrUnauthorized   = errors.New("auth: unauthorized")
	ErrNoOrganization = errors.New("auth: no organization")
	ErrForbidden      = errors.New("auth: forbidden")
	ErrNotFound       = errors.New("auth: not found")
	ErrTransport      = errors.New("auth: mail transport failure")
	ErrInvalidInput   = errors.New("auth: invalid input")
	ErrConflict       = errors.New("auth: conflict")
)

// IsAuthenticationFailure reports whether err is one of the magic-link failures
// that must be presented to the user as a single "link invalid or expired" state.
func IsAuthenticationFailure(err error) bool {
	return errors.Is(err, ErrInvalidToken) || errors.Is(err, ErrExpiredToken)
}
