// Package apperr holds the error kinds shared by every layer and their HTTP mapping.
package apperr

import (
	"errors"
	"net/http"
)

var (
	ErrUnauthorized     = errors.New("unauthorized")
	ErrNotFound         = errors.New("not found")
	ErrValidation       = errors.New("validation error")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrAuthProvider     = errors.New("auth provider error")
	ErrNotFriends       = errors.New("users are not friends")
	ErrAlreadyFriends   = errors.New("users are already friends")
	ErrDuplicateRequest = errors.New("a pending friend request already exists")
)

// Status maps an error chain to the HTTP status written at the handler boundary.
func Status(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation), errors.Is(err, ErrNotFriends), errors.Is(err, ErrAuthProvider):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAlreadyFriends), errors.Is(err, ErrDuplicateRequest):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Message returns the client-facing text for err. Internal failures are not
// echoed verbatim so store details do not leak.
func Message(err error) string {
	if Status(err) == http.StatusInternalServerError {
		if errors.Is(err, ErrStoreUnavailable) {
			return ErrStoreUnavailable.Error()
		}
		return "internal server error"
	}
	return err.Error()
}
