package apperr

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"validation", errors.Wrap(ErrValidation, "text is required"), http.StatusBadRequest},
		{"not friends", ErrNotFriends, http.StatusBadRequest},
		{"auth provider", fmt.Errorf("signup: %w", ErrAuthProvider), http.StatusBadRequest},
		{"unauthorized", errors.Wrap(ErrUnauthorized, "sender mismatch"), http.StatusUnauthorized},
		{"not found", errors.Wrapf(ErrNotFound, "chat %s", "c1"), http.StatusNotFound},
		{"duplicate", ErrDuplicateRequest, http.StatusConflict},
		{"already friends", ErrAlreadyFriends, http.StatusConflict},
		{"store", errors.Wrap(ErrStoreUnavailable, "redis: connection refused"), http.StatusInternalServerError},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Status(tt.err))
		})
	}
}

func TestMessageHidesInternals(t *testing.T) {
	assert.Equal(t, "store unavailable", Message(errors.Wrap(ErrStoreUnavailable, "dial tcp 10.0.0.1:6379")))
	assert.Equal(t, "internal server error", Message(errors.New("nil pointer")))
	assert.Equal(t, "chat c1: not found", Message(errors.Wrap(ErrNotFound, "chat c1")))
}
