package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", ErrMissingAudience, http.StatusBadRequest},
		{"authentication", ErrUnauthorized, http.StatusUnauthorized},
		{"insufficient scope", ErrInsufficientScope, http.StatusUnauthorized},
		{"refresh", ErrInvalidRefreshToken, http.StatusForbidden},
		{"limit", ErrLimitWithoutUser, http.StatusBadRequest},
		{"not found", NotFound("no scope"), http.StatusNotFound},
		{"conflict", Conflict("dup", nil), http.StatusBadRequest},
		{"not implemented", ErrNotImplemented, http.StatusNotImplemented},
		{"plain error", errors.New("boom"), http.StatusInternalServerError},
		{"wrapped", fmt.Errorf("outer: %w", ErrLimitWithUser), http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusOf(tt.err))
		})
	}
}

func TestErrorIs(t *testing.T) {
	err := fmt.Errorf("mint: %w", New(KindLimitExceeded, MsgLimitWithoutUser))

	assert.ErrorIs(t, err, ErrLimitWithoutUser)
	assert.NotErrorIs(t, err, ErrLimitWithUser)
	assert.True(t, IsKind(err, KindLimitExceeded))
	assert.ErrorIs(t, err, &Error{Kind: KindLimitExceeded})
}

func TestToOAuth2HidesInternalDetail(t *testing.T) {
	wire := ToOAuth2(Internal("mongo exploded", errors.New("socket closed")))

	assert.Equal(t, ServerError, wire.Code)
	assert.Equal(t, MsgInternal, wire.Description)

	wire = ToOAuth2(ErrMissingAudience)
	assert.Equal(t, InvalidRequest, wire.Code)
	assert.Equal(t, MsgMissingAudience, wire.Description)
}
