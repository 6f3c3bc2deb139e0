package errorutil

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainErrorWrapping(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewInternalError(cause)

	var domainErr *DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, CodeInternal, domainErr.Code)
	assert.Equal(t, http.StatusInternalServerError, domainErr.HTTPStatus)
	assert.ErrorIs(t, err, cause)

	// Wrapping through fmt.Errorf keeps the code discoverable.
	wrapped := fmt.Errorf("saving ticket: %w", err)
	assert.True(t, HasCode(wrapped, CodeInternal))
}

func TestErrorCodesAndStatuses(t *testing.T) {
	cases := []struct {
		err    error
		code   string
		status int
	}{
		{NewNotFound("ticket", nil), CodeNotFound, http.StatusNotFound},
		{NewPermissionDenied("nope"), CodePermissionDenied, http.StatusForbidden},
		{NewUnauthorized("token expired"), CodeUnauthorized, http.StatusUnauthorized},
		{NewValidationError("bad input", nil), CodeValidationFailed, http.StatusBadRequest},
		{NewInvalidStateTransition("CLOSED", "RESOLVED"), CodeInvalidStateTransition, http.StatusConflict},
		{NewAssignmentConflict("t-1"), CodeAssignmentConflict, http.StatusConflict},
	}
	for _, tc := range cases {
		domainErr := ToDomainError(tc.err)
		assert.Equal(t, tc.code, domainErr.Code)
		assert.Equal(t, tc.status, domainErr.HTTPStatus)
	}
}

func TestInvalidStateTransitionDetails(t *testing.T) {
	err := NewInvalidStateTransition("RESOLVED", "AWAITING_RESPONSE")
	domainErr := ToDomainError(err)
	assert.Equal(t, "RESOLVED", domainErr.Details["from"])
	assert.Equal(t, "AWAITING_RESPONSE", domainErr.Details["to"])
}

func TestToDomainErrorDefaultsToInternal(t *testing.T) {
	plain := errors.New("disk full")
	domainErr := ToDomainError(plain)
	assert.Equal(t, CodeInternal, domainErr.Code)
	assert.ErrorIs(t, domainErr, plain)

	assert.Nil(t, ToDomainError(nil))
	assert.NoError(t, MapError(nil))
}

func TestHasCodeNonDomainError(t *testing.T) {
	assert.False(t, HasCode(errors.New("plain"), CodeNotFound))
	assert.False(t, HasCode(nil, CodeNotFound))
}
