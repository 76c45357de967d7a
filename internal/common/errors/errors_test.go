package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertToBPMNError(t *testing.T) {
	tests := []struct {
		name            string
		err             *StandardError
		expectedRetries int
	}{
		{"catalog failure retries", NewCatalogQueryFailedError("find_many", stderrors.New("conn reset")), 3},
		{"timeout retries twice", NewQueryTimeoutError("find_many"), 2},
		{"not found is final", NewUniversityNotFoundError("uni-1"), 0},
		{"conflict is final", NewShortlistConflictError("u1", "uni-1", stderrors.New("23505")), 0},
		{"validation is final", NewValidationError("universityId is required"), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bpmn := ConvertToBPMNError(tt.err)
			assert.Equal(t, string(tt.err.Code), bpmn.Code)
			assert.Equal(t, tt.expectedRetries, bpmn.Retries)
			assert.Equal(t, string(tt.err.Code), bpmn.ErrorVariables["originalErrorCode"])
		})
	}
}

func TestConvertToBPMNError_CarriesMetadata(t *testing.T) {
	err := NewUniversityNotFoundError("ext-3-foo").WithMetadata("userId", "user-1")

	vars := ConvertToBPMNError(err).ToErrorVariables()

	assert.Equal(t, "user-1", vars["userId"])
	assert.Equal(t, "UNIVERSITY_NOT_FOUND", vars["errorCode"])
	assert.Equal(t, false, vars["retryable"])
}

func TestAsAndHasCode_ThroughWrapping(t *testing.T) {
	base := NewProfileNotFoundError("user-9")
	wrapped := fmt.Errorf("load profile: %w", base)

	got, ok := As(wrapped)
	require.True(t, ok)
	assert.Same(t, base, got)
	assert.True(t, HasCode(wrapped, ErrCodeProfileNotFound))
	assert.False(t, HasCode(wrapped, ErrCodeInternal))
	assert.False(t, HasCode(stderrors.New("plain"), ErrCodeInternal))
}

func TestStandardError_Unwrap(t *testing.T) {
	cause := stderrors.New("dial tcp: refused")
	err := NewDatabaseConnectionFailedError(cause)

	assert.ErrorIs(t, err, cause)
}

func TestNormalize(t *testing.T) {
	std := Normalize(stderrors.New("boom"))
	assert.Equal(t, ErrCodeInternal, std.Code)
	assert.Equal(t, "boom", std.Details)

	known := NewValidationError("x")
	assert.Same(t, known, Normalize(known))
}

func TestGetErrorCategory(t *testing.T) {
	assert.Equal(t, "VALIDATION", GetErrorCategory(ErrCodeValidationFailed))
	assert.Equal(t, "NOT_FOUND", GetErrorCategory(ErrCodeUniversityNotFound))
	assert.Equal(t, "SHORTLIST", GetErrorCategory(ErrCodeShortlistConflict))
	assert.Equal(t, "DATABASE", GetErrorCategory(ErrCodeCatalogQueryFailed))
	assert.Equal(t, "UPSTREAM", GetErrorCategory(ErrCodeDirectoryUnavailable))
	assert.Equal(t, "OTHER", GetErrorCategory(ErrCodeInternal))
}
