package types

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_ChainingAndHelpers(t *testing.T) {
	t.Parallel()

	root := errors.New("root")
	err := NewError(ErrAdvisorUnavailable, "advisor failed").
		WithCause(root).
		WithRetryable(true).
		WithDetail("kind", "collaboration_structure")

	assert.Equal(t, ErrAdvisorUnavailable, GetErrorCode(err))
	assert.True(t, IsRetryable(err))
	assert.True(t, errors.Is(err, root))
	assert.Equal(t, http.StatusServiceUnavailable, err.HTTPStatus)
	assert.Equal(t, "collaboration_structure", err.Details["kind"])
	assert.Contains(t, err.Error(), "ADVISOR_UNAVAILABLE")
}

func TestGetErrorCode_Wrapped(t *testing.T) {
	t.Parallel()

	inner := Errorf(ErrCyclicDependency, "cycle: %s", "a -> b -> a")
	wrapped := fmt.Errorf("coordinate: %w", inner)

	assert.Equal(t, ErrCyclicDependency, GetErrorCode(wrapped))
	assert.True(t, IsErrorCode(wrapped, ErrCyclicDependency))

	e, ok := AsError(wrapped)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnprocessableEntity, e.HTTPStatus)
}

func TestIsInvalidInput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code ErrorCode
		want bool
	}{
		{ErrInvalidInput, true},
		{ErrInvalidGoal, true},
		{ErrCollaborationFacilitationFailed, true},
		{ErrCyclicDependency, true},
		{ErrUnassignedAgentMismatch, true},
		{ErrMessageExpired, true},
		{ErrAdvisorUnavailable, false},
		{ErrOperationTimeout, false},
		{ErrInternalError, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, IsInvalidInput(NewError(tt.code, "x")))
		})
	}
	assert.False(t, IsInvalidInput(errors.New("plain")))
	assert.False(t, IsInvalidInput(nil))
}
