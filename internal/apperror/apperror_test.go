package apperror

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"validation", Validation("amount", "must be positive"), CodeValidation},
		{"conflict", Conflict("accepted", "pending", "cannot advance"), CodeConflict},
		{"not found", NotFound("service request", "abc"), CodeNotFound},
		{"wrapped conflict", fmt.Errorf("outer: %w", Conflict("pending", "cancelled", "")), CodeConflict},
		{"delivery", &DeliveryFailure{UserID: "u", ConnectionID: "c", Err: errors.New("gone")}, CodeDelivery},
		{"plain", errors.New("boom"), CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Code(tt.err))
		})
	}
}

func TestConflictErrorMessage(t *testing.T) {
	err := Conflict("accepted", "pending", "cannot advance status")
	assert.Equal(t, "cannot advance status: expected=accepted, actual=pending", err.Error())

	var ce *ConflictError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "accepted", ce.Expected)
	assert.Equal(t, "pending", ce.Actual)
}

func TestInternalKeepsTaxonomy(t *testing.T) {
	conflict := Conflict("pending", "accepted", "")
	assert.Same(t, conflict, Internal("mutate", conflict))

	base := errors.New("connection reset")
	err := Internal("mutate", base)
	var ie *InternalError
	require.True(t, errors.As(err, &ie))
	assert.ErrorIs(t, err, base)
	assert.Equal(t, "mutate: connection reset", err.Error())

	assert.Same(t, err, Internal("again", err))
	assert.NoError(t, Internal("noop", nil))
}
