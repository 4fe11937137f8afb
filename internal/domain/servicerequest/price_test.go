package servicerequest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moving-hub/moving-hub/internal/apperror"
)

func TestParsePrice(t *testing.T) {
	ok := map[string]string{
		"250":     "250.00",
		"250.5":   "250.50",
		" 199.99": "199.99",
		"0.01":    "0.01",
	}
	for in, want := range ok {
		d, err := ParsePrice(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, FormatPrice(d))
	}

	bad := []string{"", "0", "-5", "abc", "1.005", "1e11", "NaN"}
	for _, in := range bad {
		_, err := ParsePrice(in)
		require.Error(t, err, in)
		assert.True(t, apperror.IsValidation(err), in)
	}
}
