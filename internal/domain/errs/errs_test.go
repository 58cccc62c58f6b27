package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorsMatchSentinels(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
	}{
		{"insufficient", InsufficientData("dtw", 2, 1), ErrInsufficientData},
		{"invalid", InvalidParameter("max_warp", "must be >= 0, got %d", -1), ErrInvalidParameter},
		{"alignment", Alignment("spectral", errors.New("non-finite value")), ErrAlignmentFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("run: %w", tt.err)
			assert.ErrorIs(t, wrapped, tt.target)
		})
	}
}

func TestErrorsDoNotCrossMatch(t *testing.T) {
	err := InsufficientData("smooth", 1, 0)
	assert.NotErrorIs(t, err, ErrInvalidParameter)
	assert.NotErrorIs(t, err, ErrAlignmentFailure)
}

func TestErrorMessages(t *testing.T) {
	assert.Equal(t, "dtw: insufficient data: need at least 2 points, got 1", InsufficientData("dtw", 2, 1).Error())
	assert.Equal(t, "invalid parameter window: must be >= 2", InvalidParameter("window", "must be >= 2").Error())

	var ie *InvalidParameterError
	assert.True(t, errors.As(fmt.Errorf("x: %w", InvalidParameter("band", "low >= high")), &ie))
	assert.Equal(t, "band", ie.Param)
}
