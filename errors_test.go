package kinematics

import (
	"math"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestErrorCodes(t *testing.T) {
	res := &SolverResult{Iterations: 12, FinalError: 0.05}

	tests := []struct {
		name     string
		err      error
		sentinel error
		code     Code
	}{
		{"configuration", newInvalidConfiguration("DOF %d outside [2, 7]", 9), ErrInvalidDOF, CodeInvalidDOF},
		{"pose", &InvalidPoseError{Field: "position.x", Value: math.NaN()}, ErrInvalidPose, CodeInvalidPose},
		{"unreachable", &UnreachableTargetError{Reason: "outside workspace"}, ErrUnreachable, CodeUnreachableTarget},
		{"unreachable with result", &UnreachableTargetError{Reason: "saturated", Result: res}, ErrUnreachable, CodeUnreachableTarget},
		{"no convergence", &ConvergenceFailureError{Result: *res}, ErrNoConvergence, CodeConvergenceFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, errors.Is(tt.err, tt.sentinel))
			assert.Equal(t, tt.code, CodeOf(tt.err))

			wrapped := errors.Wrap(tt.err, "solving")
			assert.True(t, errors.Is(wrapped, tt.sentinel))
			assert.Equal(t, tt.code, CodeOf(wrapped))
			assert.NotEmpty(t, tt.err.Error())
		})
	}
}

func TestCodeOfForeignError(t *testing.T) {
	assert.Equal(t, Code(""), CodeOf(errors.New("boom")))
	assert.Equal(t, CodeConvergenceFailure, NewFailureResponse(errors.New("boom")).Error)
}

func TestResultOf(t *testing.T) {
	res := SolverResult{Iterations: 7, FinalError: 0.2}

	got, ok := ResultOf(&ConvergenceFailureError{Result: res})
	assert.True(t, ok)
	assert.Equal(t, 7, got.Iterations)

	got, ok = ResultOf(errors.Wrap(&UnreachableTargetError{Result: &res}, "ws"))
	assert.True(t, ok)
	assert.Equal(t, 0.2, got.FinalError)

	_, ok = ResultOf(&UnreachableTargetError{Reason: "outside workspace"})
	assert.False(t, ok)

	failure := NewFailureResponse(&ConvergenceFailureError{Result: res})
	assert.Equal(t, 7, failure.Iterations)
	assert.Equal(t, 0.2, failure.ResidualError)
}
