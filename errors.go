package kinematics

import (
	"fmt"

	"github.com/pkg/errors"
)

// Code is the machine-readable failure reason reported to callers.
type Code string

const (
	CodeInvalidDOF         Code = "INVALID_DOF"
	CodeInvalidPose        Code = "INVALID_POSE"
	CodeUnreachableTarget  Code = "UNREACHABLE_TARGET"
	CodeConvergenceFailure Code = "CONVERGENCE_FAILURE"
)

// Sentinels matched with errors.Is against the typed errors below.
var (
	ErrInvalidDOF    = errors.New("kinematics: invalid configuration")
	ErrInvalidPose   = errors.New("kinematics: invalid pose")
	ErrUnreachable   = errors.New("kinematics: target unreachable")
	ErrNoConvergence = errors.New("kinematics: solver did not converge")
)

// InvalidConfigurationError reports a DOF outside [MinDOF, MaxDOF], a joint
// bound list that does not match the chain, or unusable solver settings.
type InvalidConfigurationError struct {
	Reason string
}

func newInvalidConfiguration(format string, args ...interface{}) *InvalidConfigurationError {
	return &InvalidConfigurationError{Reason: fmt.Sprintf(format, args...)}
}

func (e *InvalidConfigurationError) Error() string {
	return "invalid configuration: " + e.Reason
}

func (e *InvalidConfigurationError) Is(target error) bool { return target == ErrInvalidDOF }

func (e *InvalidConfigurationError) Code() Code { return CodeInvalidDOF }

// InvalidPoseError reports a NaN or infinite component in a request.
type InvalidPoseError struct {
	Field string
	Value float64
}

func (e *InvalidPoseError) Error() string {
	return fmt.Sprintf("invalid pose: %s is not finite (%v)", e.Field, e.Value)
}

func (e *InvalidPoseError) Is(target error) bool { return target == ErrInvalidPose }

func (e *InvalidPoseError) Code() Code { return CodeInvalidPose }

// UnreachableTargetError is returned when the workspace policy rejects a
// target or the solver saturated its damping without making progress.
// Result is nil when the solver never ran.
type UnreachableTargetError struct {
	Reason string
	Result *SolverResult
}

func (e *UnreachableTargetError) Error() string {
	if e.Result == nil {
		return "unreachable target: " + e.Reason
	}
	return fmt.Sprintf("unreachable target: %s (residual %.3g after %d iterations)",
		e.Reason, e.Result.FinalError, e.Result.Iterations)
}

func (e *UnreachableTargetError) Is(target error) bool { return target == ErrUnreachable }

func (e *UnreachableTargetError) Code() Code { return CodeUnreachableTarget }

// ConvergenceFailureError is returned when the iteration budget ran out with
// the residual still above tolerance.
type ConvergenceFailureError struct {
	Result SolverResult
}

func (e *ConvergenceFailureError) Error() string {
	return fmt.Sprintf("no convergence: residual %.3g after %d iterations",
		e.Result.FinalError, e.Result.Iterations)
}

func (e *ConvergenceFailureError) Is(target error) bool { return target == ErrNoConvergence }

func (e *ConvergenceFailureError) Code() Code { return CodeConvergenceFailure }

// CodeOf extracts the failure code carried by err, or "" if err is not one of
// the engine's typed errors.
func CodeOf(err error) Code {
	var coded interface{ Code() Code }
	if errors.As(err, &coded) {
		return coded.Code()
	}
	return ""
}

// ResultOf returns the solver result attached to a failure, if any.
func ResultOf(err error) (SolverResult, bool) {
	var unreachable *UnreachableTargetError
	if errors.As(err, &unreachable) && unreachable.Result != nil {
		return *unreachable.Result, true
	}
	var noConvergence *ConvergenceFailureError
	if errors.As(err, &noConvergence) {
		return noConvergence.Result, true
	}
	return SolverResult{}, false
}
