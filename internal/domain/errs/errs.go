package errs

import (
	"errors"
	"fmt"
)

var (
	ErrInsufficientData = errors.New("insufficient data")
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrAlignmentFailure = errors.New("alignment failure")
)

// InsufficientDataError reports that an operation received too few points.
type InsufficientDataError struct {
	Op   string
	Need int
	Got  int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("%s: insufficient data: need at least %d points, got %d", e.Op, e.Need, e.Got)
}

func (e *InsufficientDataError) Is(target error) bool { return target == ErrInsufficientData }

// InvalidParameterError reports an out-of-range or contradictory parameter.
type InvalidParameterError struct {
	Param  string
	Reason string
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("invalid parameter %s: %s", e.Param, e.Reason)
}

func (e *InvalidParameterError) Is(target error) bool { return target == ErrInvalidParameter }

// AlignmentFailure reports a numerical failure in the DTW or spectral path.
type AlignmentFailure struct {
	Op  string
	Err error
}

func (e *AlignmentFailure) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: alignment failure: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: alignment failure", e.Op)
}

func (e *AlignmentFailure) Is(target error) bool { return target == ErrAlignmentFailure }

func (e *AlignmentFailure) Unwrap() error { return e.Err }

func InsufficientData(op string, need, got int) error {
	return &InsufficientDataError{Op: op, Need: need, Got: got}
}

func InvalidParameter(param, format string, a ...interface{}) error {
	return &InvalidParameterError{Param: param, Reason: fmt.Sprintf(format, a...)}
}

func Alignment(op string, err error) error {
	return &AlignmentFailure{Op: op, Err: err}
}
