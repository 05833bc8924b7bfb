package lab

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidParameter marks a rejected edit or construction value.
	ErrInvalidParameter = errors.New("lab: invalid parameter")

	// ErrUnknownParameter marks an edit to a name the lab does not expose.
	ErrUnknownParameter = errors.New("lab: unknown parameter")

	// ErrIntegratorFault marks a recompute whose integration produced a non-finite state.
	ErrIntegratorFault = errors.New("lab: integrator fault")
)

// ParameterError describes why a parameter value was rejected. It always
// matches ErrInvalidParameter under errors.Is.
type ParameterError struct {
	Name   string
	Value  string
	Reason string
	Err    error
}

func (e *ParameterError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid parameter %s: %s", e.Name, e.Reason)
	}
	return fmt.Sprintf("invalid parameter %s=%s: %s", e.Name, e.Value, e.Reason)
}

func (e *ParameterError) Unwrap() []error {
	if e.Err == nil || e.Err == ErrInvalidParameter {
		return []error{ErrInvalidParameter}
	}
	return []error{ErrInvalidParameter, e.Err}
}

// FaultError reports a recompute whose integration failed. It matches
// ErrIntegratorFault and the underlying simulation error under errors.Is.
type FaultError struct {
	Generation uint64
	Err        error
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("%v: %v", ErrIntegratorFault, e.Err)
}

func (e *FaultError) Unwrap() []error {
	return []error{ErrIntegratorFault, e.Err}
}
