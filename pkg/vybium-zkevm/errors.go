package vybiumzkevm

import (
	"errors"
	"fmt"

	"github.com/vybium/vybium-zkevm/internal/vybium-zkevm/circuit"
)

// ErrorCode represents a Vybium zkEVM error code
type ErrorCode int

const (
	// ErrUnknown represents an unclassified error
	ErrUnknown ErrorCode = iota

	// ErrInvalidConfig represents an invalid capacity configuration
	ErrInvalidConfig

	// ErrInvalidInput represents a malformed execution log or transaction
	ErrInvalidInput

	// ErrCapacityExceeded means the trace does not fit a configured budget;
	// resize the configuration and rebuild
	ErrCapacityExceeded

	// ErrTraceInconsistency means the execution log contradicts itself and
	// cannot be arithmetized
	ErrTraceInconsistency

	// ErrUnsatisfiableWitness means the assembled witness violates a
	// declared constraint
	ErrUnsatisfiableWitness
)

// EngineError represents a Vybium zkEVM error
type EngineError struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// Error returns the error message
func (e *EngineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("vybium-zkevm error [%d]: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("vybium-zkevm error [%d]: %s", e.Code, e.Message)
}

// Unwrap returns the cause of the error
func (e *EngineError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target error
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// wrapError lifts an internal circuit error into the public error type,
// preserving the code classification
func wrapError(msg string, err error) *EngineError {
	code := ErrUnknown
	var ce *circuit.Error
	if errors.As(err, &ce) {
		switch ce.Code {
		case circuit.ErrInvalidConfig:
			code = ErrInvalidConfig
		case circuit.ErrInvalidInput:
			code = ErrInvalidInput
		case circuit.ErrCapacityExceeded:
			code = ErrCapacityExceeded
		case circuit.ErrTraceInconsistency:
			code = ErrTraceInconsistency
		case circuit.ErrUnsatisfiableWitness:
			code = ErrUnsatisfiableWitness
		}
	}
	return &EngineError{Code: code, Message: msg, Cause: err}
}
