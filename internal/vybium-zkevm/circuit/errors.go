package circuit

import "fmt"

// ErrorCode classifies constraint engine failures
type ErrorCode int

const (
	// ErrUnknown represents an unclassified error
	ErrUnknown ErrorCode = iota

	// ErrInvalidConfig represents an invalid capacity configuration
	ErrInvalidConfig

	// ErrInvalidInput represents malformed input data
	ErrInvalidInput

	// ErrCapacityExceeded means a declared row or table budget was too
	// small for the trace; the caller must re-size and retry
	ErrCapacityExceeded

	// ErrTraceInconsistency means the trace claims an opcode/operand
	// combination a constraint module cannot represent; a bug upstream
	ErrTraceInconsistency

	// ErrUnsatisfiableWitness means assignment completed but a declared
	// constraint, lookup or permutation does not hold
	ErrUnsatisfiableWitness

	// ErrPhaseViolation means challenge-dependent work was requested
	// before the challenge barrier
	ErrPhaseViolation
)

// String returns the code's name
func (c ErrorCode) String() string {
	switch c {
	case ErrInvalidConfig:
		return "InvalidConfig"
	case ErrInvalidInput:
		return "InvalidInput"
	case ErrCapacityExceeded:
		return "CapacityExceeded"
	case ErrTraceInconsistency:
		return "TraceInconsistency"
	case ErrUnsatisfiableWitness:
		return "UnsatisfiableWitness"
	case ErrPhaseViolation:
		return "PhaseViolation"
	default:
		return "Unknown"
	}
}

// Error is the constraint engine's error type. Every failure carries enough
// context to point at the algebraic assertion involved: the step index, the
// opcode mnemonic, and the gate or column name.
type Error struct {
	Code    ErrorCode
	Message string

	// Step is the step index the failure is attributed to (-1 if none)
	Step int

	// Op is the opcode mnemonic involved, if any
	Op string

	// Gate names the failing gate, lookup or permutation, if any
	Gate string

	// Column names the column involved, if any
	Column string

	Cause error
}

// Error returns the formatted message
func (e *Error) Error() string {
	msg := fmt.Sprintf("zkevm circuit error [%s]: %s", e.Code, e.Message)
	if e.Step >= 0 {
		msg += fmt.Sprintf(" (step %d", e.Step)
		if e.Op != "" {
			msg += " " + e.Op
		}
		msg += ")"
	}
	if e.Gate != "" {
		msg += fmt.Sprintf(" gate=%q", e.Gate)
	}
	if e.Column != "" {
		msg += fmt.Sprintf(" column=%q", e.Column)
	}
	if e.Cause != nil {
		msg += fmt.Sprintf(" (caused by: %v)", e.Cause)
	}
	return msg
}

// Unwrap returns the cause
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches errors by code
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// newError creates an Error without step context
func newError(code ErrorCode, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Step: -1}
}

// stepError creates an Error attributed to a step
func stepError(code ErrorCode, step int, op, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Step: step, Op: op}
}
