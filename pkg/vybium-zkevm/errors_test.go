package vybiumzkevm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vybium/vybium-zkevm/internal/vybium-zkevm/circuit"
)

func TestErrorMessages(t *testing.T) {
	t.Run("Plain", func(t *testing.T) {
		err := &EngineError{Code: ErrInvalidInput, Message: "execution log is empty"}
		assert.Contains(t, err.Error(), "execution log is empty")
	})

	t.Run("WithCause", func(t *testing.T) {
		cause := errors.New("row 3 disagrees")
		err := &EngineError{Code: ErrUnsatisfiableWitness, Message: "verification failed", Cause: cause}
		assert.Contains(t, err.Error(), "caused by")
		assert.Equal(t, cause, errors.Unwrap(err))
	})
}

func TestErrorMatching(t *testing.T) {
	err := &EngineError{Code: ErrCapacityExceeded, Message: "trace too large"}
	assert.ErrorIs(t, err, &EngineError{Code: ErrCapacityExceeded})
	assert.NotErrorIs(t, err, &EngineError{Code: ErrInvalidInput})
	assert.NotErrorIs(t, err, errors.New("trace too large"))
}

// TestErrorWrapping checks that internal circuit codes survive the lift into
// the public classification
func TestErrorWrapping(t *testing.T) {
	cases := []struct {
		internal circuit.ErrorCode
		want     ErrorCode
	}{
		{circuit.ErrInvalidConfig, ErrInvalidConfig},
		{circuit.ErrInvalidInput, ErrInvalidInput},
		{circuit.ErrCapacityExceeded, ErrCapacityExceeded},
		{circuit.ErrTraceInconsistency, ErrTraceInconsistency},
		{circuit.ErrUnsatisfiableWitness, ErrUnsatisfiableWitness},
		{circuit.ErrPhaseViolation, ErrUnknown},
	}
	for _, c := range cases {
		inner := &circuit.Error{Code: c.internal, Message: "x", Step: -1}
		got := wrapError("lifted", inner)
		assert.Equal(t, c.want, got.Code, "internal code %v", c.internal)
		assert.ErrorAs(t, got, new(*circuit.Error))
	}
}
