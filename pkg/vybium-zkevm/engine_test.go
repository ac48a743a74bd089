package vybiumzkevm

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// addLog returns the execution log of PUSH1 1, PUSH1 2, ADD, STOP
func addLog() *ExecutionLog {
	w := func(v uint64) Word { return *uint256.NewInt(v) }
	return &ExecutionLog{
		Block: BlockContext{ChainID: 1, Number: 100, Timestamp: 1700000000, GasLimit: 30_000_000},
		Tx:    Transaction{GasLimit: 100000, From: w(0xa11ce), To: w(0xb0b)},
		Code:  []byte{0x60, 0x01, 0x60, 0x02, 0x01, 0x00},
		Steps: []TraceStep{
			{PC: 0, Op: 0x60, Gas: 79000, GasCost: 3, Depth: 1},
			{PC: 2, Op: 0x60, Gas: 78997, GasCost: 3, Depth: 1, Stack: []Word{w(1)}},
			{PC: 4, Op: 0x01, Gas: 78994, GasCost: 3, Depth: 1, Stack: []Word{w(1), w(2)}},
			{PC: 5, Op: 0x00, Gas: 78991, GasCost: 0, Depth: 1, Stack: []Word{w(3)}},
		},
	}
}

func TestEngineCreation(t *testing.T) {
	t.Run("DefaultConfig", func(t *testing.T) {
		engine, err := NewEngine(nil)
		require.NoError(t, err)
		require.NotNil(t, engine)
	})

	t.Run("CustomConfig", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.MaxRows = 64
		engine, err := NewEngine(cfg)
		require.NoError(t, err)
		require.NotNil(t, engine)
	})

	t.Run("InvalidConfig", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.MaxRows = 0
		_, err := NewEngine(cfg)
		require.Error(t, err)
		assert.ErrorIs(t, err, &EngineError{Code: ErrInvalidConfig})
	})
}

func TestArithmetize(t *testing.T) {
	engine, err := NewEngine(nil)
	require.NoError(t, err)

	t.Run("Satisfied", func(t *testing.T) {
		witness, err := engine.Arithmetize(addLog())
		require.NoError(t, err)

		assert.Equal(t, DefaultConfig().MaxRows, witness.Rows())
		assert.Equal(t, 7, witness.StepRows())
		assert.NoError(t, witness.Verify())
	})

	t.Run("EmptyLog", func(t *testing.T) {
		_, err := engine.Arithmetize(&ExecutionLog{})
		assert.ErrorIs(t, err, &EngineError{Code: ErrInvalidInput})
	})

	t.Run("InconsistentLog", func(t *testing.T) {
		log := addLog()
		log.Steps[2].Stack = []Word{*uint256.NewInt(1)} // ADD needs two operands
		log.Steps[3].Stack = nil
		_, err := engine.Arithmetize(log)
		assert.ErrorIs(t, err, &EngineError{Code: ErrTraceInconsistency})
	})

	t.Run("CapacityExceeded", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.MaxRows = 4
		small, err := NewEngine(cfg)
		require.NoError(t, err)
		_, err = small.Arithmetize(addLog())
		assert.ErrorIs(t, err, &EngineError{Code: ErrCapacityExceeded})
	})
}

func TestReplay(t *testing.T) {
	engine, err := NewEngine(nil)
	require.NoError(t, err)

	log := addLog()
	witness, err := engine.Arithmetize(log)
	require.NoError(t, err)

	steps, err := witness.Replay()
	require.NoError(t, err)
	require.Len(t, steps, len(log.Steps))

	for i, got := range steps {
		want := log.Steps[i]
		assert.Equal(t, want.PC, got.PC, "step %d pc", i)
		assert.Equal(t, want.Op, got.Op, "step %d op", i)
		assert.Equal(t, want.Gas, got.Gas, "step %d gas", i)
		assert.Equal(t, want.GasCost, got.GasCost, "step %d cost", i)
	}
}
