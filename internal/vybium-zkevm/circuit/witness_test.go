package circuit

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"

	"github.com/vybium/vybium-zkevm/internal/vybium-zkevm/evm"
	"github.com/vybium/vybium-zkevm/internal/vybium-zkevm/trace"
)

func word(v uint64) uint256.Int { return *uint256.NewInt(v) }

func testBlock() trace.BlockContext {
	return trace.BlockContext{ChainID: 1, Number: 100, Timestamp: 1700000000, GasLimit: 30_000_000}
}

func testTx() trace.Transaction {
	return trace.Transaction{ID: 1, GasLimit: 100000, From: word(0xa11ce), To: word(0xb0b)}
}

// addTrace builds the trace of PUSH1 1, PUSH1 2, ADD, STOP
func addTrace(t *testing.T) *trace.Trace {
	t.Helper()
	code := []byte{0x60, 0x01, 0x60, 0x02, 0x01, 0x00}
	raw := []trace.RawStep{
		{PC: 0, Op: evm.PUSH1, Gas: 79000, GasCost: 3, Depth: 1},
		{PC: 2, Op: evm.PUSH1, Gas: 78997, GasCost: 3, Depth: 1,
			Stack: []uint256.Int{word(1)}},
		{PC: 4, Op: evm.ADD, Gas: 78994, GasCost: 3, Depth: 1,
			Stack: []uint256.Int{word(1), word(2)}},
		{PC: 5, Op: evm.STOP, Gas: 78991, GasCost: 0, Depth: 1,
			Stack: []uint256.Int{word(3)}},
	}
	tr, err := trace.NewBuilder(testBlock(), testTx(), code).Build(raw)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	return tr
}

// TestBuildWitnessAdd assigns and checks a minimal arithmetic program
func TestBuildWitnessAdd(t *testing.T) {
	cfg := DefaultConfig()
	w, err := BuildWitness(addTrace(t), cfg)
	if err != nil {
		t.Fatalf("BuildWitness failed: %v", err)
	}

	if err := w.Check(); err != nil {
		t.Fatalf("Check failed on a well-formed witness: %v", err)
	}
	if got := w.Rows(); got != cfg.MaxRows {
		t.Errorf("Rows = %d, want the padded capacity %d", got, cfg.MaxRows)
	}
	if got := w.StepRows(); got != 7 {
		t.Errorf("StepRows = %d, want 7 (4 opcodes + 3 virtual)", got)
	}

	// Padding rows sit in the EndBlock state and nothing else.
	for row := w.StepRows(); row < w.Rows(); row++ {
		r := w.Row(row)
		for s := ExecutionState(0); s < NumStates; s++ {
			sel := r[SelectorCol(s)]
			if s == StateEndBlock {
				if !sel.IsOne() {
					t.Fatalf("padding row %d: EndBlock selector not set", row)
				}
			} else if !sel.IsZero() {
				t.Fatalf("padding row %d: stray selector %v", row, s)
			}
		}
	}
}

// TestBuildWitnessJump assigns and checks a control-transfer program
func TestBuildWitnessJump(t *testing.T) {
	code := []byte{0x60, 0x03, 0x56, 0x5b, 0x00} // PUSH1 3, JUMP, JUMPDEST, STOP
	raw := []trace.RawStep{
		{PC: 0, Op: evm.PUSH1, Gas: 79000, GasCost: 3, Depth: 1},
		{PC: 2, Op: evm.JUMP, Gas: 78997, GasCost: 8, Depth: 1,
			Stack: []uint256.Int{word(3)}},
		{PC: 3, Op: evm.JUMPDEST, Gas: 78989, GasCost: 1, Depth: 1},
		{PC: 4, Op: evm.STOP, Gas: 78988, GasCost: 0, Depth: 1},
	}
	tr, err := trace.NewBuilder(testBlock(), testTx(), code).Build(raw)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	w, err := BuildWitness(tr, nil)
	if err != nil {
		t.Fatalf("BuildWitness failed: %v", err)
	}
	if err := w.Check(); err != nil {
		t.Fatalf("Check failed: %v", err)
	}
}

// TestBuildWitnessStorage assigns and checks an SSTORE over seeded state
func TestBuildWitnessStorage(t *testing.T) {
	code := []byte{0x60, 0x01, 0x60, 0x00, 0x55, 0x00} // PUSH1 1, PUSH1 0, SSTORE, STOP
	raw := []trace.RawStep{
		{PC: 0, Op: evm.PUSH1, Gas: 79000, GasCost: 3, Depth: 1},
		{PC: 2, Op: evm.PUSH1, Gas: 78997, GasCost: 3, Depth: 1,
			Stack: []uint256.Int{word(1)}},
		{PC: 4, Op: evm.SSTORE, Gas: 78994, GasCost: 2900, Depth: 1,
			Stack: []uint256.Int{word(1), word(0)}},
		{PC: 5, Op: evm.STOP, Gas: 76094, GasCost: 0, Depth: 1},
	}
	slot := word(0)
	seed := map[[32]byte]uint256.Int{slot.Bytes32(): word(7)}
	tr, err := trace.NewBuilder(testBlock(), testTx(), code).WithStorage(seed).Build(raw)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	w, err := BuildWitness(tr, nil)
	if err != nil {
		t.Fatalf("BuildWitness failed: %v", err)
	}
	if err := w.Check(); err != nil {
		t.Fatalf("Check failed: %v", err)
	}
}

// TestStorageLookupBinding tests that an SLOAD result is pinned to the
// read/write table: the recorded read satisfies the lookup, a forged one
// compresses to a tuple no table row carries
func TestStorageLookupBinding(t *testing.T) {
	code := []byte{0x60, 0x2a, 0x60, 0x00, 0x55, 0x60, 0x00, 0x54, 0x00}
	raw := []trace.RawStep{
		{PC: 0, Op: evm.PUSH1, Gas: 79000, GasCost: 3, Depth: 1},
		{PC: 2, Op: evm.PUSH1, Gas: 78997, GasCost: 3, Depth: 1,
			Stack: []uint256.Int{word(42)}},
		{PC: 4, Op: evm.SSTORE, Gas: 78994, GasCost: 20000, Depth: 1,
			Stack: []uint256.Int{word(42), word(0)}},
		{PC: 5, Op: evm.PUSH1, Gas: 58994, GasCost: 3, Depth: 1},
		{PC: 7, Op: evm.SLOAD, Gas: 58991, GasCost: 100, Depth: 1,
			Stack: []uint256.Int{word(0)}},
		{PC: 8, Op: evm.STOP, Gas: 58891, GasCost: 0, Depth: 1,
			Stack: []uint256.Int{word(42)}},
	}
	tr, err := trace.NewBuilder(testBlock(), testTx(), code).Build(raw)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	w, err := BuildWitness(tr, nil)
	if err != nil {
		t.Fatalf("BuildWitness failed: %v", err)
	}
	if err := w.Check(); err != nil {
		t.Fatalf("Check failed on the honest read: %v", err)
	}

	// Row 5 is the SLOAD; word slot 1 holds the loaded value. Claiming 43
	// instead of the stored 42 must miss the storage read tuple.
	w.asg.cols[WordByteCol(1, WordBytes-1)][5].SetUint64(43)
	assertUnsatisfiable(t, w.Check())
}

// TestWitnessStepsRoundTrip reconstructs the step stream from the context
// columns and compares it field by field against the input trace
func TestWitnessStepsRoundTrip(t *testing.T) {
	tr := addTrace(t)
	w, err := BuildWitness(tr, nil)
	if err != nil {
		t.Fatalf("BuildWitness failed: %v", err)
	}

	steps, err := w.Steps()
	if err != nil {
		t.Fatalf("Steps failed: %v", err)
	}
	if len(steps) != len(tr.Steps) {
		t.Fatalf("reconstructed %d steps, want %d", len(steps), len(tr.Steps))
	}
	for i, got := range steps {
		want := tr.Steps[i]
		if got.Kind != want.Kind {
			t.Errorf("step %d kind = %v, want %v", i, got.Kind, want.Kind)
		}
		if got.Kind == trace.KindOp && got.Op != want.Op {
			t.Errorf("step %d op = %v, want %v", i, got.Op, want.Op)
		}
		if got.PC != want.PC || got.GasLeft != want.GasLeft || got.GasCost != want.GasCost {
			t.Errorf("step %d = (pc=%d gas=%d cost=%d), want (pc=%d gas=%d cost=%d)",
				i, got.PC, got.GasLeft, got.GasCost, want.PC, want.GasLeft, want.GasCost)
		}
		if got.StackSize != want.StackSize || got.RwCounter != want.RwCounter {
			t.Errorf("step %d bookkeeping = (depth=%d rwc=%d), want (depth=%d rwc=%d)",
				i, got.StackSize, got.RwCounter, want.StackSize, want.RwCounter)
		}
	}
}

// TestWitnessSoundness tampers with assigned cells and demands Check catch it
func TestWitnessSoundness(t *testing.T) {
	// Rows: 0 BeginTx, 1-2 PUSH1, 3 ADD, 4 STOP, 5 EndTx, 6 EndBlock.
	t.Run("ForgedOpcode", func(t *testing.T) {
		w, err := BuildWitness(addTrace(t), nil)
		if err != nil {
			t.Fatalf("BuildWitness failed: %v", err)
		}
		w.asg.cols[ColOpcode][3].SetUint64(uint64(evm.MUL))
		assertUnsatisfiable(t, w.Check())
	})

	t.Run("ForgedGas", func(t *testing.T) {
		w, err := BuildWitness(addTrace(t), nil)
		if err != nil {
			t.Fatalf("BuildWitness failed: %v", err)
		}
		// One extra unit of gas on the second PUSH1 breaks the gas
		// continuity into row 2.
		w.asg.cols[ColGasLeft][2].SetUint64(78998)
		assertUnsatisfiable(t, w.Check())
	})

	t.Run("ForgedGasCost", func(t *testing.T) {
		w, err := BuildWitness(addTrace(t), nil)
		if err != nil {
			t.Fatalf("BuildWitness failed: %v", err)
		}
		// Claiming 4 gas for ADD misses the fee schedule table and breaks
		// the gas continuity into row 4.
		w.asg.cols[AuxCol(auxGasCost)][3].SetUint64(4)
		assertUnsatisfiable(t, w.Check())
	})

	t.Run("ForgedSum", func(t *testing.T) {
		w, err := BuildWitness(addTrace(t), nil)
		if err != nil {
			t.Fatalf("BuildWitness failed: %v", err)
		}
		// ADD pushes 3; claiming 4 breaks the limbwise addition gate on
		// the result slot's low byte.
		w.asg.cols[WordByteCol(2, WordBytes-1)][3].SetUint64(4)
		assertUnsatisfiable(t, w.Check())
	})

	t.Run("ForgedSelector", func(t *testing.T) {
		w, err := BuildWitness(addTrace(t), nil)
		if err != nil {
			t.Fatalf("BuildWitness failed: %v", err)
		}
		// A second active selector breaks the one-hot discipline.
		w.asg.cols[SelectorCol(StateMul)][3].SetUint64(1)
		assertUnsatisfiable(t, w.Check())
	})
}

func assertUnsatisfiable(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("Check accepted a tampered witness")
	}
	var e *Error
	if !errors.As(err, &e) || e.Code != ErrUnsatisfiableWitness {
		t.Fatalf("Check returned %v, want an UnsatisfiableWitness error", err)
	}
}

// TestBuildWitnessRejects tests input and capacity validation
func TestBuildWitnessRejects(t *testing.T) {
	t.Run("EmptyTrace", func(t *testing.T) {
		_, err := BuildWitness(&trace.Trace{}, nil)
		var e *Error
		if !errors.As(err, &e) || e.Code != ErrInvalidInput {
			t.Fatalf("BuildWitness returned %v, want InvalidInput", err)
		}
	})

	t.Run("RowCapacity", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.MaxRows = 4 // the trace needs 7
		_, err := BuildWitness(addTrace(t), cfg)
		var e *Error
		if !errors.As(err, &e) || e.Code != ErrCapacityExceeded {
			t.Fatalf("BuildWitness returned %v, want CapacityExceeded", err)
		}
	})

	t.Run("BadConfig", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.MaxTxs = 0
		_, err := BuildWitness(addTrace(t), cfg)
		var e *Error
		if !errors.As(err, &e) || e.Code != ErrInvalidConfig {
			t.Fatalf("BuildWitness returned %v, want InvalidConfig", err)
		}
	})
}

// TestAssignmentPhaseBarrier tests that sealing freezes every deterministic
// column while leaving the phase-two scratch column writable
func TestAssignmentPhaseBarrier(t *testing.T) {
	asg := NewAssignment(4)
	asg.SetUint64(0, ColPC, 42)
	asg.Seal()

	// The scratch column stays open for randomness-dependent values.
	asg.SetUint64(1, AuxCol(0), 7)

	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("Set past the barrier did not panic")
		}
		e, ok := r.(*Error)
		if !ok || e.Code != ErrPhaseViolation {
			t.Fatalf("panic value = %v, want a PhaseViolation error", r)
		}
	}()
	asg.SetUint64(2, ColPC, 43)
}
