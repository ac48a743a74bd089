package integration_test

import (
	"testing"

	"github.com/holiman/uint256"

	vybiumzkevm "github.com/vybium/vybium-zkevm/pkg/vybium-zkevm"
)

func w(v uint64) vybiumzkevm.Word { return *uint256.NewInt(v) }

func testBlock() vybiumzkevm.BlockContext {
	return vybiumzkevm.BlockContext{ChainID: 1, Number: 100, Timestamp: 1700000000, GasLimit: 30_000_000}
}

func testTx() vybiumzkevm.Transaction {
	return vybiumzkevm.Transaction{GasLimit: 100000, From: w(0xa11ce), To: w(0xb0b)}
}

// Test01_BasicLogToWitness tests the most basic flow:
// 1. Record a raw execution log for a small arithmetic program
// 2. Arithmetize it into an assigned witness
// 3. Verify every gate, lookup and permutation
// 4. Replay the execution back out of the committed matrix
//
// Related example: examples/02_witness_check/main.go (user-facing demonstration)
func Test01_BasicLogToWitness(t *testing.T) {
	t.Log("=== Test 01: Execution Log -> Verified Witness ===")

	// Step 1: The log of PUSH1 1, PUSH1 2, ADD, STOP.
	t.Log("Step 1: Building the execution log...")
	log := &vybiumzkevm.ExecutionLog{
		Block: testBlock(),
		Tx:    testTx(),
		Code:  []byte{0x60, 0x01, 0x60, 0x02, 0x01, 0x00},
		Steps: []vybiumzkevm.TraceStep{
			{PC: 0, Op: 0x60, Gas: 79000, GasCost: 3, Depth: 1},
			{PC: 2, Op: 0x60, Gas: 78997, GasCost: 3, Depth: 1, Stack: []vybiumzkevm.Word{w(1)}},
			{PC: 4, Op: 0x01, Gas: 78994, GasCost: 3, Depth: 1, Stack: []vybiumzkevm.Word{w(1), w(2)}},
			{PC: 5, Op: 0x00, Gas: 78991, GasCost: 0, Depth: 1, Stack: []vybiumzkevm.Word{w(3)}},
		},
	}
	t.Logf("  Log has %d steps over %d bytes of code", len(log.Steps), len(log.Code))

	// Step 2: Arithmetize.
	t.Log("Step 2: Arithmetizing...")
	engine, err := vybiumzkevm.NewEngine(nil)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	witness, err := engine.Arithmetize(log)
	if err != nil {
		t.Fatalf("Failed to arithmetize: %v", err)
	}
	t.Logf("  Witness assigned: %d rows (%d carrying steps), %d columns",
		witness.Rows(), witness.StepRows(), witness.Columns())

	if witness.StepRows() != len(log.Steps)+3 {
		t.Errorf("StepRows = %d, want %d opcodes + BeginTx/EndTx/EndBlock",
			witness.StepRows(), len(log.Steps))
	}

	// Step 3: Verify.
	t.Log("Step 3: Verifying the witness...")
	if err := witness.Verify(); err != nil {
		t.Fatalf("Witness verification failed: %v", err)
	}
	t.Log("  All constraints satisfied ✓")

	// Step 4: Replay from the matrix alone.
	t.Log("Step 4: Replaying the execution from the committed matrix...")
	steps, err := witness.Replay()
	if err != nil {
		t.Fatalf("Replay failed: %v", err)
	}
	if len(steps) != len(log.Steps) {
		t.Fatalf("Replayed %d steps, want %d", len(steps), len(log.Steps))
	}
	for i, got := range steps {
		want := log.Steps[i]
		if got.PC != want.PC || got.Op != want.Op || got.Gas != want.Gas || got.GasCost != want.GasCost {
			t.Errorf("Replayed step %d = (pc=%d op=0x%02x gas=%d cost=%d), want (pc=%d op=0x%02x gas=%d cost=%d)",
				i, got.PC, got.Op, got.Gas, got.GasCost, want.PC, want.Op, want.Gas, want.GasCost)
		}
	}
	t.Log("  Replay matches the input log field for field ✓")
}
