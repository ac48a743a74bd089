package integration_test

import (
	"errors"
	"testing"

	vybiumzkevm "github.com/vybium/vybium-zkevm/pkg/vybium-zkevm"
)

// Test04_CapacityBudgets tests that every configured budget is hard: a trace
// that fits arithmetizes, one row over fails with a resizable error, and the
// caller can recover by rebuilding with a larger configuration.
func Test04_CapacityBudgets(t *testing.T) {
	t.Log("=== Test 04: Capacity Budgets ===")

	// PUSH1 1, PUSH1 2, ADD, STOP needs 4 opcode rows + 3 virtual rows.
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

	t.Log("Step 1: Exact row fit...")
	cfg := vybiumzkevm.DefaultConfig()
	cfg.MaxRows = 7
	engine, err := vybiumzkevm.NewEngine(cfg)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	witness, err := engine.Arithmetize(log)
	if err != nil {
		t.Fatalf("Exact-fit arithmetization failed: %v", err)
	}
	if err := witness.Verify(); err != nil {
		t.Fatalf("Exact-fit witness failed verification: %v", err)
	}
	if witness.Rows() != 7 || witness.StepRows() != 7 {
		t.Errorf("rows/stepRows = %d/%d, want 7/7 with no padding", witness.Rows(), witness.StepRows())
	}
	t.Log("  7 steps fit 7 rows with no padding ✓")

	t.Log("Step 2: One row short...")
	cfg.MaxRows = 6
	small, err := vybiumzkevm.NewEngine(cfg)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	_, err = small.Arithmetize(log)
	if !errors.Is(err, &vybiumzkevm.EngineError{Code: vybiumzkevm.ErrCapacityExceeded}) {
		t.Fatalf("Arithmetize returned %v, want CapacityExceeded", err)
	}
	t.Logf("  Rejected as expected: %v", err)

	t.Log("Step 3: Bytecode budget...")
	cfg = vybiumzkevm.DefaultConfig()
	cfg.MaxBytecodeSize = 4 // the program carries 6 bytes
	tiny, err := vybiumzkevm.NewEngine(cfg)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	_, err = tiny.Arithmetize(log)
	if !errors.Is(err, &vybiumzkevm.EngineError{Code: vybiumzkevm.ErrCapacityExceeded}) {
		t.Fatalf("Arithmetize returned %v, want CapacityExceeded", err)
	}
	t.Logf("  Rejected as expected: %v", err)

	t.Log("Step 4: Recovery with a larger configuration...")
	witness, err = mustEngine(t, vybiumzkevm.DefaultConfig()).Arithmetize(log)
	if err != nil {
		t.Fatalf("Default-capacity arithmetization failed: %v", err)
	}
	if err := witness.Verify(); err != nil {
		t.Fatalf("Witness verification failed: %v", err)
	}
	t.Log("  Same log arithmetizes under the default budgets ✓")
}

func mustEngine(t *testing.T, cfg *vybiumzkevm.Config) vybiumzkevm.Engine {
	t.Helper()
	engine, err := vybiumzkevm.NewEngine(cfg)
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	return engine
}
