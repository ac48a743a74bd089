package trace

import (
	"testing"

	"github.com/holiman/uint256"

	"github.com/vybium/vybium-zkevm/internal/vybium-zkevm/evm"
)

func word(v uint64) uint256.Int { return *uint256.NewInt(v) }

func testBlock() BlockContext {
	return BlockContext{ChainID: 1, Number: 100, Timestamp: 1700000000, GasLimit: 30_000_000}
}

func testTx() Transaction {
	return Transaction{ID: 1, GasLimit: 100000, From: word(0xa11ce), To: word(0xb0b)}
}

// addProgram returns the raw log of PUSH1 1, PUSH1 2, ADD, STOP
func addProgram() ([]byte, []RawStep) {
	code := []byte{0x60, 0x01, 0x60, 0x02, 0x01, 0x00}
	raw := []RawStep{
		{PC: 0, Op: evm.PUSH1, Gas: 79000, GasCost: 3, Depth: 1},
		{PC: 2, Op: evm.PUSH1, Gas: 78997, GasCost: 3, Depth: 1,
			Stack: []uint256.Int{word(1)}},
		{PC: 4, Op: evm.ADD, Gas: 78994, GasCost: 3, Depth: 1,
			Stack: []uint256.Int{word(1), word(2)}},
		{PC: 5, Op: evm.STOP, Gas: 78991, GasCost: 0, Depth: 1,
			Stack: []uint256.Int{word(3)}},
	}
	return code, raw
}

// TestBuildVirtualSteps tests the BeginTx/EndTx/EndBlock insertion and the
// transaction-level bookkeeping
func TestBuildVirtualSteps(t *testing.T) {
	code, raw := addProgram()
	tr, err := NewBuilder(testBlock(), testTx(), code).Build(raw)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if got := tr.StepCount(); got != 7 {
		t.Fatalf("StepCount = %d, want 7 (4 opcodes + 3 virtual)", got)
	}

	begin := tr.Steps[0]
	if begin.Kind != KindBeginTx {
		t.Fatalf("first step kind = %v, want BeginTx", begin.Kind)
	}
	if begin.GasLeft != 100000 || begin.GasCost != 21000 {
		t.Errorf("BeginTx gas = (%d, %d), want (100000, 21000)", begin.GasLeft, begin.GasCost)
	}
	if len(begin.Rws) != 4 {
		t.Fatalf("BeginTx carries %d rw records, want 4 call-context pins", len(begin.Rws))
	}
	for i, rw := range begin.Rws {
		if rw.Tag != RwCallContext || !rw.IsWrite {
			t.Errorf("BeginTx rw %d: tag=%v write=%v, want call-context write", i, rw.Tag, rw.IsWrite)
		}
	}

	endTx := tr.Steps[5]
	if endTx.Kind != KindEndTx {
		t.Fatalf("step 5 kind = %v, want EndTx", endTx.Kind)
	}
	if endTx.GasLeft != 78991 {
		t.Errorf("EndTx gas left = %d, want 78991", endTx.GasLeft)
	}
	if len(endTx.Rws) != 1 || endTx.Rws[0].Tag != RwTxRefund {
		t.Error("EndTx must carry exactly the refund write")
	}

	if tr.Steps[6].Kind != KindEndBlock {
		t.Errorf("last step kind = %v, want EndBlock", tr.Steps[6].Kind)
	}
	if got := tr.GasUsed(); got != 21009 {
		t.Errorf("GasUsed = %d, want 21009", got)
	}
}

// TestDeriveStackRws tests the pop/push record derivation against the known
// addresses of a two-operand opcode
func TestDeriveStackRws(t *testing.T) {
	code, raw := addProgram()
	tr, err := NewBuilder(testBlock(), testTx(), code).Build(raw)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	// Step 3 is ADD with stack [1, 2]: sp = 1022, top = 2.
	add := tr.Steps[3]
	if add.Op != evm.ADD {
		t.Fatalf("step 3 op = %v, want ADD", add.Op)
	}
	if len(add.Rws) != 3 {
		t.Fatalf("ADD carries %d rw records, want 3", len(add.Rws))
	}

	cases := []struct {
		isWrite bool
		address uint64
		value   uint64
	}{
		{false, 1022, 2},
		{false, 1023, 1},
		{true, 1023, 3},
	}
	for i, c := range cases {
		rw := add.Rws[i]
		if rw.Tag != RwStack || rw.IsWrite != c.isWrite || rw.Address != c.address {
			t.Errorf("ADD rw %d = (tag=%v write=%v addr=%d), want stack write=%v addr=%d",
				i, rw.Tag, rw.IsWrite, rw.Address, c.isWrite, c.address)
		}
		if rw.Value.Uint64() != c.value {
			t.Errorf("ADD rw %d value = %d, want %d", i, rw.Value.Uint64(), c.value)
		}
	}

	// Counters must be globally contiguous from 1.
	want := uint64(1)
	for _, step := range tr.Steps {
		for _, rw := range step.Rws {
			if rw.Counter != want {
				t.Fatalf("rw counter = %d, want %d", rw.Counter, want)
			}
			want++
		}
	}
}

// TestDupSwapRws tests the crossed cell accesses DUP and SWAP record
func TestDupSwapRws(t *testing.T) {
	t.Run("Dup", func(t *testing.T) {
		code := []byte{0x60, 0x05, 0x80, 0x00} // PUSH1 5, DUP1, STOP
		raw := []RawStep{
			{PC: 0, Op: evm.PUSH1, Gas: 79000, GasCost: 3, Depth: 1},
			{PC: 2, Op: evm.DUP1, Gas: 78997, GasCost: 3, Depth: 1,
				Stack: []uint256.Int{word(5)}},
			{PC: 3, Op: evm.STOP, Gas: 78994, GasCost: 0, Depth: 1,
				Stack: []uint256.Int{word(5), word(5)}},
		}
		tr, err := NewBuilder(testBlock(), testTx(), code).Build(raw)
		if err != nil {
			t.Fatalf("Build failed: %v", err)
		}

		dup := tr.Steps[2]
		if len(dup.Rws) != 2 {
			t.Fatalf("DUP1 carries %d rw records, want read+write", len(dup.Rws))
		}
		if dup.Rws[0].IsWrite || dup.Rws[0].Address != 1023 {
			t.Errorf("DUP1 read at %d, want the duplicated cell 1023", dup.Rws[0].Address)
		}
		if !dup.Rws[1].IsWrite || dup.Rws[1].Address != 1022 {
			t.Errorf("DUP1 write at %d, want the new top 1022", dup.Rws[1].Address)
		}
	})

	t.Run("Swap", func(t *testing.T) {
		code := []byte{0x60, 0x01, 0x60, 0x02, 0x90, 0x00} // PUSH1 1, PUSH1 2, SWAP1, STOP
		raw := []RawStep{
			{PC: 0, Op: evm.PUSH1, Gas: 79000, GasCost: 3, Depth: 1},
			{PC: 2, Op: evm.PUSH1, Gas: 78997, GasCost: 3, Depth: 1,
				Stack: []uint256.Int{word(1)}},
			{PC: 4, Op: evm.SWAP1, Gas: 78994, GasCost: 3, Depth: 1,
				Stack: []uint256.Int{word(1), word(2)}},
			{PC: 5, Op: evm.STOP, Gas: 78991, GasCost: 0, Depth: 1,
				Stack: []uint256.Int{word(2), word(1)}},
		}
		tr, err := NewBuilder(testBlock(), testTx(), code).Build(raw)
		if err != nil {
			t.Fatalf("Build failed: %v", err)
		}

		swap := tr.Steps[3]
		if len(swap.Rws) != 4 {
			t.Fatalf("SWAP1 carries %d rw records, want 2 reads + 2 writes", len(swap.Rws))
		}
		// Reads observe the pre-state, writes land crossed.
		if swap.Rws[0].Address != 1022 || swap.Rws[0].Value.Uint64() != 2 {
			t.Error("SWAP1 first read must observe the old top")
		}
		if swap.Rws[1].Address != 1023 || swap.Rws[1].Value.Uint64() != 1 {
			t.Error("SWAP1 second read must observe the deep cell")
		}
		if !swap.Rws[2].IsWrite || swap.Rws[2].Address != 1022 || swap.Rws[2].Value.Uint64() != 1 {
			t.Error("SWAP1 must write the deep value to the top")
		}
		if !swap.Rws[3].IsWrite || swap.Rws[3].Address != 1023 || swap.Rws[3].Value.Uint64() != 2 {
			t.Error("SWAP1 must write the old top to the deep cell")
		}
	})
}

// TestStoragePrevValues tests that SSTORE records carry the seeded pre-state
// and that the refund settles against the 1/5 cap
func TestStoragePrevValues(t *testing.T) {
	code := []byte{0x60, 0x01, 0x60, 0x00, 0x55, 0x00} // PUSH1 1, PUSH1 0, SSTORE, STOP
	raw := []RawStep{
		{PC: 0, Op: evm.PUSH1, Gas: 79000, GasCost: 3, Depth: 1},
		{PC: 2, Op: evm.PUSH1, Gas: 78997, GasCost: 3, Depth: 1,
			Stack: []uint256.Int{word(1)}},
		{PC: 4, Op: evm.SSTORE, Gas: 78994, GasCost: 2900, Depth: 1,
			Stack: []uint256.Int{word(1), word(0)}},
		{PC: 5, Op: evm.STOP, Gas: 76094, GasCost: 0, Depth: 1, Refund: 1_000_000},
	}

	slot := word(0)
	seed := map[[32]byte]uint256.Int{slot.Bytes32(): word(7)}
	tr, err := NewBuilder(testBlock(), testTx(), code).WithStorage(seed).Build(raw)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	sstore := tr.Steps[3]
	var storageRw *Rw
	for i := range sstore.Rws {
		if sstore.Rws[i].Tag == RwStorage {
			storageRw = &sstore.Rws[i]
		}
	}
	if storageRw == nil {
		t.Fatal("SSTORE produced no storage record")
	}
	if !storageRw.IsWrite || storageRw.Value.Uint64() != 1 {
		t.Error("SSTORE record must write the new value")
	}
	if storageRw.ValuePrev.Uint64() != 7 {
		t.Errorf("SSTORE prev value = %d, want the seeded 7", storageRw.ValuePrev.Uint64())
	}
	if !storageRw.IsRevertible() {
		t.Error("storage writes must count as revertible")
	}

	// used = 21000 + 3 + 3 + 2900 = 23906; the claimed refund is clamped
	// to used/5 = 4781.
	endTx := tr.Steps[len(tr.Steps)-2]
	if endTx.Kind != KindEndTx {
		t.Fatalf("penultimate step kind = %v, want EndTx", endTx.Kind)
	}
	if endTx.GasRefund != 4781 {
		t.Errorf("EndTx refund = %d, want the capped 4781", endTx.GasRefund)
	}
	if endTx.Rws[0].Value.Uint64() != 4781 {
		t.Errorf("refund record value = %d, want 4781", endTx.Rws[0].Value.Uint64())
	}
}

// TestBuildRejects tests the malformed logs the builder must refuse
func TestBuildRejects(t *testing.T) {
	code, raw := addProgram()

	t.Run("StackUnderflow", func(t *testing.T) {
		bad := make([]RawStep, len(raw))
		copy(bad, raw)
		bad[2].Stack = []uint256.Int{word(1)} // ADD needs two operands
		bad[3].Stack = nil
		if _, err := NewBuilder(testBlock(), testTx(), code).Build(bad); err == nil {
			t.Fatal("Build accepted an underflowing ADD")
		}
	})

	t.Run("NonHaltingEnd", func(t *testing.T) {
		if _, err := NewBuilder(testBlock(), testTx(), code).Build(raw[:3]); err == nil {
			t.Fatal("Build accepted a log that does not end in a halting step")
		}
	})

	t.Run("InvalidOpcode", func(t *testing.T) {
		bad := make([]RawStep, len(raw))
		copy(bad, raw)
		bad[2].Op = evm.OpcodeId(0xfe)
		if _, err := NewBuilder(testBlock(), testTx(), code).Build(bad); err == nil {
			t.Fatal("Build accepted an opcode outside the instruction set")
		}
	})

	t.Run("IntrinsicGasOverLimit", func(t *testing.T) {
		tx := testTx()
		tx.GasLimit = 20000
		if _, err := NewBuilder(testBlock(), tx, code).Build(raw); err == nil {
			t.Fatal("Build accepted a tx whose intrinsic gas exceeds its limit")
		}
	})
}

// TestMemoryHelpers tests the zero-extension semantics of memory reads
func TestMemoryHelpers(t *testing.T) {
	mem := []byte{0xaa, 0xbb}

	w := memoryWord(mem, 0)
	be := w.Bytes32()
	if be[0] != 0xaa || be[1] != 0xbb || be[2] != 0 {
		t.Error("memoryWord must read in place and zero-extend")
	}

	if got := len(memorySlice(mem, 1, 4)); got != 4 {
		t.Errorf("memorySlice length = %d, want 4", got)
	}
	if s := memorySlice(mem, 100, 3); s[0] != 0 || s[1] != 0 || s[2] != 0 {
		t.Error("memorySlice past the end must be zero")
	}
}

// TestIntrinsicGas tests the calldata fee component
func TestIntrinsicGas(t *testing.T) {
	if got := intrinsicGas(nil); got != 21000 {
		t.Errorf("empty calldata intrinsic = %d, want 21000", got)
	}
	if got := intrinsicGas([]byte{0, 1, 0, 2}); got != 21000+4+16+4+16 {
		t.Errorf("calldata intrinsic = %d, want %d", got, 21000+4+16+4+16)
	}
}
