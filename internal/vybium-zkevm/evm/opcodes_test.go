package evm

import (
	"testing"
)

// TestOpcodeClassification tests the opcode family predicates
func TestOpcodeClassification(t *testing.T) {
	t.Run("Push", func(t *testing.T) {
		if !PUSH1.IsPush() || !PUSH32.IsPush() {
			t.Error("PUSH1/PUSH32 must classify as push")
		}
		if OpcodeId(0x5f).IsPush() || OpcodeId(0x80).IsPush() {
			t.Error("neighbors of the push range must not classify as push")
		}
		if got := OpcodeId(0x62).PushSize(); got != 3 {
			t.Errorf("PUSH3 immediate size = %d, want 3", got)
		}
		if got := ADD.PushSize(); got != 0 {
			t.Errorf("ADD immediate size = %d, want 0", got)
		}
	})

	t.Run("DupSwap", func(t *testing.T) {
		if !DUP1.IsDup() || !DUP16.IsDup() {
			t.Error("DUP1/DUP16 must classify as dup")
		}
		if !SWAP1.IsSwap() || !SWAP16.IsSwap() {
			t.Error("SWAP1/SWAP16 must classify as swap")
		}
		if DUP16.IsSwap() || SWAP1.IsDup() {
			t.Error("dup and swap ranges must not overlap")
		}
	})

	t.Run("Halting", func(t *testing.T) {
		for _, op := range []OpcodeId{STOP, RETURN, REVERT} {
			if !op.IsHalting() {
				t.Errorf("%v must be halting", op)
			}
		}
		if ADD.IsHalting() || CALL.IsHalting() {
			t.Error("ADD and CALL are not halting")
		}
	})

	t.Run("Size", func(t *testing.T) {
		if got := PUSH1.Size(); got != 2 {
			t.Errorf("PUSH1 size = %d, want 2", got)
		}
		if got := PUSH32.Size(); got != 33 {
			t.Errorf("PUSH32 size = %d, want 33", got)
		}
		if got := JUMPDEST.Size(); got != 1 {
			t.Errorf("JUMPDEST size = %d, want 1", got)
		}
	})
}

// TestOpcodeNames tests mnemonic rendering, including the parametric families
func TestOpcodeNames(t *testing.T) {
	cases := []struct {
		op   OpcodeId
		want string
	}{
		{STOP, "STOP"},
		{SHA3, "SHA3"},
		{OpcodeId(0x60), "PUSH1"},
		{OpcodeId(0x7f), "PUSH32"},
		{OpcodeId(0x85), "DUP6"},
		{OpcodeId(0x91), "SWAP2"},
		{OpcodeId(0xfe), "INVALID(0xfe)"},
	}
	for _, c := range cases {
		if got := c.op.String(); got != c.want {
			t.Errorf("String(0x%02x) = %q, want %q", byte(c.op), got, c.want)
		}
	}
}

// TestStackDiscipline tests the static pop/push counts the rw derivation
// relies on
func TestStackDiscipline(t *testing.T) {
	cases := []struct {
		op           OpcodeId
		pops, pushes int
	}{
		{STOP, 0, 0},
		{ADD, 2, 1},
		{ISZERO, 1, 1},
		{SHA3, 2, 1},
		{POP, 1, 0},
		{MSTORE, 2, 0},
		{SLOAD, 1, 1},
		{JUMPI, 2, 0},
		{PC, 0, 1},
		{CALL, 7, 1},
		{RETURN, 2, 0},
		{PUSH1, 0, 1},
		{DUP1 + 2, 3, 4},  // DUP3
		{SWAP1 + 3, 5, 5}, // SWAP4
	}
	for _, c := range cases {
		info := c.op.Stack()
		if info.Pops != c.pops || info.Pushes != c.pushes {
			t.Errorf("%v stack = (%d,%d), want (%d,%d)",
				c.op, info.Pops, info.Pushes, c.pops, c.pushes)
		}
	}

	t.Run("Delta", func(t *testing.T) {
		if got := ADD.Stack().Delta(); got != -1 {
			t.Errorf("ADD delta = %d, want -1", got)
		}
		if got := PUSH1.Stack().Delta(); got != 1 {
			t.Errorf("PUSH1 delta = %d, want 1", got)
		}
		if got := SWAP1.Stack().Delta(); got != 0 {
			t.Errorf("SWAP1 delta = %d, want 0", got)
		}
	})

	t.Run("MinDepth", func(t *testing.T) {
		if got := DUP16.Stack().MinDepth(); got != 16 {
			t.Errorf("DUP16 min depth = %d, want 16", got)
		}
		if got := SWAP16.Stack().MinDepth(); got != 17 {
			t.Errorf("SWAP16 min depth = %d, want 17", got)
		}
	})
}

// TestConstantGas tests the fee schedule entries the opcode table commits to
func TestConstantGas(t *testing.T) {
	cases := []struct {
		op   OpcodeId
		want uint64
	}{
		{STOP, 0},
		{ADD, 3},
		{MUL, 5},
		{SHA3, 30},
		{SLOAD, 100},
		{JUMP, 8},
		{JUMPI, 10},
		{JUMPDEST, 1},
		{PUSH1, 3},
		{DUP1 + 6, 3},  // DUP7
		{SWAP1 + 8, 3}, // SWAP9
		{CALL, 100},
		{RETURN, 0},
	}
	for _, c := range cases {
		if got := ConstantGas(c.op); got != c.want {
			t.Errorf("ConstantGas(%v) = %d, want %d", c.op, got, c.want)
		}
	}
}

// TestValidOpcodes tests the fixed validity table contents
func TestValidOpcodes(t *testing.T) {
	ops := ValidOpcodes()
	seen := make(map[OpcodeId]bool, len(ops))
	prev := -1
	for _, op := range ops {
		if !op.Valid() {
			t.Errorf("ValidOpcodes contains invalid opcode %v", op)
		}
		if int(op) <= prev {
			t.Errorf("ValidOpcodes not in ascending order at %v", op)
		}
		prev = int(op)
		seen[op] = true
	}
	if !seen[STOP] || !seen[PUSH32] || !seen[SWAP16] || !seen[REVERT] {
		t.Error("ValidOpcodes missing expected members")
	}
	if seen[OpcodeId(0x05)] || seen[OpcodeId(0xfe)] {
		t.Error("ValidOpcodes contains opcodes outside the instruction set")
	}
}
