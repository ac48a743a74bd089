package circuit

import (
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/vybium/vybium-zkevm/internal/vybium-zkevm/evm"
	"github.com/vybium/vybium-zkevm/internal/vybium-zkevm/trace"
)

// pushModule handles PUSH1..PUSH32. The pushed word sits in slot 0; each of
// its low pushSize bytes is looked up against the bytecode immediate at
// pc + pushSize - j, and the remaining bytes must vanish. The immediate
// size itself is pinned to the opcode, so a lying pushSize cannot survive
// the opcode table lookup.
type pushModule struct{}

func (m *pushModule) State() ExecutionState { return StatePush }

func (m *pushModule) Gates(cs *ConstraintSystem) {
	opcodeGasLookup(cs, StatePush)
	rwCountGate(cs, StatePush, 1)
	spDeltaGate(cs, StatePush, -1)
	stackRwLookup(cs, "push_write", StatePush, 0, true, -1, 0)

	// pushSize = opcode - (PUSH1 - 1); combined with the opcode table
	// lookup this also binds the opcode to the push family.
	cs.AddGate(Gate{
		Name:   "push_size_from_opcode",
		Degree: 2,
		State:  StatePush,
		Scope:  ScopeEvery,
		Eval: func(cur, next []fr.Element, ch *Challenges) fr.Element {
			base := fe(uint64(evm.PUSH1) - 1)
			return feSub(cur[AuxCol(auxPushSize)], feSub(cur[ColOpcode], base))
		},
	})

	for j := 0; j < WordBytes; j++ {
		j := j
		cs.AddLookup(Lookup{
			Name:  fmt.Sprintf("push_immediate_byte%d", j),
			State: StatePush,
			Table: TableBytecode,
			Tuple: func(cur, next []fr.Element, ch *Challenges) []fr.Element {
				n := cur[AuxCol(auxPushSize)]
				if !n.IsUint64() || uint64(j) >= n.Uint64() {
					return nil
				}
				// Immediate byte order is big-endian: little-endian byte j
				// of the value sits at code offset pc + pushSize - j.
				off := feSub(feAdd(cur[ColPC], n), fe(uint64(j)))
				return []fr.Element{
					cur[ColCallID],
					off,
					cur[WordByteCol(0, WordBytes-1-j)],
					fe(0),
				}
			},
		})
	}

	cs.AddGate(Gate{
		Name:   "push_padding_zero",
		Degree: 2,
		State:  StatePush,
		Scope:  ScopeEvery,
		Eval: func(cur, next []fr.Element, ch *Challenges) fr.Element {
			n := cur[AuxCol(auxPushSize)]
			if !n.IsUint64() || n.Uint64() > WordBytes {
				return fe(1)
			}
			var sum fr.Element
			for j := int(n.Uint64()); j < WordBytes; j++ {
				sum = feAdd(sum, cur[WordByteCol(0, WordBytes-1-j)])
			}
			return sum
		},
	})
}

func (m *pushModule) Assign(asg *Assignment, row int, step *trace.Step, tr *trace.Trace) error {
	if err := requireRwCount(step, row, 1); err != nil {
		return err
	}
	rw, err := rwAt(step, row, 0, trace.RwStack, true)
	if err != nil {
		return err
	}
	setWord(asg, row, 0, rw.Value)

	call := tr.Call(step.CallIndex)
	if call == nil {
		return stepError(ErrTraceInconsistency, row, step.Op.String(),
			"unknown call context %d", step.CallIndex)
	}
	n := step.Op.PushSize()
	var want trace.Word
	for i := 0; i < n; i++ {
		want.Lsh(&want, 8)
		off := step.PC + 1 + uint64(i)
		if off < uint64(len(call.Code)) {
			var b trace.Word
			b.SetUint64(uint64(call.Code[off]))
			want.Or(&want, &b)
		}
	}
	if !want.Eq(&rw.Value) {
		return stepError(ErrTraceInconsistency, row, step.Op.String(),
			"pushed %s, immediate is %s", rw.Value.Hex(), want.Hex())
	}
	return nil
}

// popModule handles POP: one read at the stack top, nothing else
type popModule struct{}

func (m *popModule) State() ExecutionState { return StatePop }

func (m *popModule) Gates(cs *ConstraintSystem) {
	opcodeBindingGate(cs, StatePop, evm.POP)
	opcodeGasLookup(cs, StatePop)
	rwCountGate(cs, StatePop, 1)
	spDeltaGate(cs, StatePop, 1)
	stackRwLookup(cs, "pop_read", StatePop, 0, false, 0, 0)
}

func (m *popModule) Assign(asg *Assignment, row int, step *trace.Step, tr *trace.Trace) error {
	if err := requireRwCount(step, row, 1); err != nil {
		return err
	}
	rw, err := rwAt(step, row, 0, trace.RwStack, false)
	if err != nil {
		return err
	}
	setWord(asg, row, 0, rw.Value)
	return nil
}

// auxDepthIdx carries the dup/swap depth index decoded from the opcode
const auxDepthIdx = 8

// dupModule handles DUP1..DUP16: one read at depth n below the top, one
// write of the same word at the new top. Both lookups share word slot 0,
// which is what makes the copy a constraint.
type dupModule struct{}

func (m *dupModule) State() ExecutionState { return StateDup }

func (m *dupModule) Gates(cs *ConstraintSystem) {
	opcodeGasLookup(cs, StateDup)
	rwCountGate(cs, StateDup, 2)
	spDeltaGate(cs, StateDup, -1)

	// n = opcode - DUP1, bound to [0, 16) through the scaled byte check.
	cs.AddGate(Gate{
		Name:   "dup_index_from_opcode",
		Degree: 2,
		State:  StateDup,
		Scope:  ScopeEvery,
		Eval: func(cur, next []fr.Element, ch *Challenges) fr.Element {
			return feSub(cur[AuxCol(auxDepthIdx)], feSub(cur[ColOpcode], fe(uint64(evm.DUP1))))
		},
	})
	cs.AddLookup(Lookup{
		Name:  "dup_index_range",
		State: StateDup,
		Table: TableByteRange,
		Tuple: func(cur, next []fr.Element, ch *Challenges) []fr.Element {
			return []fr.Element{feMul(fe(16), cur[AuxCol(auxDepthIdx)])}
		},
	})

	cs.AddLookup(Lookup{
		Name:  "dup_read",
		State: StateDup,
		Table: TableRw,
		Tuple: func(cur, next []fr.Element, ch *Challenges) []fr.Element {
			addr := feAdd(cur[ColStackPointer], cur[AuxCol(auxDepthIdx)])
			return rwLookupTuple(cur, 0, false, trace.RwStack,
				addr, fe(0), wordRLC(cur, 0, ch.EvmWord), fe(0))
		},
	})
	stackRwLookup(cs, "dup_write", StateDup, 1, true, -1, 0)
}

func (m *dupModule) Assign(asg *Assignment, row int, step *trace.Step, tr *trace.Trace) error {
	if err := requireRwCount(step, row, 2); err != nil {
		return err
	}
	read, err := rwAt(step, row, 0, trace.RwStack, false)
	if err != nil {
		return err
	}
	write, err := rwAt(step, row, 1, trace.RwStack, true)
	if err != nil {
		return err
	}
	if !read.Value.Eq(&write.Value) {
		return stepError(ErrTraceInconsistency, row, step.Op.String(),
			"duplicated %s, wrote %s", read.Value.Hex(), write.Value.Hex())
	}
	n := uint64(step.Op - evm.DUP1)
	sp := uint64(trace.StackBase - step.StackSize)
	if read.Address != sp+n || write.Address != sp-1 {
		return stepError(ErrTraceInconsistency, row, step.Op.String(),
			"rw addresses %d/%d, expected %d/%d", read.Address, write.Address, sp+n, sp-1)
	}
	setWord(asg, row, 0, read.Value)
	asg.SetUint64(row, AuxCol(auxDepthIdx), n)
	return nil
}

// swapModule handles SWAP1..SWAP16: reads of the top and the cell n deep,
// then the two writes with the slots exchanged
type swapModule struct{}

func (m *swapModule) State() ExecutionState { return StateSwap }

func (m *swapModule) Gates(cs *ConstraintSystem) {
	opcodeGasLookup(cs, StateSwap)
	rwCountGate(cs, StateSwap, 4)
	spDeltaGate(cs, StateSwap, 0)

	// n = opcode - SWAP1 + 1, in [1, 16].
	cs.AddGate(Gate{
		Name:   "swap_index_from_opcode",
		Degree: 2,
		State:  StateSwap,
		Scope:  ScopeEvery,
		Eval: func(cur, next []fr.Element, ch *Challenges) fr.Element {
			base := fe(uint64(evm.SWAP1) - 1)
			return feSub(cur[AuxCol(auxDepthIdx)], feSub(cur[ColOpcode], base))
		},
	})
	cs.AddLookup(Lookup{
		Name:  "swap_index_range",
		State: StateSwap,
		Table: TableByteRange,
		Tuple: func(cur, next []fr.Element, ch *Challenges) []fr.Element {
			return []fr.Element{feMul(fe(16), feSub(cur[AuxCol(auxDepthIdx)], fe(1)))}
		},
	})

	deepAddr := func(cur []fr.Element) fr.Element {
		return feAdd(cur[ColStackPointer], cur[AuxCol(auxDepthIdx)])
	}
	accesses := []struct {
		name    string
		offset  uint64
		isWrite bool
		deep    bool
		slot    int
	}{
		{"swap_read_top", 0, false, false, 0},
		{"swap_read_deep", 1, false, true, 1},
		{"swap_write_top", 2, true, false, 1},
		{"swap_write_deep", 3, true, true, 0},
	}
	for _, a := range accesses {
		a := a
		cs.AddLookup(Lookup{
			Name:  a.name,
			State: StateSwap,
			Table: TableRw,
			Tuple: func(cur, next []fr.Element, ch *Challenges) []fr.Element {
				addr := cur[ColStackPointer]
				if a.deep {
					addr = deepAddr(cur)
				}
				return rwLookupTuple(cur, a.offset, a.isWrite, trace.RwStack,
					addr, fe(0), wordRLC(cur, a.slot, ch.EvmWord), fe(0))
			},
		})
	}
}

func (m *swapModule) Assign(asg *Assignment, row int, step *trace.Step, tr *trace.Trace) error {
	if err := requireRwCount(step, row, 4); err != nil {
		return err
	}
	var rws [4]*trace.Rw
	for i, isWrite := range []bool{false, false, true, true} {
		rw, err := rwAt(step, row, i, trace.RwStack, isWrite)
		if err != nil {
			return err
		}
		rws[i] = rw
	}
	if !rws[0].Value.Eq(&rws[3].Value) || !rws[1].Value.Eq(&rws[2].Value) {
		return stepError(ErrTraceInconsistency, row, step.Op.String(),
			"swap records do not exchange their values")
	}
	setWord(asg, row, 0, rws[0].Value)
	setWord(asg, row, 1, rws[1].Value)
	asg.SetUint64(row, AuxCol(auxDepthIdx), uint64(step.Op-evm.SWAP1)+1)
	return nil
}
