package circuit

import (
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/holiman/uint256"

	"github.com/vybium/vybium-zkevm/internal/vybium-zkevm/evm"
	"github.com/vybium/vybium-zkevm/internal/vybium-zkevm/trace"
)

// resultBitGates pins a word slot to a single boolean expressed in its
// least significant byte: the remaining limbs vanish
func resultBitGates(cs *ConstraintSystem, state ExecutionState, name string, slot int, bit func(cur []fr.Element, ch *Challenges) fr.Element) {
	cs.AddGate(Gate{
		Name:   name + "_low_bit",
		Degree: 3,
		State:  state,
		Scope:  ScopeEvery,
		Eval: func(cur, next []fr.Element, ch *Challenges) fr.Element {
			return feSub(cur[WordByteCol(slot, WordBytes-1)], bit(cur, ch))
		},
	})
	cs.AddGate(Gate{
		Name:   name + "_high_zero",
		Degree: 2,
		State:  state,
		Scope:  ScopeEvery,
		Eval: func(cur, next []fr.Element, ch *Challenges) fr.Element {
			var sum fr.Element
			for b := 0; b < WordBytes-1; b++ {
				sum = feAdd(sum, cur[WordByteCol(slot, b)])
			}
			return sum
		},
	})
}

// cmpModule handles LT and GT with one borrow chain. Operands are blended
// by the is-gt flag so the chain always states lt(a', b'): b' + diff = a'
// + 2^256·lt, with the verdict in the last chain carry. Word slots: 0 and 1
// the popped operands, 2 the pushed bit, 3 the borrow diff.
type cmpModule struct{}

func (m *cmpModule) State() ExecutionState { return StateCmp }

// isGtFlag is opcode - LT: 0 for LT, 1 for GT
func isGtFlag(cur []fr.Element) fr.Element {
	return feSub(cur[ColOpcode], fe(uint64(evm.LT)))
}

func (m *cmpModule) Gates(cs *ConstraintSystem) {
	opcodeBindingGate(cs, StateCmp, evm.LT, evm.GT)
	opcodeGasLookup(cs, StateCmp)
	rwCountGate(cs, StateCmp, 3)
	spDeltaGate(cs, StateCmp, 1)
	binaryOpLookups(cs, StateCmp, "cmp")

	carryChainGates(cs, StateCmp, "cmp_borrow",
		selectByteLE(1, 0, isGtFlag),
		wordByteLE(3),
		selectByteLE(0, 1, isGtFlag),
		0)
	resultBitGates(cs, StateCmp, "cmp_result", 2, func(cur []fr.Element, ch *Challenges) fr.Element {
		return cur[CarryCol(WordBytes - 1)]
	})
}

func (m *cmpModule) Assign(asg *Assignment, row int, step *trace.Step, tr *trace.Trace) error {
	if err := binaryOpRws(asg, row, step); err != nil {
		return err
	}
	x, y, out := step.Rws[0].Value, step.Rws[1].Value, step.Rws[2].Value

	a, b := x, y
	if step.Op == evm.GT {
		a, b = y, x
	}
	lt := a.Cmp(&b) < 0
	if got := !out.IsZero(); got != lt {
		return stepError(ErrTraceInconsistency, row, step.Op.String(),
			"recorded verdict %v, computed %v", got, lt)
	}

	var diff uint256.Int
	diff.Sub(&a, &b)
	setWord(asg, row, 3, diff)
	assignCarryChain(asg, row, 0, b, diff, a)
	return nil
}

// eqModule handles EQ through the word-RLC is-zero gadget: the two operands
// are equal exactly when their compressed encodings coincide, and the
// inverse witness of the difference lives in the phase-two scratch column.
type eqModule struct{}

func (m *eqModule) State() ExecutionState { return StateEq }

func (m *eqModule) Gates(cs *ConstraintSystem) {
	opcodeBindingGate(cs, StateEq, evm.EQ)
	opcodeGasLookup(cs, StateEq)
	rwCountGate(cs, StateEq, 3)
	spDeltaGate(cs, StateEq, 1)
	binaryOpLookups(cs, StateEq, "eq")

	diff := func(cur []fr.Element, ch *Challenges) fr.Element {
		return feSub(wordRLC(cur, 0, ch.EvmWord), wordRLC(cur, 1, ch.EvmWord))
	}
	bit := func(cur []fr.Element, ch *Challenges) fr.Element {
		return cur[WordByteCol(2, WordBytes-1)]
	}
	isZeroGates(cs, StateEq, "eq_words", diff, bit, AuxCol(auxScratch))
	resultBitGates(cs, StateEq, "eq_result", 2, bit)
}

func (m *eqModule) Assign(asg *Assignment, row int, step *trace.Step, tr *trace.Trace) error {
	if err := binaryOpRws(asg, row, step); err != nil {
		return err
	}
	x, y, out := step.Rws[0].Value, step.Rws[1].Value, step.Rws[2].Value
	if got := !out.IsZero(); got != x.Eq(&y) {
		return stepError(ErrTraceInconsistency, row, step.Op.String(),
			"recorded verdict %v, computed %v", got, x.Eq(&y))
	}
	return nil
}

// AssignPhase2 witnesses the inverse of the operand RLC difference
func (m *eqModule) AssignPhase2(asg *Assignment, row int, step *trace.Step, ch *Challenges) error {
	xb := step.Rws[0].Value.Bytes32()
	yb := step.Rws[1].Value.Bytes32()
	diff := feSub(bytesRLC(xb[:], ch.EvmWord), bytesRLC(yb[:], ch.EvmWord))
	asg.Set(row, AuxCol(auxScratch), feInverseOrZero(diff))
	return nil
}

// isZeroModule handles ISZERO over the operand's byte sum; the limbs are
// byte-range checked, so the sum vanishes exactly when the word does.
// Word slots: 0 the popped operand, 1 the pushed bit.
type isZeroModule struct{}

func (m *isZeroModule) State() ExecutionState { return StateIsZero }

func (m *isZeroModule) Gates(cs *ConstraintSystem) {
	opcodeBindingGate(cs, StateIsZero, evm.ISZERO)
	opcodeGasLookup(cs, StateIsZero)
	rwCountGate(cs, StateIsZero, 2)
	spDeltaGate(cs, StateIsZero, 0)
	stackRwLookup(cs, "is_zero_pop", StateIsZero, 0, false, 0, 0)
	stackRwLookup(cs, "is_zero_push", StateIsZero, 1, true, 0, 1)

	sum := func(cur []fr.Element, ch *Challenges) fr.Element {
		var s fr.Element
		for b := 0; b < WordBytes; b++ {
			s = feAdd(s, cur[WordByteCol(0, b)])
		}
		return s
	}
	bit := func(cur []fr.Element, ch *Challenges) fr.Element {
		return cur[WordByteCol(1, WordBytes-1)]
	}
	isZeroGates(cs, StateIsZero, "is_zero", sum, bit, AuxCol(auxInverse))
	resultBitGates(cs, StateIsZero, "is_zero_result", 1, bit)
}

func (m *isZeroModule) Assign(asg *Assignment, row int, step *trace.Step, tr *trace.Trace) error {
	if err := requireRwCount(step, row, 2); err != nil {
		return err
	}
	pop, err := rwAt(step, row, 0, trace.RwStack, false)
	if err != nil {
		return err
	}
	push, err := rwAt(step, row, 1, trace.RwStack, true)
	if err != nil {
		return err
	}
	if got := !push.Value.IsZero(); got != pop.Value.IsZero() {
		return stepError(ErrTraceInconsistency, row, step.Op.String(),
			"recorded verdict %v, computed %v", got, pop.Value.IsZero())
	}
	setWord(asg, row, 0, pop.Value)
	setWord(asg, row, 1, push.Value)

	var sum fr.Element
	be := pop.Value.Bytes32()
	for _, v := range be {
		sum = feAdd(sum, fe(uint64(v)))
	}
	asg.Set(row, AuxCol(auxInverse), feInverseOrZero(sum))
	return nil
}
