package circuit

import (
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/vybium/vybium-zkevm/internal/vybium-zkevm/evm"
	"github.com/vybium/vybium-zkevm/internal/vybium-zkevm/trace"
)

// jumpDestLookup asserts that the row's jump target (word slot 0) is a
// JUMPDEST marker byte in the executing code. skip lets JUMPI disable the
// check on a fallthrough.
func jumpDestLookup(cs *ConstraintSystem, name string, state ExecutionState, skip func(cur []fr.Element) bool) {
	bytecodeLookup(cs, name, state,
		func(cur []fr.Element) fr.Element { return wordLowU64(cur, 0) },
		func(cur []fr.Element) fr.Element { return fe(uint64(evm.JUMPDEST)) },
		true, skip)
}

// jumpModule handles JUMP: the popped destination becomes the next pc and
// must point at a JUMPDEST. Word slot 0 holds the destination.
type jumpModule struct{}

func (m *jumpModule) State() ExecutionState { return StateJump }

func (m *jumpModule) Gates(cs *ConstraintSystem) {
	opcodeBindingGate(cs, StateJump, evm.JUMP)
	opcodeGasLookup(cs, StateJump)
	rwCountGate(cs, StateJump, 1)
	spDeltaGate(cs, StateJump, 1)
	stackRwLookup(cs, "jump_dest_pop", StateJump, 0, false, 0, 0)

	cs.AddGate(Gate{
		Name:   "jump_dest_fits_u64",
		Degree: 2,
		State:  StateJump,
		Scope:  ScopeEvery,
		Eval: func(cur, next []fr.Element, ch *Challenges) fr.Element {
			return wordHighSum(cur, 0)
		},
	})
	cs.AddGate(Gate{
		Name:   "jump_pc_transfer",
		Degree: 2,
		State:  StateJump,
		Scope:  ScopeTransition,
		Eval: func(cur, next []fr.Element, ch *Challenges) fr.Element {
			return feSub(next[ColPC], wordLowU64(cur, 0))
		},
	})
	jumpDestLookup(cs, "jump_target_marker", StateJump, nil)
}

func (m *jumpModule) Assign(asg *Assignment, row int, step *trace.Step, tr *trace.Trace) error {
	if err := requireRwCount(step, row, 1); err != nil {
		return err
	}
	rw, err := rwAt(step, row, 0, trace.RwStack, false)
	if err != nil {
		return err
	}
	setWord(asg, row, 0, rw.Value)
	dest, err := requireU64Word(row, step, "jump destination", rw.Value)
	if err != nil {
		return err
	}
	return checkJumpDest(row, step, tr, dest)
}

// jumpiModule handles JUMPI: pc transfers to the destination when the
// condition is non-zero, otherwise falls through. Word slots: 0 the
// destination, 1 the condition; the fallthrough flag is the is-zero
// verdict over the condition's byte sum.
type jumpiModule struct{}

const jumpiFallthroughCarry = 32

func (m *jumpiModule) State() ExecutionState { return StateJumpi }

func (m *jumpiModule) Gates(cs *ConstraintSystem) {
	opcodeBindingGate(cs, StateJumpi, evm.JUMPI)
	opcodeGasLookup(cs, StateJumpi)
	rwCountGate(cs, StateJumpi, 2)
	spDeltaGate(cs, StateJumpi, 2)
	stackRwLookup(cs, "jumpi_dest_pop", StateJumpi, 0, false, 0, 0)
	stackRwLookup(cs, "jumpi_cond_pop", StateJumpi, 1, false, 1, 1)

	isZeroGates(cs, StateJumpi, "jumpi_condition",
		func(cur []fr.Element, ch *Challenges) fr.Element {
			var sum fr.Element
			for b := 0; b < WordBytes; b++ {
				sum = feAdd(sum, cur[WordByteCol(1, b)])
			}
			return sum
		},
		func(cur []fr.Element, ch *Challenges) fr.Element {
			return cur[CarryCol(jumpiFallthroughCarry)]
		},
		AuxCol(auxInverse))

	cs.AddGate(Gate{
		Name:   "jumpi_dest_fits_u64",
		Degree: 2,
		State:  StateJumpi,
		Scope:  ScopeEvery,
		Eval: func(cur, next []fr.Element, ch *Challenges) fr.Element {
			return wordHighSum(cur, 0)
		},
	})
	cs.AddGate(Gate{
		Name:   "jumpi_pc_transfer",
		Degree: 3,
		State:  StateJumpi,
		Scope:  ScopeTransition,
		Eval: func(cur, next []fr.Element, ch *Challenges) fr.Element {
			fall := cur[CarryCol(jumpiFallthroughCarry)]
			want := feAdd(
				feMul(fall, feAdd(cur[ColPC], fe(1))),
				feMul(feSub(fe(1), fall), wordLowU64(cur, 0)),
			)
			return feSub(next[ColPC], want)
		},
	})
	jumpDestLookup(cs, "jumpi_target_marker", StateJumpi, func(cur []fr.Element) bool {
		return cur[CarryCol(jumpiFallthroughCarry)].IsOne()
	})
}

func (m *jumpiModule) Assign(asg *Assignment, row int, step *trace.Step, tr *trace.Trace) error {
	if err := requireRwCount(step, row, 2); err != nil {
		return err
	}
	destRw, err := rwAt(step, row, 0, trace.RwStack, false)
	if err != nil {
		return err
	}
	condRw, err := rwAt(step, row, 1, trace.RwStack, false)
	if err != nil {
		return err
	}
	setWord(asg, row, 0, destRw.Value)
	setWord(asg, row, 1, condRw.Value)

	var sum fr.Element
	be := condRw.Value.Bytes32()
	for _, v := range be {
		sum = feAdd(sum, fe(uint64(v)))
	}
	asg.Set(row, AuxCol(auxInverse), feInverseOrZero(sum))
	if condRw.Value.IsZero() {
		asg.SetUint64(row, CarryCol(jumpiFallthroughCarry), 1)
		return nil
	}
	dest, err := requireU64Word(row, step, "jump destination", destRw.Value)
	if err != nil {
		return err
	}
	return checkJumpDest(row, step, tr, dest)
}

// checkJumpDest validates a taken jump target against the executing code
func checkJumpDest(row int, step *trace.Step, tr *trace.Trace, dest uint64) error {
	call := tr.Call(step.CallIndex)
	if call == nil {
		return stepError(ErrTraceInconsistency, row, step.Op.String(),
			"unknown call context %d", step.CallIndex)
	}
	if dest >= uint64(len(call.Code)) || call.Code[dest] != byte(evm.JUMPDEST) {
		return stepError(ErrTraceInconsistency, row, step.Op.String(),
			"destination %d is not a JUMPDEST", dest)
	}
	return nil
}

// jumpdestModule handles the JUMPDEST marker itself, which only burns gas
type jumpdestModule struct{}

func (m *jumpdestModule) State() ExecutionState { return StateJumpdest }

func (m *jumpdestModule) Gates(cs *ConstraintSystem) {
	opcodeBindingGate(cs, StateJumpdest, evm.JUMPDEST)
	opcodeGasLookup(cs, StateJumpdest)
	rwCountGate(cs, StateJumpdest, 0)
	spDeltaGate(cs, StateJumpdest, 0)
}

func (m *jumpdestModule) Assign(asg *Assignment, row int, step *trace.Step, tr *trace.Trace) error {
	return requireRwCount(step, row, 0)
}
