package circuit

import (
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/vybium/vybium-zkevm/internal/vybium-zkevm/evm"
	"github.com/vybium/vybium-zkevm/internal/vybium-zkevm/trace"
)

// bitwiseModule handles AND, OR and XOR with 32 per-limb lookups into the
// fixed bitwise table, keyed by the opcode itself. Word slots: 0 and 1 the
// operands, 2 the result.
type bitwiseModule struct{}

func (m *bitwiseModule) State() ExecutionState { return StateBitwise }

func (m *bitwiseModule) Gates(cs *ConstraintSystem) {
	opcodeBindingGate(cs, StateBitwise, evm.AND, evm.OR, evm.XOR)
	opcodeGasLookup(cs, StateBitwise)
	rwCountGate(cs, StateBitwise, 3)
	spDeltaGate(cs, StateBitwise, 1)
	binaryOpLookups(cs, StateBitwise, "bitwise")

	for b := 0; b < WordBytes; b++ {
		b := b
		cs.AddLookup(Lookup{
			Name:  fmt.Sprintf("bitwise_limb%d", b),
			State: StateBitwise,
			Table: TableBitwise,
			Tuple: func(cur, next []fr.Element, ch *Challenges) []fr.Element {
				return []fr.Element{
					cur[ColOpcode],
					cur[WordByteCol(0, b)],
					cur[WordByteCol(1, b)],
					cur[WordByteCol(2, b)],
				}
			},
		})
	}
}

func (m *bitwiseModule) Assign(asg *Assignment, row int, step *trace.Step, tr *trace.Trace) error {
	if err := binaryOpRws(asg, row, step); err != nil {
		return err
	}
	x, y, z := step.Rws[0].Value, step.Rws[1].Value, step.Rws[2].Value
	xb, yb, zb := x.Bytes32(), y.Bytes32(), z.Bytes32()
	for i := range zb {
		var want byte
		switch step.Op {
		case evm.AND:
			want = xb[i] & yb[i]
		case evm.OR:
			want = xb[i] | yb[i]
		case evm.XOR:
			want = xb[i] ^ yb[i]
		}
		if zb[i] != want {
			return stepError(ErrTraceInconsistency, row, step.Op.String(),
				"result limb %d is 0x%02x, computed 0x%02x", i, zb[i], want)
		}
	}
	return nil
}

// notModule handles NOT: every result limb is the complement of the
// operand limb. Word slots: 0 operand, 1 result.
type notModule struct{}

func (m *notModule) State() ExecutionState { return StateNot }

func (m *notModule) Gates(cs *ConstraintSystem) {
	opcodeBindingGate(cs, StateNot, evm.NOT)
	opcodeGasLookup(cs, StateNot)
	rwCountGate(cs, StateNot, 2)
	spDeltaGate(cs, StateNot, 0)
	stackRwLookup(cs, "not_pop", StateNot, 0, false, 0, 0)
	stackRwLookup(cs, "not_push", StateNot, 1, true, 0, 1)

	for b := 0; b < WordBytes; b++ {
		b := b
		cs.AddGate(Gate{
			Name:   fmt.Sprintf("not_limb%d", b),
			Degree: 2,
			State:  StateNot,
			Scope:  ScopeEvery,
			Eval: func(cur, next []fr.Element, ch *Challenges) fr.Element {
				sum := feAdd(cur[WordByteCol(0, b)], cur[WordByteCol(1, b)])
				return feSub(sum, fe(255))
			},
		})
	}
}

func (m *notModule) Assign(asg *Assignment, row int, step *trace.Step, tr *trace.Trace) error {
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
	var want trace.Word
	want.Not(&pop.Value)
	if !want.Eq(&push.Value) {
		return stepError(ErrTraceInconsistency, row, step.Op.String(),
			"recorded complement %s, computed %s", push.Value.Hex(), want.Hex())
	}
	setWord(asg, row, 0, pop.Value)
	setWord(asg, row, 1, push.Value)
	return nil
}
