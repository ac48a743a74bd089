package circuit

import (
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/holiman/uint256"

	"github.com/vybium/vybium-zkevm/internal/vybium-zkevm/evm"
	"github.com/vybium/vybium-zkevm/internal/vybium-zkevm/trace"
)

// stopModule handles STOP: a successful halt that touches nothing
type stopModule struct{}

func (m *stopModule) State() ExecutionState { return StateStop }

func (m *stopModule) Gates(cs *ConstraintSystem) {
	opcodeBindingGate(cs, StateStop, evm.STOP)
	opcodeGasLookup(cs, StateStop)
	rwCountGate(cs, StateStop, 0)
	spDeltaGate(cs, StateStop, 0)
}

func (m *stopModule) Assign(asg *Assignment, row int, step *trace.Step, tr *trace.Trace) error {
	return requireRwCount(step, row, 0)
}

// returnRevertModule handles RETURN and REVERT: both pop the output span
// and halt the current context. The opcode column distinguishes them for
// the reversion accounting; the constraint shape is shared. Word slots:
// 0 the output offset, 1 the output length.
type returnRevertModule struct{}

func (m *returnRevertModule) State() ExecutionState { return StateReturnRevert }

func (m *returnRevertModule) Gates(cs *ConstraintSystem) {
	opcodeBindingGate(cs, StateReturnRevert, evm.RETURN, evm.REVERT)
	rwCountGate(cs, StateReturnRevert, 2)
	spDeltaGate(cs, StateReturnRevert, 2)
	stackRwLookup(cs, "return_offset_pop", StateReturnRevert, 0, false, 0, 0)
	stackRwLookup(cs, "return_length_pop", StateReturnRevert, 1, false, 1, 1)
}

func (m *returnRevertModule) Assign(asg *Assignment, row int, step *trace.Step, tr *trace.Trace) error {
	if err := requireRwCount(step, row, 2); err != nil {
		return err
	}
	offRw, err := rwAt(step, row, 0, trace.RwStack, false)
	if err != nil {
		return err
	}
	lenRw, err := rwAt(step, row, 1, trace.RwStack, false)
	if err != nil {
		return err
	}
	setWord(asg, row, 0, offRw.Value)
	setWord(asg, row, 1, lenRw.Value)
	return nil
}

// callModule handles CALL. The seven operands occupy word slots 0 through 6
// (gas, address, value, args offset, args length, ret offset, ret length);
// slot 7 receives the success flag pushed for the caller. The rw records
// are the seven pops, the result push, and, when a child context opens,
// the four call-context writes pinning the child's metadata.
//
// Whether a child opens shows up as the depth delta to the next row. The
// gates branch on that delta: entry rows reset pc, stack and memory for
// the callee; a call that fails to launch behaves like a plain opcode.
type callModule struct{}

func (m *callModule) State() ExecutionState { return StateCall }

const (
	callRwResult      = 7
	callRwCtxBase     = 8
	callCtxRecords    = 4
	callBaseRwRecords = 8
)

func (m *callModule) Gates(cs *ConstraintSystem) {
	opcodeBindingGate(cs, StateCall, evm.CALL)
	spDeltaGate(cs, StateCall, 6)

	for j := 0; j < 7; j++ {
		stackRwLookup(cs, fmt.Sprintf("call_operand_pop_%d", j), StateCall,
			uint64(j), false, j, j)
	}
	stackRwLookup(cs, "call_result_push", StateCall, callRwResult, true, 6, 7)

	// The depth delta to the next row is the launch flag: 1 when a child
	// context opens, 0 when the call completes without one.
	cs.AddGate(Gate{
		Name:   "call_launch_flag_boolean",
		Degree: 3,
		State:  StateCall,
		Scope:  ScopeTransition,
		Eval: func(cur, next []fr.Element, ch *Challenges) fr.Element {
			f := feSub(next[ColCallDepth], cur[ColCallDepth])
			return feMul(f, feSub(f, fe(1)))
		},
	})
	cs.AddGate(Gate{
		Name:   "call_rw_count",
		Degree: 2,
		State:  StateCall,
		Scope:  ScopeTransition,
		Eval: func(cur, next []fr.Element, ch *Challenges) fr.Element {
			f := feSub(next[ColCallDepth], cur[ColCallDepth])
			want := feAdd(fe(callBaseRwRecords), feMul(fe(callCtxRecords), f))
			return feSub(cur[AuxCol(auxRwCount)], want)
		},
	})

	// Child entry: execution starts at the head of the callee's code with
	// an empty stack and fresh memory.
	cs.AddGate(Gate{
		Name:   "call_child_entry_pc",
		Degree: 3,
		State:  StateCall,
		Scope:  ScopeTransition,
		Eval: func(cur, next []fr.Element, ch *Challenges) fr.Element {
			f := feSub(next[ColCallDepth], cur[ColCallDepth])
			return feMul(f, next[ColPC])
		},
	})
	cs.AddGate(Gate{
		Name:   "call_child_entry_stack",
		Degree: 3,
		State:  StateCall,
		Scope:  ScopeTransition,
		Eval: func(cur, next []fr.Element, ch *Challenges) fr.Element {
			f := feSub(next[ColCallDepth], cur[ColCallDepth])
			return feMul(f, feSub(next[ColStackPointer], fe(trace.StackBase)))
		},
	})
	cs.AddGate(Gate{
		Name:   "call_child_entry_memory",
		Degree: 3,
		State:  StateCall,
		Scope:  ScopeTransition,
		Eval: func(cur, next []fr.Element, ch *Challenges) fr.Element {
			f := feSub(next[ColCallDepth], cur[ColCallDepth])
			return feMul(f, next[ColMemorySize])
		},
	})

	// No child: the registers follow the plain-opcode discipline the
	// generic continuity gates suspend around call rows.
	cs.AddGate(Gate{
		Name:   "call_flat_continuity",
		Degree: 3,
		State:  StateCall,
		Scope:  ScopeTransition,
		Eval: func(cur, next []fr.Element, ch *Challenges) fr.Element {
			g := feSub(fe(1), feSub(next[ColCallDepth], cur[ColCallDepth]))
			var acc fr.Element
			acc = feAdd(acc, feMul(g, feSub(next[ColPC], feAdd(cur[ColPC], fe(1)))))
			acc = feAdd(acc, feMul(g, feSub(next[ColStackPointer],
				feAdd(cur[ColStackPointer], fe(6)))))
			acc = feAdd(acc, feMul(g, feSub(next[ColCallID], cur[ColCallID])))
			acc = feAdd(acc, feMul(g, feSub(next[ColMemorySize], cur[ColMemorySize])))
			return acc
		},
	})

	// Context-write lookups tying the child's pinned metadata to the call
	// operands. They address the child's call id, read off the next row,
	// so they bypass rwLookupTuple. Skipped when no child opened. The
	// caller field has no execution-side counterpart on this row and is
	// checked at assignment time instead.
	ctxLookup := func(name string, offset uint64, field uint64, value func(cur, next []fr.Element, ch *Challenges) fr.Element) {
		cs.AddLookup(Lookup{
			Name:  name,
			State: StateCall,
			Table: TableRw,
			Tuple: func(cur, next []fr.Element, ch *Challenges) []fr.Element {
				if next == nil || next[ColCallDepth].Equal(&cur[ColCallDepth]) {
					return nil
				}
				return []fr.Element{
					feAdd(cur[ColRwCounter], fe(offset)),
					fe(1),
					fe(uint64(trace.RwCallContext)),
					next[ColCallID],
					fe(field),
					fe(0),
					value(cur, next, ch),
					fe(0),
				}
			},
		})
	}
	ctxLookup("call_ctx_callee", callRwCtxBase+1, trace.CallFieldCallee,
		func(cur, next []fr.Element, ch *Challenges) fr.Element {
			return wordRLC(cur, 1, ch.EvmWord)
		})
	ctxLookup("call_ctx_value", callRwCtxBase+2, trace.CallFieldValue,
		func(cur, next []fr.Element, ch *Challenges) fr.Element {
			return wordRLC(cur, 2, ch.EvmWord)
		})
	ctxLookup("call_ctx_depth", callRwCtxBase+3, trace.CallFieldDepth,
		func(cur, next []fr.Element, ch *Challenges) fr.Element {
			var d fr.Element
			if next[ColCallDepth].IsUint64() {
				depth := uint256.NewInt(next[ColCallDepth].Uint64()).Bytes32()
				d = bytesRLC(depth[:], ch.EvmWord)
			}
			return d
		})
}

func (m *callModule) Assign(asg *Assignment, row int, step *trace.Step, tr *trace.Trace) error {
	n := len(step.Rws)
	if n != callBaseRwRecords && n != callBaseRwRecords+callCtxRecords {
		return stepError(ErrTraceInconsistency, row, step.Op.String(),
			"%d rw records, want %d or %d", n, callBaseRwRecords, callBaseRwRecords+callCtxRecords)
	}
	for j := 0; j < 7; j++ {
		rw, err := rwAt(step, row, j, trace.RwStack, false)
		if err != nil {
			return err
		}
		setWord(asg, row, j, rw.Value)
	}
	res, err := rwAt(step, row, callRwResult, trace.RwStack, true)
	if err != nil {
		return err
	}
	setWord(asg, row, 7, res.Value)

	if n == callBaseRwRecords {
		return nil
	}
	// A child opened: cross-check the pinned context against the operands.
	// The context records carry the child's ID.
	child := tr.Call(step.Rws[callRwCtxBase].CallID)
	for j, want := range []struct {
		field uint64
		value uint256.Int
	}{
		{trace.CallFieldCaller, callerAddress(tr, step.CallIndex)},
		{trace.CallFieldCallee, wordOf(step, 1)},
		{trace.CallFieldValue, wordOf(step, 2)},
		{trace.CallFieldDepth, *uint256.NewInt(uint64(depthOf(child)))},
	} {
		rw, err := rwAt(step, row, callRwCtxBase+j, trace.RwCallContext, true)
		if err != nil {
			return err
		}
		if rw.Address != want.field || !rw.Value.Eq(&want.value) {
			return stepError(ErrTraceInconsistency, row, step.Op.String(),
				"call context record %d does not match the call operands", j)
		}
	}
	return nil
}

func depthOf(ctx *trace.CallContext) int {
	if ctx == nil {
		return 0
	}
	return ctx.Depth
}

func callerAddress(tr *trace.Trace, parentID int) uint256.Int {
	if parent := tr.Call(parentID); parent != nil {
		return parent.Callee
	}
	return uint256.Int{}
}

func wordOf(step *trace.Step, i int) uint256.Int {
	if i < len(step.Rws) {
		return step.Rws[i].Value
	}
	return uint256.Int{}
}
