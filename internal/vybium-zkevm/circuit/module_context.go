package circuit

import (
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/holiman/uint256"

	"github.com/vybium/vybium-zkevm/internal/vybium-zkevm/evm"
	"github.com/vybium/vybium-zkevm/internal/vybium-zkevm/trace"
)

// pushOnlyRw validates the single stack write of a context-reading opcode
// and loads the pushed word into slot 0
func pushOnlyRw(asg *Assignment, row int, step *trace.Step) (*trace.Rw, error) {
	if err := requireRwCount(step, row, 1); err != nil {
		return nil, err
	}
	rw, err := rwAt(step, row, 0, trace.RwStack, true)
	if err != nil {
		return nil, err
	}
	setWord(asg, row, 0, rw.Value)
	return rw, nil
}

// pushOnlyGates declares the shared discipline of zero-pop one-push
// opcodes: one write at the new stack top
func pushOnlyGates(cs *ConstraintSystem, state ExecutionState, prefix string) {
	opcodeGasLookup(cs, state)
	rwCountGate(cs, state, 1)
	spDeltaGate(cs, state, -1)
	stackRwLookup(cs, prefix+"_push", state, 0, true, -1, 0)
}

// callContextModule handles ADDRESS, CALLER and CALLVALUE: the pushed word
// must match the call's pinned context field. The field tag is derived from
// the opcode by interpolation; aux cell 8 carries it so the lookup tuple
// stays linear.
type callContextModule struct{}

const auxFieldTag = 8

var callCtxTagForOp = lagrangeMap([][2]uint64{
	{uint64(evm.ADDRESS), trace.CallFieldCallee},
	{uint64(evm.CALLER), trace.CallFieldCaller},
	{uint64(evm.CALLVALUE), trace.CallFieldValue},
})

func (m *callContextModule) State() ExecutionState { return StateCallContext }

func (m *callContextModule) Gates(cs *ConstraintSystem) {
	opcodeBindingGate(cs, StateCallContext, evm.ADDRESS, evm.CALLER, evm.CALLVALUE)
	pushOnlyGates(cs, StateCallContext, "call_ctx")

	cs.AddGate(Gate{
		Name:   "call_ctx_field_tag",
		Degree: 3,
		State:  StateCallContext,
		Scope:  ScopeEvery,
		Eval: func(cur, next []fr.Element, ch *Challenges) fr.Element {
			return feSub(cur[AuxCol(auxFieldTag)], callCtxTagForOp(cur[ColOpcode]))
		},
	})
	cs.AddLookup(Lookup{
		Name:  "call_ctx_field_value",
		State: StateCallContext,
		Table: TableCallContext,
		Tuple: func(cur, next []fr.Element, ch *Challenges) []fr.Element {
			return []fr.Element{cur[ColCallID], cur[AuxCol(auxFieldTag)], wordRLC(cur, 0, ch.EvmWord)}
		},
	})
}

func (m *callContextModule) Assign(asg *Assignment, row int, step *trace.Step, tr *trace.Trace) error {
	rw, err := pushOnlyRw(asg, row, step)
	if err != nil {
		return err
	}
	call := tr.Call(step.CallIndex)
	if call == nil {
		return stepError(ErrTraceInconsistency, row, step.Op.String(),
			"unknown call context %d", step.CallIndex)
	}
	var tag uint64
	var want uint256.Int
	switch step.Op {
	case evm.ADDRESS:
		tag, want = trace.CallFieldCallee, call.Callee
	case evm.CALLER:
		tag, want = trace.CallFieldCaller, call.Caller
	case evm.CALLVALUE:
		tag, want = trace.CallFieldValue, call.Value
	}
	if !want.Eq(&rw.Value) {
		return stepError(ErrTraceInconsistency, row, step.Op.String(),
			"pushed %s, call context holds %s", rw.Value.Hex(), want.Hex())
	}
	asg.SetUint64(row, AuxCol(auxFieldTag), tag)
	return nil
}

// blockContextModule handles COINBASE, TIMESTAMP, NUMBER and GASLIMIT
// against the block table
type blockContextModule struct{}

var blockTagForOp = lagrangeMap([][2]uint64{
	{uint64(evm.COINBASE), BlockFieldCoinbase},
	{uint64(evm.TIMESTAMP), BlockFieldTimestamp},
	{uint64(evm.NUMBER), BlockFieldNumber},
	{uint64(evm.GASLIMIT), BlockFieldGasLimit},
})

func (m *blockContextModule) State() ExecutionState { return StateBlockContext }

func (m *blockContextModule) Gates(cs *ConstraintSystem) {
	opcodeBindingGate(cs, StateBlockContext, evm.COINBASE, evm.TIMESTAMP, evm.NUMBER, evm.GASLIMIT)
	pushOnlyGates(cs, StateBlockContext, "block_ctx")

	cs.AddGate(Gate{
		Name:   "block_ctx_field_tag",
		Degree: 4,
		State:  StateBlockContext,
		Scope:  ScopeEvery,
		Eval: func(cur, next []fr.Element, ch *Challenges) fr.Element {
			return feSub(cur[AuxCol(auxFieldTag)], blockTagForOp(cur[ColOpcode]))
		},
	})
	cs.AddLookup(Lookup{
		Name:  "block_ctx_field_value",
		State: StateBlockContext,
		Table: TableBlock,
		Tuple: func(cur, next []fr.Element, ch *Challenges) []fr.Element {
			return []fr.Element{cur[AuxCol(auxFieldTag)], fe(0), wordRLC(cur, 0, ch.EvmWord)}
		},
	})
}

func (m *blockContextModule) Assign(asg *Assignment, row int, step *trace.Step, tr *trace.Trace) error {
	rw, err := pushOnlyRw(asg, row, step)
	if err != nil {
		return err
	}
	var tag uint64
	var want uint256.Int
	switch step.Op {
	case evm.COINBASE:
		tag, want = BlockFieldCoinbase, tr.Block.Coinbase
	case evm.TIMESTAMP:
		tag = BlockFieldTimestamp
		want = *uint256.NewInt(tr.Block.Timestamp)
	case evm.NUMBER:
		tag = BlockFieldNumber
		want = *uint256.NewInt(tr.Block.Number)
	case evm.GASLIMIT:
		tag = BlockFieldGasLimit
		want = *uint256.NewInt(tr.Block.GasLimit)
	}
	if !want.Eq(&rw.Value) {
		return stepError(ErrTraceInconsistency, row, step.Op.String(),
			"pushed %s, block context holds %s", rw.Value.Hex(), want.Hex())
	}
	asg.SetUint64(row, AuxCol(auxFieldTag), tag)
	return nil
}

// pcModule handles PC: the pushed word mirrors the program counter
type pcModule struct{}

func (m *pcModule) State() ExecutionState { return StatePc }

func (m *pcModule) Gates(cs *ConstraintSystem) {
	opcodeBindingGate(cs, StatePc, evm.PC)
	pushOnlyGates(cs, StatePc, "pc")
	wordMirrorsGates(cs, StatePc, "pc_value", 0, func(cur []fr.Element) fr.Element {
		return cur[ColPC]
	})
}

func (m *pcModule) Assign(asg *Assignment, row int, step *trace.Step, tr *trace.Trace) error {
	rw, err := pushOnlyRw(asg, row, step)
	if err != nil {
		return err
	}
	if !rw.Value.Eq(uint256.NewInt(step.PC)) {
		return stepError(ErrTraceInconsistency, row, step.Op.String(),
			"pushed %s, pc is %d", rw.Value.Hex(), step.PC)
	}
	return nil
}

// gasModule handles GAS: the pushed word is the gas remaining after the
// opcode's own charge
type gasModule struct{}

func (m *gasModule) State() ExecutionState { return StateGas }

func (m *gasModule) Gates(cs *ConstraintSystem) {
	opcodeBindingGate(cs, StateGas, evm.GAS)
	pushOnlyGates(cs, StateGas, "gas")
	wordMirrorsGates(cs, StateGas, "gas_value", 0, func(cur []fr.Element) fr.Element {
		return feSub(cur[ColGasLeft], cur[AuxCol(auxGasCost)])
	})
}

func (m *gasModule) Assign(asg *Assignment, row int, step *trace.Step, tr *trace.Trace) error {
	rw, err := pushOnlyRw(asg, row, step)
	if err != nil {
		return err
	}
	if !rw.Value.Eq(uint256.NewInt(step.GasLeft - step.GasCost)) {
		return stepError(ErrTraceInconsistency, row, step.Op.String(),
			"pushed %s, remaining gas is %d", rw.Value.Hex(), step.GasLeft-step.GasCost)
	}
	return nil
}

// msizeModule handles MSIZE: the pushed word mirrors the active memory size
type msizeModule struct{}

func (m *msizeModule) State() ExecutionState { return StateMsize }

func (m *msizeModule) Gates(cs *ConstraintSystem) {
	opcodeBindingGate(cs, StateMsize, evm.MSIZE)
	pushOnlyGates(cs, StateMsize, "msize")
	wordMirrorsGates(cs, StateMsize, "msize_value", 0, func(cur []fr.Element) fr.Element {
		return cur[ColMemorySize]
	})
}

func (m *msizeModule) Assign(asg *Assignment, row int, step *trace.Step, tr *trace.Trace) error {
	rw, err := pushOnlyRw(asg, row, step)
	if err != nil {
		return err
	}
	if !rw.Value.Eq(uint256.NewInt(step.MemorySize)) {
		return stepError(ErrTraceInconsistency, row, step.Op.String(),
			"pushed %s, memory size is %d", rw.Value.Hex(), step.MemorySize)
	}
	return nil
}
