package circuit

import (
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/holiman/uint256"

	"github.com/vybium/vybium-zkevm/internal/vybium-zkevm/evm"
	"github.com/vybium/vybium-zkevm/internal/vybium-zkevm/trace"
)

// beginTxModule opens a transaction: it pins the root call's context fields
// into the rw table and ties the starting gas and call metadata to the
// transaction table. Word slots: 0 caller, 1 callee, 2 value, 3 depth.
type beginTxModule struct{}

func (m *beginTxModule) State() ExecutionState { return StateBeginTx }

func (m *beginTxModule) Gates(cs *ConstraintSystem) {
	virtualStepGates(cs, StateBeginTx)
	rwCountGate(cs, StateBeginTx, 4)
	cs.AddGate(Gate{
		Name:  "begin_tx_pc_zero",
		State: StateBeginTx,
		Scope: ScopeEvery,
		Eval: func(cur, next []fr.Element, ch *Challenges) fr.Element {
			return cur[ColPC]
		},
	})
	cs.AddGate(Gate{
		Name:  "begin_tx_stack_empty",
		State: StateBeginTx,
		Scope: ScopeEvery,
		Eval: func(cur, next []fr.Element, ch *Challenges) fr.Element {
			return feSub(cur[ColStackPointer], fe(trace.StackBase))
		},
	})
	wordMirrorsGates(cs, StateBeginTx, "begin_tx_depth", 3, func(cur []fr.Element) fr.Element {
		return cur[ColCallDepth]
	})

	// The four call-context writes, in record order.
	ctxFields := []struct {
		name string
		tag  uint64
		slot int
	}{
		{"caller", trace.CallFieldCaller, 0},
		{"callee", trace.CallFieldCallee, 1},
		{"value", trace.CallFieldValue, 2},
		{"depth", trace.CallFieldDepth, 3},
	}
	for i, f := range ctxFields {
		i, f := i, f
		cs.AddLookup(Lookup{
			Name:  "begin_tx_ctx_" + f.name,
			State: StateBeginTx,
			Table: TableRw,
			Tuple: func(cur, next []fr.Element, ch *Challenges) []fr.Element {
				return rwLookupTuple(cur, uint64(i), true, trace.RwCallContext,
					fe(f.tag), fe(0), wordRLC(cur, f.slot, ch.EvmWord), fe(0))
			},
		})
	}

	// The same fields must agree with the transaction table.
	txFields := []struct {
		name string
		tag  uint64
		slot int
	}{
		{"from", TxFieldFrom, 0},
		{"to", TxFieldTo, 1},
		{"value", TxFieldValue, 2},
	}
	for _, f := range txFields {
		f := f
		cs.AddLookup(Lookup{
			Name:  "begin_tx_tx_" + f.name,
			State: StateBeginTx,
			Table: TableTx,
			Tuple: func(cur, next []fr.Element, ch *Challenges) []fr.Element {
				return []fr.Element{cur[ColTxID], fe(f.tag), fe(0), wordRLC(cur, f.slot, ch.EvmWord)}
			},
		})
	}
	cs.AddLookup(Lookup{
		Name:  "begin_tx_gas_limit",
		State: StateBeginTx,
		Table: TableTx,
		Tuple: func(cur, next []fr.Element, ch *Challenges) []fr.Element {
			return []fr.Element{cur[ColTxID], fe(TxFieldGasLimit), fe(0), cur[ColGasLeft]}
		},
	})
}

func (m *beginTxModule) Assign(asg *Assignment, row int, step *trace.Step, tr *trace.Trace) error {
	if err := requireRwCount(step, row, 4); err != nil {
		return err
	}
	for i := 0; i < 4; i++ {
		rw, err := rwAt(step, row, i, trace.RwCallContext, true)
		if err != nil {
			return err
		}
		setWord(asg, row, i, rw.Value)
	}

	call := tr.Call(step.CallIndex)
	if call == nil {
		return stepError(ErrTraceInconsistency, row, "BeginTx", "unknown call context %d", step.CallIndex)
	}
	tx := tr.Tx(call.TxID)
	if tx == nil {
		return stepError(ErrTraceInconsistency, row, "BeginTx", "unknown transaction %d", call.TxID)
	}
	if step.GasLeft != tx.GasLimit {
		return stepError(ErrTraceInconsistency, row, "BeginTx",
			"starting gas %d differs from tx gas limit %d", step.GasLeft, tx.GasLimit)
	}
	if want := txIntrinsicGas(tx); step.GasCost != want {
		return stepError(ErrTraceInconsistency, row, "BeginTx",
			"intrinsic gas %d, expected %d", step.GasCost, want)
	}
	return nil
}

// txIntrinsicGas mirrors the fee schedule's intrinsic transaction cost
func txIntrinsicGas(tx *trace.Transaction) uint64 {
	gas := evm.GasTx
	for _, b := range tx.CallData {
		if b == 0 {
			gas += 4
		} else {
			gas += 16
		}
	}
	return gas
}

// endTxModule settles the transaction refund. Word slot 0 mirrors the
// refund counter, whose write is the step's single rw record.
type endTxModule struct{}

func (m *endTxModule) State() ExecutionState { return StateEndTx }

func (m *endTxModule) Gates(cs *ConstraintSystem) {
	virtualStepGates(cs, StateEndTx)
	rwCountGate(cs, StateEndTx, 1)
	wordMirrorsGates(cs, StateEndTx, "end_tx_refund", 0, func(cur []fr.Element) fr.Element {
		return cur[ColGasRefund]
	})
	cs.AddLookup(Lookup{
		Name:  "end_tx_refund_write",
		State: StateEndTx,
		Table: TableRw,
		Tuple: func(cur, next []fr.Element, ch *Challenges) []fr.Element {
			return rwLookupTuple(cur, 0, true, trace.RwTxRefund,
				fe(0), fe(0), wordRLC(cur, 0, ch.EvmWord), fe(0))
		},
	})
}

func (m *endTxModule) Assign(asg *Assignment, row int, step *trace.Step, tr *trace.Trace) error {
	if err := requireRwCount(step, row, 1); err != nil {
		return err
	}
	rw, err := rwAt(step, row, 0, trace.RwTxRefund, true)
	if err != nil {
		return err
	}
	if !rw.Value.Eq(uint256.NewInt(step.GasRefund)) {
		return stepError(ErrTraceInconsistency, row, "EndTx",
			"refund record %s disagrees with refund counter %d", rw.Value.Hex(), step.GasRefund)
	}
	setWord(asg, row, 0, rw.Value)
	return nil
}

// endBlockModule closes the block. It doubles as the padding state, so
// every gate it declares must hold on an all-zero row.
type endBlockModule struct{}

func (m *endBlockModule) State() ExecutionState { return StateEndBlock }

func (m *endBlockModule) Gates(cs *ConstraintSystem) {
	virtualStepGates(cs, StateEndBlock)
	rwCountGate(cs, StateEndBlock, 0)
}

func (m *endBlockModule) Assign(asg *Assignment, row int, step *trace.Step, tr *trace.Trace) error {
	return requireRwCount(step, row, 0)
}

// virtualStepGates pins the registers real opcodes own to zero on a
// virtual step's row
func virtualStepGates(cs *ConstraintSystem, state ExecutionState) {
	cs.AddGate(Gate{
		Name:  "virtual_step_no_opcode_" + state.String(),
		State: state,
		Scope: ScopeEvery,
		Eval: func(cur, next []fr.Element, ch *Challenges) fr.Element {
			return feAdd(cur[ColOpcode], feAdd(cur[AuxCol(auxSpDelta)], cur[AuxCol(auxPushSize)]))
		},
	})
}
