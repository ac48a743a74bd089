package circuit

import (
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/vybium/vybium-zkevm/internal/vybium-zkevm/evm"
	"github.com/vybium/vybium-zkevm/internal/vybium-zkevm/trace"
)

// sloadModule handles SLOAD. Word slots: 0 the key, 1 the loaded value.
// The middle record is the storage read: a trace that claims an SLOAD
// without the matching storage entry fails exactly here, because no rw
// table row compresses to the claimed tuple.
type sloadModule struct{}

func (m *sloadModule) State() ExecutionState { return StateSload }

func (m *sloadModule) Gates(cs *ConstraintSystem) {
	opcodeBindingGate(cs, StateSload, evm.SLOAD)
	opcodeGasLookup(cs, StateSload)
	rwCountGate(cs, StateSload, 3)
	spDeltaGate(cs, StateSload, 0)

	stackRwLookup(cs, "sload_key_pop", StateSload, 0, false, 0, 0)
	cs.AddLookup(Lookup{
		Name:  "sload_storage_read",
		State: StateSload,
		Table: TableRw,
		Tuple: func(cur, next []fr.Element, ch *Challenges) []fr.Element {
			return rwLookupTuple(cur, 1, false, trace.RwStorage,
				fe(0), wordRLC(cur, 0, ch.EvmWord), wordRLC(cur, 1, ch.EvmWord), fe(0))
		},
	})
	stackRwLookup(cs, "sload_value_push", StateSload, 2, true, 0, 1)
}

func (m *sloadModule) Assign(asg *Assignment, row int, step *trace.Step, tr *trace.Trace) error {
	if err := requireRwCount(step, row, 3); err != nil {
		return err
	}
	keyRw, err := rwAt(step, row, 0, trace.RwStack, false)
	if err != nil {
		return err
	}
	loadRw, err := rwAt(step, row, 1, trace.RwStorage, false)
	if err != nil {
		return err
	}
	pushRw, err := rwAt(step, row, 2, trace.RwStack, true)
	if err != nil {
		return err
	}
	if !keyRw.Value.Eq(&loadRw.Key) {
		return stepError(ErrTraceInconsistency, row, step.Op.String(),
			"popped key %s, storage record reads %s", keyRw.Value.Hex(), loadRw.Key.Hex())
	}
	if !loadRw.Value.Eq(&pushRw.Value) {
		return stepError(ErrTraceInconsistency, row, step.Op.String(),
			"loaded %s, pushed %s", loadRw.Value.Hex(), pushRw.Value.Hex())
	}
	setWord(asg, row, 0, keyRw.Value)
	setWord(asg, row, 1, loadRw.Value)
	return nil
}

// sstoreModule handles SSTORE. Word slots: 0 the key, 1 the new value,
// 2 the previous value carried by the write record. Gas depends on the
// old/new value shape, so it is validated at assignment instead of the
// opcode table.
type sstoreModule struct{}

func (m *sstoreModule) State() ExecutionState { return StateSstore }

func (m *sstoreModule) Gates(cs *ConstraintSystem) {
	opcodeBindingGate(cs, StateSstore, evm.SSTORE)
	rwCountGate(cs, StateSstore, 3)
	spDeltaGate(cs, StateSstore, 2)

	stackRwLookup(cs, "sstore_key_pop", StateSstore, 0, false, 0, 0)
	stackRwLookup(cs, "sstore_value_pop", StateSstore, 1, false, 1, 1)
	cs.AddLookup(Lookup{
		Name:  "sstore_storage_write",
		State: StateSstore,
		Table: TableRw,
		Tuple: func(cur, next []fr.Element, ch *Challenges) []fr.Element {
			return rwLookupTuple(cur, 2, true, trace.RwStorage,
				fe(0), wordRLC(cur, 0, ch.EvmWord),
				wordRLC(cur, 1, ch.EvmWord), wordRLC(cur, 2, ch.EvmWord))
		},
	})
}

func (m *sstoreModule) Assign(asg *Assignment, row int, step *trace.Step, tr *trace.Trace) error {
	if err := requireRwCount(step, row, 3); err != nil {
		return err
	}
	keyRw, err := rwAt(step, row, 0, trace.RwStack, false)
	if err != nil {
		return err
	}
	valRw, err := rwAt(step, row, 1, trace.RwStack, false)
	if err != nil {
		return err
	}
	storeRw, err := rwAt(step, row, 2, trace.RwStorage, true)
	if err != nil {
		return err
	}
	if !keyRw.Value.Eq(&storeRw.Key) || !valRw.Value.Eq(&storeRw.Value) {
		return stepError(ErrTraceInconsistency, row, step.Op.String(),
			"storage write does not carry the popped key/value")
	}
	setWord(asg, row, 0, keyRw.Value)
	setWord(asg, row, 1, valRw.Value)
	setWord(asg, row, 2, storeRw.ValuePrev)

	if want := sstoreGas(&storeRw.ValuePrev, &storeRw.Value); step.GasCost != want {
		return stepError(ErrTraceInconsistency, row, step.Op.String(),
			"charged %d gas, fee schedule says %d", step.GasCost, want)
	}
	return nil
}

// sstoreGas is the warm-slot store cost: setting an empty slot pays the
// set fee, changing an occupied slot the reset fee, and a no-op write or
// a dirty re-write the warm access fee
func sstoreGas(prev, value *trace.Word) uint64 {
	switch {
	case prev.Eq(value):
		return evm.GasWarmAccess
	case prev.IsZero():
		return evm.GasSstoreSet
	default:
		return evm.GasSstoreReset
	}
}
