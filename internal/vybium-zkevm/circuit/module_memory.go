package circuit

import (
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/vybium/vybium-zkevm/internal/vybium-zkevm/evm"
	"github.com/vybium/vybium-zkevm/internal/vybium-zkevm/trace"
)

// memoryModule handles MLOAD and MSTORE. Word slots: 0 the offset, 1 the
// transferred word. The middle rw record is the memory access; for MLOAD
// the third record writes the loaded word back to the stack, for MSTORE
// the second stack pop supplies it. Both directions touch a full 32-byte
// word, so the expansion reach is 32.
type memoryModule struct{}

func (m *memoryModule) State() ExecutionState { return StateMemory }

// isStoreFlag is opcode - MLOAD: 0 for MLOAD, 1 for MSTORE
func isStoreFlag(cur []fr.Element) fr.Element {
	return feSub(cur[ColOpcode], fe(uint64(evm.MLOAD)))
}

func (m *memoryModule) Gates(cs *ConstraintSystem) {
	opcodeBindingGate(cs, StateMemory, evm.MLOAD, evm.MSTORE)
	rwCountGate(cs, StateMemory, 3)
	memExpansionGates(cs, StateMemory, 0, 32)

	// MLOAD nets zero stack movement, MSTORE pops two.
	cs.AddGate(Gate{
		Name:   "memory_sp_delta",
		Degree: 2,
		State:  StateMemory,
		Scope:  ScopeEvery,
		Eval: func(cur, next []fr.Element, ch *Challenges) fr.Element {
			return feSub(cur[AuxCol(auxSpDelta)], feMul(fe(2), isStoreFlag(cur)))
		},
	})

	stackRwLookup(cs, "memory_offset_pop", StateMemory, 0, false, 0, 0)

	// Record 1: memory read (MLOAD) or the value pop (MSTORE).
	cs.AddLookup(Lookup{
		Name:  "memory_middle_access",
		State: StateMemory,
		Table: TableRw,
		Tuple: func(cur, next []fr.Element, ch *Challenges) []fr.Element {
			if f := isStoreFlag(cur); f.IsZero() {
				return rwLookupTuple(cur, 1, false, trace.RwMemory,
					wordLowU64(cur, 0), fe(0), wordRLC(cur, 1, ch.EvmWord), fe(0))
			}
			return rwLookupTuple(cur, 1, false, trace.RwStack,
				feAdd(cur[ColStackPointer], fe(1)), fe(0), wordRLC(cur, 1, ch.EvmWord), fe(0))
		},
	})

	// Record 2: stack write of the loaded word (MLOAD) or the memory
	// write (MSTORE).
	cs.AddLookup(Lookup{
		Name:  "memory_final_access",
		State: StateMemory,
		Table: TableRw,
		Tuple: func(cur, next []fr.Element, ch *Challenges) []fr.Element {
			if f := isStoreFlag(cur); f.IsZero() {
				return rwLookupTuple(cur, 2, true, trace.RwStack,
					cur[ColStackPointer], fe(0), wordRLC(cur, 1, ch.EvmWord), fe(0))
			}
			return rwLookupTuple(cur, 2, true, trace.RwMemory,
				wordLowU64(cur, 0), fe(0), wordRLC(cur, 1, ch.EvmWord), fe(0))
		},
	})
}

func (m *memoryModule) Assign(asg *Assignment, row int, step *trace.Step, tr *trace.Trace) error {
	if err := requireRwCount(step, row, 3); err != nil {
		return err
	}
	offRw, err := rwAt(step, row, 0, trace.RwStack, false)
	if err != nil {
		return err
	}
	var valueRw *trace.Rw
	if step.Op == evm.MLOAD {
		if valueRw, err = rwAt(step, row, 1, trace.RwMemory, false); err != nil {
			return err
		}
		if _, err = rwAt(step, row, 2, trace.RwStack, true); err != nil {
			return err
		}
		if !step.Rws[1].Value.Eq(&step.Rws[2].Value) {
			return stepError(ErrTraceInconsistency, row, step.Op.String(),
				"loaded word and pushed word disagree")
		}
	} else {
		if valueRw, err = rwAt(step, row, 1, trace.RwStack, false); err != nil {
			return err
		}
		if _, err = rwAt(step, row, 2, trace.RwMemory, true); err != nil {
			return err
		}
		if !step.Rws[1].Value.Eq(&step.Rws[2].Value) {
			return stepError(ErrTraceInconsistency, row, step.Op.String(),
				"popped word and stored word disagree")
		}
	}
	setWord(asg, row, 0, offRw.Value)
	setWord(asg, row, 1, valueRw.Value)

	off, err := requireU64Word(row, step, "memory offset", offRw.Value)
	if err != nil {
		return err
	}
	newSize := assignMemExpansion(asg, row, off, 32, step.MemorySize)
	if want := evm.ConstantGas(step.Op) + memGasCost(newSize) - memGasCost(step.MemorySize); step.GasCost != want {
		return stepError(ErrTraceInconsistency, row, step.Op.String(),
			"charged %d gas, fee schedule says %d", step.GasCost, want)
	}
	return nil
}

// mstore8Module handles MSTORE8: the stored byte is the value's least
// significant limb, and the access reaches a single byte
type mstore8Module struct{}

func (m *mstore8Module) State() ExecutionState { return StateMstore8 }

func (m *mstore8Module) Gates(cs *ConstraintSystem) {
	opcodeBindingGate(cs, StateMstore8, evm.MSTORE8)
	rwCountGate(cs, StateMstore8, 3)
	spDeltaGate(cs, StateMstore8, 2)
	memExpansionGates(cs, StateMstore8, 0, 1)

	stackRwLookup(cs, "mstore8_offset_pop", StateMstore8, 0, false, 0, 0)
	stackRwLookup(cs, "mstore8_value_pop", StateMstore8, 1, false, 1, 1)
	cs.AddLookup(Lookup{
		Name:  "mstore8_byte_write",
		State: StateMstore8,
		Table: TableRw,
		Tuple: func(cur, next []fr.Element, ch *Challenges) []fr.Element {
			// The record's value is a single byte, whose word RLC is the
			// byte itself.
			return rwLookupTuple(cur, 2, true, trace.RwMemory,
				wordLowU64(cur, 0), fe(0), cur[WordByteCol(1, WordBytes-1)], fe(0))
		},
	})
}

func (m *mstore8Module) Assign(asg *Assignment, row int, step *trace.Step, tr *trace.Trace) error {
	if err := requireRwCount(step, row, 3); err != nil {
		return err
	}
	offRw, err := rwAt(step, row, 0, trace.RwStack, false)
	if err != nil {
		return err
	}
	valRw, err := rwAt(step, row, 1, trace.RwStack, false)
	if err != nil {
		return err
	}
	memRw, err := rwAt(step, row, 2, trace.RwMemory, true)
	if err != nil {
		return err
	}
	low := valRw.Value.Bytes32()[WordBytes-1]
	if !memRw.Value.IsUint64() || memRw.Value.Uint64() != uint64(low) {
		return stepError(ErrTraceInconsistency, row, step.Op.String(),
			"stored %s, value's low byte is 0x%02x", memRw.Value.Hex(), low)
	}
	setWord(asg, row, 0, offRw.Value)
	setWord(asg, row, 1, valRw.Value)

	off, err := requireU64Word(row, step, "memory offset", offRw.Value)
	if err != nil {
		return err
	}
	newSize := assignMemExpansion(asg, row, off, 1, step.MemorySize)
	if want := evm.ConstantGas(step.Op) + memGasCost(newSize) - memGasCost(step.MemorySize); step.GasCost != want {
		return stepError(ErrTraceInconsistency, row, step.Op.String(),
			"charged %d gas, fee schedule says %d", step.GasCost, want)
	}
	return nil
}
