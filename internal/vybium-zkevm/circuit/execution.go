package circuit

import (
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"github.com/vybium/vybium-zkevm/internal/vybium-zkevm/evm"
	"github.com/vybium/vybium-zkevm/internal/vybium-zkevm/trace"
)

// Generic scratch cell roles shared by every module. Cells beyond these are
// module-private.
const (
	// auxScratch is the only column writable after the challenge barrier;
	// it carries randomness-dependent cells (RLC inverses, preimage RLCs)
	auxScratch = 0

	// auxInverse carries deterministic field inverses for is-zero gadgets
	auxInverse = 1

	// auxMemQuot and auxMemRem carry the memory expansion decomposition
	auxMemQuot = 2
	auxMemRem  = 3

	// auxSpDelta is the stack pointer delta to the next row
	auxSpDelta = 4

	// auxPushSize is the opcode's immediate size (pc advances 1 + this)
	auxPushSize = 5

	// auxGasCost is the gas charged by the row's step
	auxGasCost = 6

	// auxRwCount is the number of rw records the row's step emits
	auxRwCount = 7
)

// OpcodeModule owns one execution state: it declares the state's gates and
// lookups once at circuit-definition time, and assigns the state's witness
// cells for each row the state is active on.
//
// Assign runs in phase one and must be deterministic; it returns a
// TraceInconsistency error when the step's recorded operands cannot be laid
// out in the row (missing rw records, operand mismatches, width overflows).
type OpcodeModule interface {
	// State returns the execution state the module owns
	State() ExecutionState

	// Gates declares the module's constraints into the system
	Gates(cs *ConstraintSystem)

	// Assign fills the module-owned cells of one row
	Assign(asg *Assignment, row int, step *trace.Step, tr *trace.Trace) error
}

// Phase2Assigner is implemented by modules with randomness-dependent cells.
// AssignPhase2 runs strictly after the challenge barrier and may only write
// the phase-two scratch column.
type Phase2Assigner interface {
	AssignPhase2(asg *Assignment, row int, step *trace.Step, ch *Challenges) error
}

// allModules lists every constraint module, one per execution state
func allModules() []OpcodeModule {
	return []OpcodeModule{
		&beginTxModule{},
		&endTxModule{},
		&endBlockModule{},
		&stopModule{},
		&addSubModule{},
		&mulModule{},
		&divModModule{},
		&cmpModule{},
		&eqModule{},
		&isZeroModule{},
		&bitwiseModule{},
		&notModule{},
		&sha3Module{},
		&callContextModule{},
		&blockContextModule{},
		&popModule{},
		&memoryModule{},
		&mstore8Module{},
		&msizeModule{},
		&sloadModule{},
		&sstoreModule{},
		&jumpModule{},
		&jumpiModule{},
		&jumpdestModule{},
		&pcModule{},
		&gasModule{},
		&pushModule{},
		&dupModule{},
		&swapModule{},
		&callModule{},
		&returnRevertModule{},
	}
}

// moduleTable indexes modules by their owned state
var moduleTable = func() [NumStates]OpcodeModule {
	var t [NumStates]OpcodeModule
	for _, m := range allModules() {
		s := m.State()
		if t[s] != nil {
			panic(fmt.Sprintf("circuit: state %v claimed by two modules", s))
		}
		t[s] = m
	}
	for s := ExecutionState(0); s < NumStates; s++ {
		if t[s] == nil {
			panic(fmt.Sprintf("circuit: state %v has no module", s))
		}
	}
	return t
}()

// moduleForState returns the module owning a state
func moduleForState(s ExecutionState) OpcodeModule {
	if s < 0 || s >= NumStates {
		return nil
	}
	return moduleTable[s]
}

// BuildConstraintSystem declares the full execution constraint system: the
// state machine, the global range checks, the rw permutation argument and
// every module's gates. Construction is deterministic and trace-independent.
func BuildConstraintSystem() *ConstraintSystem {
	cs := NewConstraintSystem()
	stateMachineGates(cs)
	rangeLookups(cs)
	rwPermutation(cs)
	for _, m := range allModules() {
		m.Gates(cs)
	}
	cs.Finalize()
	return cs
}

// ========== Execution state machine ==========

// haltingOrCallStates lists the states after which the row-to-row continuity
// of pc, gas and stack pointer is re-established by module-specific entry
// constraints rather than the generic transition gates
var haltingOrCallStates = []ExecutionState{
	StateEndBlock, StateCall, StateStop, StateReturnRevert,
}

// guardOut returns 1 when the current row's state is none of the listed
// states, 0 when it is one of them. Valid under the one-hot invariant.
func guardOut(cur []fr.Element, states ...ExecutionState) fr.Element {
	g := fe(1)
	for _, s := range states {
		g = feSub(g, cur[SelectorCol(s)])
	}
	return g
}

// stateMachineGates declares the selector bank discipline and the row-to-row
// continuity of the VM registers.
func stateMachineGates(cs *ConstraintSystem) {
	// Selector booleanity, one gate per state so no two violations cancel.
	for s := ExecutionState(0); s < NumStates; s++ {
		s := s
		cs.AddGate(Gate{
			Name:   "selector_boolean_" + s.String(),
			Degree: 2,
			State:  StateAny,
			Scope:  ScopeEvery,
			Eval: func(cur, next []fr.Element, ch *Challenges) fr.Element {
				return feBool(cur[SelectorCol(s)])
			},
		})
	}

	// Exactly one selector per row, padding rows included.
	cs.AddGate(Gate{
		Name:   "selector_one_hot",
		Degree: 1,
		State:  StateAny,
		Scope:  ScopeEvery,
		Eval: func(cur, next []fr.Element, ch *Challenges) fr.Element {
			sum := fe(0)
			for s := ExecutionState(0); s < NumStates; s++ {
				sum = feAdd(sum, cur[SelectorCol(s)])
			}
			return feSub(sum, fe(1))
		},
	})

	// Carry columns are boolean wherever they are used; unused cells are
	// zero, which passes.
	for i := 0; i < CarryCols; i++ {
		i := i
		cs.AddGate(Gate{
			Name:   fmt.Sprintf("carry_boolean_%d", i),
			Degree: 2,
			State:  StateAny,
			Scope:  ScopeEvery,
			Eval: func(cur, next []fr.Element, ch *Challenges) fr.Element {
				return feBool(cur[CarryCol(i)])
			},
		})
	}

	// The trace opens with BeginTx and closes with EndBlock.
	cs.AddGate(Gate{
		Name:  "first_row_begins_tx",
		State: StateAny,
		Scope: ScopeFirst,
		Eval: func(cur, next []fr.Element, ch *Challenges) fr.Element {
			return feSub(fe(1), cur[SelectorCol(StateBeginTx)])
		},
	})
	cs.AddGate(Gate{
		Name:  "last_row_ends_block",
		State: StateAny,
		Scope: ScopeLast,
		Eval: func(cur, next []fr.Element, ch *Challenges) fr.Element {
			return feSub(fe(1), cur[SelectorCol(StateEndBlock)])
		},
	})
	cs.AddGate(Gate{
		Name:  "first_step_index_zero",
		State: StateAny,
		Scope: ScopeFirst,
		Eval: func(cur, next []fr.Element, ch *Challenges) fr.Element {
			return cur[ColStepIndex]
		},
	})

	// Step index advances by one until padding begins.
	cs.AddGate(Gate{
		Name:   "step_index_increments",
		Degree: 2,
		State:  StateAny,
		Scope:  ScopeTransition,
		Eval: func(cur, next []fr.Element, ch *Challenges) fr.Element {
			g := guardOut(cur, StateEndBlock)
			return feMul(g, feSub(next[ColStepIndex], feAdd(cur[ColStepIndex], fe(1))))
		},
	})

	// The rw counter advances by exactly the row's record count.
	cs.AddGate(Gate{
		Name:   "rw_counter_continuity",
		Degree: 2,
		State:  StateAny,
		Scope:  ScopeTransition,
		Eval: func(cur, next []fr.Element, ch *Challenges) fr.Element {
			g := guardOut(cur, StateEndBlock)
			want := feAdd(cur[ColRwCounter], cur[AuxCol(auxRwCount)])
			return feMul(g, feSub(next[ColRwCounter], want))
		},
	})

	// Gas decreases by the charged cost. Suspended across call and halt
	// boundaries, where the callee entry / caller resume gas is pinned by
	// the call module instead.
	cs.AddGate(Gate{
		Name:   "gas_left_continuity",
		Degree: 2,
		State:  StateAny,
		Scope:  ScopeTransition,
		Eval: func(cur, next []fr.Element, ch *Challenges) fr.Element {
			g := guardOut(cur, append([]ExecutionState{StateEndTx}, haltingOrCallStates...)...)
			want := feSub(cur[ColGasLeft], cur[AuxCol(auxGasCost)])
			return feMul(g, feSub(next[ColGasLeft], want))
		},
	})

	// The program counter advances past the opcode and its immediate.
	// Jumps, call transfers and the virtual steps pin pc themselves.
	cs.AddGate(Gate{
		Name:   "pc_continuity",
		Degree: 2,
		State:  StateAny,
		Scope:  ScopeTransition,
		Eval: func(cur, next []fr.Element, ch *Challenges) fr.Element {
			g := guardOut(cur, append([]ExecutionState{
				StateBeginTx, StateEndTx, StateJump, StateJumpi,
			}, haltingOrCallStates...)...)
			want := feAdd(cur[ColPC], feAdd(fe(1), cur[AuxCol(auxPushSize)]))
			return feMul(g, feSub(next[ColPC], want))
		},
	})

	// The stack pointer moves by the opcode's declared delta.
	cs.AddGate(Gate{
		Name:   "stack_pointer_continuity",
		Degree: 2,
		State:  StateAny,
		Scope:  ScopeTransition,
		Eval: func(cur, next []fr.Element, ch *Challenges) fr.Element {
			g := guardOut(cur, haltingOrCallStates...)
			want := feAdd(cur[ColStackPointer], cur[AuxCol(auxSpDelta)])
			return feMul(g, feSub(next[ColStackPointer], want))
		},
	})

	// Memory size is stable except across memory-touching opcodes, whose
	// modules constrain the expansion themselves.
	cs.AddGate(Gate{
		Name:   "memory_size_continuity",
		Degree: 2,
		State:  StateAny,
		Scope:  ScopeTransition,
		Eval: func(cur, next []fr.Element, ch *Challenges) fr.Element {
			g := guardOut(cur, append([]ExecutionState{
				StateMemory, StateMstore8, StateSha3,
			}, haltingOrCallStates...)...)
			return feMul(g, feSub(next[ColMemorySize], cur[ColMemorySize]))
		},
	})

	// Call identity and depth are stable inside a context.
	cs.AddGate(Gate{
		Name:   "call_id_continuity",
		Degree: 2,
		State:  StateAny,
		Scope:  ScopeTransition,
		Eval: func(cur, next []fr.Element, ch *Challenges) fr.Element {
			g := guardOut(cur, haltingOrCallStates...)
			return feMul(g, feSub(next[ColCallID], cur[ColCallID]))
		},
	})
	cs.AddGate(Gate{
		Name:   "call_depth_continuity",
		Degree: 2,
		State:  StateAny,
		Scope:  ScopeTransition,
		Eval: func(cur, next []fr.Element, ch *Challenges) fr.Element {
			g := guardOut(cur, haltingOrCallStates...)
			return feMul(g, feSub(next[ColCallDepth], cur[ColCallDepth]))
		},
	})
	cs.AddGate(Gate{
		Name:   "tx_id_continuity",
		Degree: 2,
		State:  StateAny,
		Scope:  ScopeTransition,
		Eval: func(cur, next []fr.Element, ch *Challenges) fr.Element {
			g := guardOut(cur, StateEndBlock)
			return feMul(g, feSub(next[ColTxID], cur[ColTxID]))
		},
	})
}

// rangeLookups declares byte-range lookups for the entire word bank: every
// limb of every word slot is a byte, on every row. Word reconstruction
// soundness everywhere else rests on these.
func rangeLookups(cs *ConstraintSystem) {
	for w := 0; w < WordSlots; w++ {
		for b := 0; b < WordBytes; b++ {
			col := WordByteCol(w, b)
			cs.AddLookup(Lookup{
				Name:  fmt.Sprintf("byte_range_word%d_byte%d", w, b),
				State: StateAny,
				Table: TableByteRange,
				Tuple: func(cur, next []fr.Element, ch *Challenges) []fr.Element {
					return []fr.Element{cur[col]}
				},
			})
		}
	}
}

// rwPermutation ties the chronological rw record stream to the sorted rw
// table: the two multisets must be permutations of each other, so every
// record the execution consumed in time order appears exactly once in the
// table the per-access lookups hit.
func rwPermutation(cs *ConstraintSystem) {
	cs.AddPermutation(Permutation{
		Name: "rw_chronological_vs_sorted",
		Source: func(w *Witness) [][]fr.Element {
			chrono := w.Tables().RwChronological()
			rows := make([][]fr.Element, 0, len(chrono))
			for i := range chrono {
				rows = append(rows, rwTuple(&chrono[i], w.Challenges()))
			}
			return rows
		},
		Target: func(w *Witness) [][]fr.Element {
			return w.Tables().Tuples(TableRw, w.Challenges())
		},
	})
}

// evmOpcode recovers an opcode id from a witness cell
func evmOpcode(e fr.Element) evm.OpcodeId {
	if !e.IsUint64() || e.Uint64() > 0xff {
		return evm.OpcodeId(0xfe)
	}
	return evm.OpcodeId(e.Uint64())
}
