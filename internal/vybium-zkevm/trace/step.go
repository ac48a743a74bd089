// Package trace models recorded EVM execution traces: the per-step execution
// log emitted by an external tracer, enriched with the read/write operations
// and call-context bookkeeping the constraint engine needs.
//
// The package does not execute EVM code. It converts a raw step-by-step log
// (program counter, opcode, gas, stack snapshots) into ordered Steps carrying
// explicit read/write records and a global rw counter, the form consumed by
// witness assignment.
package trace

import (
	"github.com/holiman/uint256"

	"github.com/vybium/vybium-zkevm/internal/vybium-zkevm/evm"
)

// StepKind distinguishes real opcode steps from virtual bookkeeping steps
type StepKind int

const (
	// KindOp is a real EVM opcode dispatch
	KindOp StepKind = iota

	// KindBeginTx is the virtual step opening a transaction
	KindBeginTx

	// KindEndTx is the virtual step closing a transaction
	KindEndTx

	// KindEndBlock is the virtual step closing the block (also pads the trace)
	KindEndBlock
)

// String returns the name of the step kind
func (k StepKind) String() string {
	switch k {
	case KindOp:
		return "Op"
	case KindBeginTx:
		return "BeginTx"
	case KindEndTx:
		return "EndTx"
	case KindEndBlock:
		return "EndBlock"
	default:
		return "Unknown"
	}
}

// Step is one atomic execution event of the trace.
//
// Field layout mirrors the upstream circuit input builder: every quantity a
// constraint module may need to re-derive a row is captured here, in exact
// integer form. 256-bit values are uint256, never native machine words.
type Step struct {
	// Kind distinguishes opcode steps from virtual transaction/block steps
	Kind StepKind

	// Op is the executed opcode (meaningful only when Kind == KindOp)
	Op evm.OpcodeId

	// PC is the program counter of this step
	PC uint64

	// StackSize is the stack depth before the step executes
	StackSize int

	// MemorySize is the active memory size in bytes before the step executes
	MemorySize uint64

	// GasLeft is the remaining gas before the step executes
	GasLeft uint64

	// GasCost is the gas charged by this step
	GasCost uint64

	// GasRefund is the accumulated refund counter at this step
	GasRefund uint64

	// CallIndex identifies the call context this step belongs to
	CallIndex int

	// RwCounter is the global read/write counter when the step starts
	RwCounter uint64

	// ReversibleWriteCounter counts the call's revertible writes before
	// this step; ReversibleWriteCounterDelta is this step's contribution
	ReversibleWriteCounter      int
	ReversibleWriteCounterDelta int

	// LogID is the transaction-scoped log index at this step
	LogID int

	// Rws lists the read/write operations performed by this step, in the
	// order they hit the rw table
	Rws []Rw

	// KeccakPreimage holds the hashed memory region for SHA3 steps
	KeccakPreimage []byte

	// Err tags a step that halted exceptionally (out of gas, stack violation)
	Err string
}

// IsVirtual reports whether the step is a bookkeeping pseudo-step
func (s *Step) IsVirtual() bool {
	return s.Kind != KindOp
}

// IsHalting reports whether the step terminates its call context
func (s *Step) IsHalting() bool {
	if s.Kind != KindOp {
		return s.Kind == KindEndTx || s.Kind == KindEndBlock
	}
	return s.Op.IsHalting()
}

// StackReads returns the step's stack read records in rw order
func (s *Step) StackReads() []Rw {
	return s.filterStack(false)
}

// StackWrites returns the step's stack write records in rw order
func (s *Step) StackWrites() []Rw {
	return s.filterStack(true)
}

func (s *Step) filterStack(isWrite bool) []Rw {
	var out []Rw
	for _, rw := range s.Rws {
		if rw.Tag == RwStack && rw.IsWrite == isWrite {
			out = append(out, rw)
		}
	}
	return out
}

// StorageOps returns the step's storage records in rw order
func (s *Step) StorageOps() []Rw {
	var out []Rw
	for _, rw := range s.Rws {
		if rw.Tag == RwStorage {
			out = append(out, rw)
		}
	}
	return out
}

// Word is a 256-bit EVM word
type Word = uint256.Int
