package trace

import "github.com/holiman/uint256"

// RwTag classifies read/write table entries by the state they touch
type RwTag int

const (
	// RwStart is the tag of the rw table's sentinel first row
	RwStart RwTag = iota

	// RwStack is a stack cell access, keyed by (call id, stack pointer)
	RwStack

	// RwMemory is a memory byte access, keyed by (call id, address)
	RwMemory

	// RwStorage is a storage slot access, keyed by (call id, slot)
	RwStorage

	// RwCallContext is a call metadata access, keyed by (call id, field tag)
	RwCallContext

	// RwTxRefund tracks the transaction refund counter
	RwTxRefund

	// RwTxLog is a log emission, keyed by (tx id, log id)
	RwTxLog
)

// String returns the name of the rw tag
func (t RwTag) String() string {
	switch t {
	case RwStart:
		return "Start"
	case RwStack:
		return "Stack"
	case RwMemory:
		return "Memory"
	case RwStorage:
		return "Storage"
	case RwCallContext:
		return "CallContext"
	case RwTxRefund:
		return "TxRefund"
	case RwTxLog:
		return "TxLog"
	default:
		return "Unknown"
	}
}

// Rw is one read/write table record: an immutable fact about a single state
// access, referenced by the execution circuit through value-tuple lookups.
type Rw struct {
	// Counter is the global rw counter value assigned to this access
	Counter uint64

	// IsWrite distinguishes writes from reads
	IsWrite bool

	// Tag classifies the accessed state
	Tag RwTag

	// CallID scopes stack/memory/call-context accesses
	CallID int

	// Address is the stack pointer or memory address, per Tag
	Address uint64

	// Key is the storage slot for RwStorage records
	Key uint256.Int

	// Value is the value read or written
	Value uint256.Int

	// ValuePrev is the slot's previous value for storage writes, used by
	// the SSTORE gas and refund rules
	ValuePrev uint256.Int
}

// IsRevertible reports whether the record is a state write that must be
// undone when the enclosing call reverts
func (rw Rw) IsRevertible() bool {
	return rw.IsWrite && rw.Tag == RwStorage
}
