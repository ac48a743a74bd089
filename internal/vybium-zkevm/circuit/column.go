package circuit

import "fmt"

// Context columns: the VM registers every row carries. All remaining columns
// are the selector bank, the word banks and the gadget scratch area.
const (
	// ColStepIndex correlates all rows of one step
	ColStepIndex = iota

	// ColPC is the program counter
	ColPC

	// ColOpcode is the executed opcode id (0 on virtual steps)
	ColOpcode

	// ColStackPointer counts down from the stack base (1024 = empty)
	ColStackPointer

	// ColMemorySize is the active memory size in bytes
	ColMemorySize

	// ColGasLeft is the gas remaining before the step
	ColGasLeft

	// ColCallID identifies the row's call context
	ColCallID

	// ColCallDepth is the call nesting depth
	ColCallDepth

	// ColRwCounter is the global read/write counter at the step's start
	ColRwCounter

	// ColGasRefund is the accumulated refund counter
	ColGasRefund

	// ColRevWriteCounter counts the call's revertible writes so far
	ColRevWriteCounter

	// ColLogID is the transaction-scoped log index
	ColLogID

	// ColTxID identifies the enclosing transaction
	ColTxID

	numContextCols
)

// Word bank geometry: each row carries WordSlots 256-bit words decomposed
// into 32 byte limbs (big-endian, limb 0 most significant), plus boolean
// carry columns and generic scratch cells for gadget internals.
const (
	// WordSlots is the number of word operand slots per row; CALL needs
	// seven popped operands plus the result
	WordSlots = 8

	// WordBytes is the limb count of one word slot
	WordBytes = 32

	// CarryCols is the number of carry/borrow columns; wide enough for a
	// multiplication carry decomposition and a comparison borrow chain
	// side by side
	CarryCols = 96

	// AuxCols is the number of generic scratch columns (inverses, deltas,
	// intermediate products)
	AuxCols = 16
)

// NumColumns is the total witness width of the execution circuit
const NumColumns = int(numContextCols) + int(NumStates) + WordSlots*WordBytes + CarryCols + AuxCols

// SelectorCol returns the column index of an execution state's selector
func SelectorCol(s ExecutionState) int {
	return int(numContextCols) + int(s)
}

// WordByteCol returns the column of byte limb b (big-endian) of word slot w
func WordByteCol(w, b int) int {
	return int(numContextCols) + int(NumStates) + w*WordBytes + b
}

// CarryCol returns the column of boolean carry i
func CarryCol(i int) int {
	return int(numContextCols) + int(NumStates) + WordSlots*WordBytes + i
}

// AuxCol returns the column of generic scratch cell i
func AuxCol(i int) int {
	return int(numContextCols) + int(NumStates) + WordSlots*WordBytes + CarryCols + i
}

// contextColNames names the context columns for diagnostics
var contextColNames = [numContextCols]string{
	"step_index", "pc", "opcode", "stack_pointer", "memory_size", "gas_left",
	"call_id", "call_depth", "rw_counter", "gas_refund",
	"reversible_write_counter", "log_id", "tx_id",
}

// ColumnName returns a stable human-readable name for a column index,
// used in unsatisfiability reports
func ColumnName(col int) string {
	switch {
	case col < int(numContextCols):
		return contextColNames[col]
	case col < int(numContextCols)+int(NumStates):
		return "selector_" + ExecutionState(col-int(numContextCols)).String()
	case col < int(numContextCols)+int(NumStates)+WordSlots*WordBytes:
		rel := col - int(numContextCols) - int(NumStates)
		return fmt.Sprintf("word%d_byte%d", rel/WordBytes, rel%WordBytes)
	case col < int(numContextCols)+int(NumStates)+WordSlots*WordBytes+CarryCols:
		return fmt.Sprintf("carry%d", col-int(numContextCols)-int(NumStates)-WordSlots*WordBytes)
	default:
		return fmt.Sprintf("aux%d", col-int(numContextCols)-int(NumStates)-WordSlots*WordBytes-CarryCols)
	}
}
