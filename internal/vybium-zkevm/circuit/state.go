// Package circuit implements the execution constraint engine: the witness
// row layout, the gadget library, the per-opcode constraint modules, the
// execution state machine and the cross-circuit lookup fabric.
//
// The package turns a recorded trace into (a) a constraint system — gates,
// lookups and permutation arguments declared once at construction time — and
// (b) a witness matrix of field elements satisfying those constraints exactly
// when the trace is a valid execution. Both are handed to an external proving
// backend; a built-in checker evaluates the full system directly for testing
// and pre-flight validation.
package circuit

import (
	"github.com/vybium/vybium-zkevm/internal/vybium-zkevm/evm"
)

// ExecutionState identifies which constraint module owns a row. Exactly one
// state selector is active per row; the selector bank is validated one-hot by
// the state machine.
type ExecutionState int

const (
	// StateBeginTx opens a transaction (virtual step)
	StateBeginTx ExecutionState = iota

	// StateEndTx closes a transaction and settles the refund (virtual step)
	StateEndTx

	// StateEndBlock closes the block; it is also the padding state, so its
	// constraints must hold on an all-default row
	StateEndBlock

	// StateStop handles STOP
	StateStop

	// StateAddSub handles ADD and SUB through one shared module
	StateAddSub

	// StateMul handles MUL
	StateMul

	// StateDivMod handles DIV and MOD
	StateDivMod

	// StateCmp handles LT and GT
	StateCmp

	// StateEq handles EQ
	StateEq

	// StateIsZero handles ISZERO
	StateIsZero

	// StateBitwise handles AND, OR and XOR
	StateBitwise

	// StateNot handles NOT
	StateNot

	// StateSha3 handles SHA3
	StateSha3

	// StateCallContext handles ADDRESS, CALLER and CALLVALUE
	StateCallContext

	// StateBlockContext handles COINBASE, TIMESTAMP, NUMBER and GASLIMIT
	StateBlockContext

	// StatePop handles POP
	StatePop

	// StateMemory handles MLOAD and MSTORE
	StateMemory

	// StateMstore8 handles MSTORE8
	StateMstore8

	// StateMsize handles MSIZE
	StateMsize

	// StateSload handles SLOAD
	StateSload

	// StateSstore handles SSTORE
	StateSstore

	// StateJump handles JUMP
	StateJump

	// StateJumpi handles JUMPI
	StateJumpi

	// StateJumpdest handles JUMPDEST
	StateJumpdest

	// StatePc handles PC
	StatePc

	// StateGas handles GAS
	StateGas

	// StatePush handles PUSH1..PUSH32
	StatePush

	// StateDup handles DUP1..DUP16
	StateDup

	// StateSwap handles SWAP1..SWAP16
	StateSwap

	// StateCall handles CALL
	StateCall

	// StateReturnRevert handles RETURN and REVERT
	StateReturnRevert

	// NumStates is the size of the selector bank
	NumStates
)

// stateNames maps execution states to display names
var stateNames = [NumStates]string{
	"BeginTx", "EndTx", "EndBlock", "Stop", "AddSub", "Mul", "DivMod",
	"Cmp", "Eq", "IsZero", "Bitwise", "Not", "Sha3",
	"CallContext", "BlockContext", "Pop", "Memory", "Mstore8", "Msize",
	"Sload", "Sstore", "Jump", "Jumpi", "Jumpdest", "Pc", "Gas",
	"Push", "Dup", "Swap", "Call", "ReturnRevert",
}

// String returns the state's display name
func (s ExecutionState) String() string {
	if s >= 0 && s < NumStates {
		return stateNames[s]
	}
	return "Unknown"
}

// IsHalting reports whether the state terminates a call context
func (s ExecutionState) IsHalting() bool {
	switch s {
	case StateStop, StateReturnRevert, StateEndTx, StateEndBlock:
		return true
	}
	return false
}

// StateForOpcode maps an opcode to its owning execution state. The mapping is
// total over the arithmetized instruction set; ok is false outside it.
func StateForOpcode(op evm.OpcodeId) (ExecutionState, bool) {
	switch {
	case op.IsPush():
		return StatePush, true
	case op.IsDup():
		return StateDup, true
	case op.IsSwap():
		return StateSwap, true
	}

	switch op {
	case evm.STOP:
		return StateStop, true
	case evm.ADD, evm.SUB:
		return StateAddSub, true
	case evm.MUL:
		return StateMul, true
	case evm.DIV, evm.MOD:
		return StateDivMod, true
	case evm.LT, evm.GT:
		return StateCmp, true
	case evm.EQ:
		return StateEq, true
	case evm.ISZERO:
		return StateIsZero, true
	case evm.AND, evm.OR, evm.XOR:
		return StateBitwise, true
	case evm.NOT:
		return StateNot, true
	case evm.SHA3:
		return StateSha3, true
	case evm.ADDRESS, evm.CALLER, evm.CALLVALUE:
		return StateCallContext, true
	case evm.COINBASE, evm.TIMESTAMP, evm.NUMBER, evm.GASLIMIT:
		return StateBlockContext, true
	case evm.POP:
		return StatePop, true
	case evm.MLOAD, evm.MSTORE:
		return StateMemory, true
	case evm.MSTORE8:
		return StateMstore8, true
	case evm.MSIZE:
		return StateMsize, true
	case evm.SLOAD:
		return StateSload, true
	case evm.SSTORE:
		return StateSstore, true
	case evm.JUMP:
		return StateJump, true
	case evm.JUMPI:
		return StateJumpi, true
	case evm.JUMPDEST:
		return StateJumpdest, true
	case evm.PC:
		return StatePc, true
	case evm.GAS:
		return StateGas, true
	case evm.CALL:
		return StateCall, true
	case evm.RETURN, evm.REVERT:
		return StateReturnRevert, true
	}
	return 0, false
}
