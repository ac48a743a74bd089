// Package evm defines the EVM instruction set metadata consumed by the
// constraint engine: opcode identifiers, stack discipline and constant gas
// costs.
//
// The engine never executes these instructions. It only needs enough static
// information per opcode to (a) decide which constraint module owns a trace
// step and (b) cross-check the trace generator's claims about stack and gas
// evolution.
package evm

import "fmt"

// OpcodeId is a single-byte EVM instruction identifier
type OpcodeId byte

// EVM instruction set (the subset arithmetized by the execution circuit)
const (
	// ========== Halting & Arithmetic (0x00 range) ==========

	// STOP halts execution of the current call context
	STOP OpcodeId = 0x00

	// ADD pops two words and pushes their sum mod 2^256
	ADD OpcodeId = 0x01

	// MUL pops two words and pushes their product mod 2^256
	MUL OpcodeId = 0x02

	// SUB pops two words and pushes their difference mod 2^256
	SUB OpcodeId = 0x03

	// DIV pops two words and pushes the integer quotient (0 on division by zero)
	DIV OpcodeId = 0x04

	// MOD pops two words and pushes the remainder (0 on modulo by zero)
	MOD OpcodeId = 0x06

	// ========== Comparison & Bitwise (0x10 range) ==========

	// LT pushes 1 if a < b else 0 (unsigned)
	LT OpcodeId = 0x10

	// GT pushes 1 if a > b else 0 (unsigned)
	GT OpcodeId = 0x11

	// EQ pushes 1 if a == b else 0
	EQ OpcodeId = 0x14

	// ISZERO pushes 1 if the top word is zero else 0
	ISZERO OpcodeId = 0x15

	// AND pushes the bitwise conjunction of two words
	AND OpcodeId = 0x16

	// OR pushes the bitwise disjunction of two words
	OR OpcodeId = 0x17

	// XOR pushes the bitwise exclusive-or of two words
	XOR OpcodeId = 0x18

	// NOT pushes the bitwise complement of the top word
	NOT OpcodeId = 0x19

	// SHA3 hashes a memory region with Keccak-256
	SHA3 OpcodeId = 0x20

	// ========== Environment (0x30 range) ==========

	// ADDRESS pushes the address of the executing account
	ADDRESS OpcodeId = 0x30

	// CALLER pushes the caller address of the current call
	CALLER OpcodeId = 0x33

	// CALLVALUE pushes the wei value transferred with the current call
	CALLVALUE OpcodeId = 0x34

	// ========== Block context (0x40 range) ==========

	// COINBASE pushes the current block's beneficiary address
	COINBASE OpcodeId = 0x41

	// TIMESTAMP pushes the current block's timestamp
	TIMESTAMP OpcodeId = 0x42

	// NUMBER pushes the current block number
	NUMBER OpcodeId = 0x43

	// GASLIMIT pushes the current block's gas limit
	GASLIMIT OpcodeId = 0x45

	// ========== Stack, Memory, Storage & Flow (0x50 range) ==========

	// POP discards the top stack word
	POP OpcodeId = 0x50

	// MLOAD reads a 32-byte word from memory
	MLOAD OpcodeId = 0x51

	// MSTORE writes a 32-byte word to memory
	MSTORE OpcodeId = 0x52

	// MSTORE8 writes a single byte to memory
	MSTORE8 OpcodeId = 0x53

	// SLOAD reads a word from the account's storage
	SLOAD OpcodeId = 0x54

	// SSTORE writes a word to the account's storage
	SSTORE OpcodeId = 0x55

	// JUMP sets the program counter to the popped destination
	JUMP OpcodeId = 0x56

	// JUMPI conditionally sets the program counter
	JUMPI OpcodeId = 0x57

	// PC pushes the program counter of this instruction
	PC OpcodeId = 0x58

	// MSIZE pushes the active memory size in bytes
	MSIZE OpcodeId = 0x59

	// GAS pushes the remaining gas after this instruction
	GAS OpcodeId = 0x5a

	// JUMPDEST marks a valid jump destination
	JUMPDEST OpcodeId = 0x5b

	// ========== Pushes, Dups, Swaps (0x60-0x9f) ==========

	// PUSH1 pushes a 1-byte immediate; PUSH2..PUSH32 follow consecutively
	PUSH1  OpcodeId = 0x60
	PUSH32 OpcodeId = 0x7f

	// DUP1 duplicates the top stack word; DUP2..DUP16 follow consecutively
	DUP1  OpcodeId = 0x80
	DUP16 OpcodeId = 0x8f

	// SWAP1 swaps the two top stack words; SWAP2..SWAP16 follow consecutively
	SWAP1  OpcodeId = 0x90
	SWAP16 OpcodeId = 0x9f

	// ========== Calls & Halting (0xf0 range) ==========

	// CALL message-calls into an account
	CALL OpcodeId = 0xf1

	// RETURN halts execution returning output data
	RETURN OpcodeId = 0xf3

	// REVERT halts execution reverting state changes
	REVERT OpcodeId = 0xfd
)

// opcodeNames maps opcodes to their canonical mnemonics
var opcodeNames = map[OpcodeId]string{
	STOP: "STOP", ADD: "ADD", MUL: "MUL", SUB: "SUB", DIV: "DIV", MOD: "MOD",
	LT: "LT", GT: "GT", EQ: "EQ", ISZERO: "ISZERO",
	AND: "AND", OR: "OR", XOR: "XOR", NOT: "NOT", SHA3: "SHA3",
	ADDRESS: "ADDRESS", CALLER: "CALLER", CALLVALUE: "CALLVALUE",
	COINBASE: "COINBASE", TIMESTAMP: "TIMESTAMP", NUMBER: "NUMBER", GASLIMIT: "GASLIMIT",
	POP: "POP", MLOAD: "MLOAD", MSTORE: "MSTORE", MSTORE8: "MSTORE8",
	SLOAD: "SLOAD", SSTORE: "SSTORE",
	JUMP: "JUMP", JUMPI: "JUMPI", PC: "PC", MSIZE: "MSIZE", GAS: "GAS", JUMPDEST: "JUMPDEST",
	CALL: "CALL", RETURN: "RETURN", REVERT: "REVERT",
}

// String returns the mnemonic of the opcode
func (op OpcodeId) String() string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	switch {
	case op.IsPush():
		return fmt.Sprintf("PUSH%d", op.PushSize())
	case op.IsDup():
		return fmt.Sprintf("DUP%d", op-DUP1+1)
	case op.IsSwap():
		return fmt.Sprintf("SWAP%d", op-SWAP1+1)
	}
	return fmt.Sprintf("INVALID(0x%02x)", byte(op))
}

// IsPush reports whether the opcode is PUSH1..PUSH32
func (op OpcodeId) IsPush() bool {
	return op >= PUSH1 && op <= PUSH32
}

// IsDup reports whether the opcode is DUP1..DUP16
func (op OpcodeId) IsDup() bool {
	return op >= DUP1 && op <= DUP16
}

// IsSwap reports whether the opcode is SWAP1..SWAP16
func (op OpcodeId) IsSwap() bool {
	return op >= SWAP1 && op <= SWAP16
}

// PushSize returns the number of immediate bytes of a PUSHn opcode, 0 otherwise
func (op OpcodeId) PushSize() int {
	if !op.IsPush() {
		return 0
	}
	return int(op-PUSH1) + 1
}

// Size returns the encoded size of the instruction in bytes, including
// any immediate operand
func (op OpcodeId) Size() int {
	return 1 + op.PushSize()
}

// IsHalting reports whether the opcode terminates its call context
func (op OpcodeId) IsHalting() bool {
	switch op {
	case STOP, RETURN, REVERT:
		return true
	}
	return false
}

// IsCall reports whether the opcode opens a new call context
func (op OpcodeId) IsCall() bool {
	return op == CALL
}

// Valid reports whether the opcode is part of the arithmetized instruction set
func (op OpcodeId) Valid() bool {
	if _, ok := opcodeNames[op]; ok {
		return true
	}
	return op.IsPush() || op.IsDup() || op.IsSwap()
}

// ValidOpcodes returns every opcode of the arithmetized instruction set in
// ascending order. Used to populate the fixed opcode-validity table.
func ValidOpcodes() []OpcodeId {
	ops := make([]OpcodeId, 0, 256)
	for i := 0; i < 256; i++ {
		if op := OpcodeId(i); op.Valid() {
			ops = append(ops, op)
		}
	}
	return ops
}
