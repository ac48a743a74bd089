package vybiumzkevm

import (
	"github.com/holiman/uint256"

	"github.com/vybium/vybium-zkevm/internal/vybium-zkevm/trace"
)

// Word is a 256-bit EVM word
type Word = uint256.Int

// BlockContext carries the block-level constants shared by every step
type BlockContext struct {
	ChainID   uint64
	Number    uint64
	Timestamp uint64
	Coinbase  Word
	GasLimit  uint64

	// HistoryHashes lists the most recent block hashes, latest last
	HistoryHashes []Word
}

// Transaction carries the per-transaction constants
type Transaction struct {
	Nonce    uint64
	GasLimit uint64
	GasPrice Word
	From     Word
	To       Word
	Value    Word
	CallData []byte
}

// TraceStep is one entry of a raw execution log: the machine state observed
// immediately before the opcode executes. Stack snapshots are bottom-first.
type TraceStep struct {
	PC      uint64
	Op      byte
	Gas     uint64
	GasCost uint64
	Refund  uint64
	Depth   int
	Stack   []Word
	Memory  []byte
	MemSize uint64
}

// ExecutionLog bundles everything the engine needs to arithmetize one
// transaction: the enclosing block, the transaction, the root bytecode, the
// raw step log, and the optional pre-state.
type ExecutionLog struct {
	Block BlockContext
	Tx    Transaction

	// Code is the bytecode of the transaction's root call
	Code []byte

	// CodeByAddress resolves callee bytecode for nested calls; keys are
	// addresses left-padded into 32-byte words
	CodeByAddress map[Word][]byte

	// Storage seeds the pre-state of the storage slots the log touches
	Storage map[Word]Word

	Steps []TraceStep
}

// Config fixes every capacity of the circuit before assignment. Budgets
// are hard: exceeding any of them fails the build, never reallocates.
type Config struct {
	MaxRows         int
	MaxBytecodeSize int
	MaxRwEntries    int
	MaxTxs          int
	MaxCalldataSize int
	MaxKeccakRows   int
}

// DefaultConfig returns capacities suitable for small traces and tests
func DefaultConfig() *Config {
	return fromInternalConfig()
}

func fromInternalConfig() *Config {
	c := internalDefaultConfig()
	return &Config{
		MaxRows:         c.MaxRows,
		MaxBytecodeSize: c.MaxBytecodeSize,
		MaxRwEntries:    c.MaxRwEntries,
		MaxTxs:          c.MaxTxs,
		MaxCalldataSize: c.MaxCalldataSize,
		MaxKeccakRows:   c.MaxKeccakRows,
	}
}

// rawSteps converts the public step log to the internal representation
func (l *ExecutionLog) rawSteps() []trace.RawStep {
	raw := make([]trace.RawStep, len(l.Steps))
	for i, s := range l.Steps {
		raw[i] = trace.RawStep{
			PC:      s.PC,
			Op:      opcodeOf(s.Op),
			Gas:     s.Gas,
			GasCost: s.GasCost,
			Refund:  s.Refund,
			Depth:   s.Depth,
			Stack:   s.Stack,
			Memory:  s.Memory,
			MemSize: s.MemSize,
		}
	}
	return raw
}
