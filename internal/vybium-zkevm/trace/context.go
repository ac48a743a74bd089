package trace

import "github.com/holiman/uint256"

// CallContext describes one call frame of the trace
type CallContext struct {
	// ID is the call's unique identifier within the trace (1-based; the
	// root call of the first transaction has ID 1)
	ID int

	// Depth is the call nesting depth (root call has depth 1)
	Depth int

	// TxID is the enclosing transaction's 1-based index
	TxID int

	// IsRoot reports whether this is the transaction's root call
	IsRoot bool

	// Caller and Callee are the 20-byte addresses, left-padded into words
	Caller uint256.Int
	Callee uint256.Int

	// Value is the wei amount transferred with the call
	Value uint256.Int

	// Code is the bytecode executing in this context
	Code []byte

	// EntryPC is the program counter of the context's first step
	EntryPC uint64

	// EntryGas is the gas available to the context's first step
	EntryGas uint64
}

// BlockContext carries the block-level constants every step shares
type BlockContext struct {
	ChainID   uint64
	Number    uint64
	Timestamp uint64
	Coinbase  uint256.Int
	GasLimit  uint64

	// HistoryHashes lists the most recent block hashes, latest last
	HistoryHashes []uint256.Int
}

// Transaction carries the per-transaction constants
type Transaction struct {
	// ID is the 1-based transaction index within the block
	ID int

	Nonce    uint64
	GasLimit uint64
	GasPrice uint256.Int
	From     uint256.Int
	To       uint256.Int
	Value    uint256.Int
	CallData []byte
	IsCreate bool
}
