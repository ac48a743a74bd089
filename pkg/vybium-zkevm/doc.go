// Package vybiumzkevm provides the Vybium zkEVM execution constraint engine.
//
// The engine arithmetizes EVM execution traces: it converts a raw step log
// into a witness matrix over a fixed-width execution circuit, together with
// the polynomial constraints, lookup arguments and permutation arguments
// that make the matrix self-certifying. A proving backend consumes the
// matrix and the constraint system; this package is backend-agnostic.
//
// # Features
//
// - One-row-per-step execution circuit with a 31-state opcode selector bank
// - Per-opcode constraint modules (arithmetic, memory, storage, control flow, calls)
// - Read/write table with a chronological-to-sorted permutation argument
// - Cross-table lookups into bytecode, transaction, block, keccak and fixed tables
// - Two-phase assignment with a challenge barrier for randomness-dependent cells
// - Hard capacity budgets: traces that do not fit fail loudly, never truncate
//
// # Quick Start
//
// Arithmetizing an execution log and verifying the witness:
//
//	engine, err := vybiumzkevm.NewEngine(vybiumzkevm.DefaultConfig())
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	witness, err := engine.Arithmetize(executionLog)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	if err := witness.Verify(); err != nil {
//		log.Fatal(err)
//	}
//
// Reconstructing the computation from the committed matrix alone:
//
//	steps, err := witness.Replay()
//	if err != nil {
//		log.Fatal(err)
//	}
//
// # Architecture
//
// Vybium zkEVM uses a hybrid public/private architecture:
//
// - pkg/vybium-zkevm/: Public API (this package)
// - internal/vybium-zkevm/: Private implementation (not importable)
//
// The internal packages split along the data flow:
//
// - evm: opcode identities, stack disciplines and the gas schedule
// - trace: raw-log ingestion and read/write record derivation
// - circuit: columns, gates, lookups, tables and witness assignment
//
// Implementation details in internal/ can be refactored without breaking
// the public API.
//
// # Error Handling
//
// Every failure is an *EngineError carrying a stable ErrorCode. Capacity
// overruns (ErrCapacityExceeded) are retryable with a larger Config;
// trace inconsistencies (ErrTraceInconsistency) indicate a broken log and
// are not.
//
// # License
//
// See LICENSE file in the repository root.
package vybiumzkevm
