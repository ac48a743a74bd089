package vybiumzkevm

import (
	"github.com/holiman/uint256"

	"github.com/vybium/vybium-zkevm/internal/vybium-zkevm/circuit"
	"github.com/vybium/vybium-zkevm/internal/vybium-zkevm/evm"
	"github.com/vybium/vybium-zkevm/internal/vybium-zkevm/trace"
)

// Engine is the public interface of the Vybium zkEVM constraint engine
type Engine interface {
	// Arithmetize converts a raw execution log into a fully assigned
	// witness over the execution circuit
	Arithmetize(log *ExecutionLog) (*Witness, error)
}

// Witness is an assigned witness matrix together with the constraint system
// and lookup tables it was built against (read-only)
type Witness struct {
	inner *circuit.Witness
}

// Rows returns the total row count, padding included
func (w *Witness) Rows() int { return w.inner.Rows() }

// StepRows returns the number of rows carrying trace steps
func (w *Witness) StepRows() int { return w.inner.StepRows() }

// Columns returns the circuit's column count
func (w *Witness) Columns() int { return circuit.NumColumns }

// Verify evaluates every declared gate, lookup and permutation over the
// witness and reports the first violation
func (w *Witness) Verify() error {
	if err := w.inner.Check(); err != nil {
		return wrapError("witness verification failed", err)
	}
	return nil
}

// Replay reconstructs the execution steps the witness encodes, using only
// the committed matrix. It is the round-trip check that the witness pins
// the computation it claims.
func (w *Witness) Replay() ([]TraceStep, error) {
	steps, err := w.inner.Steps()
	if err != nil {
		return nil, wrapError("witness replay failed", err)
	}
	out := make([]TraceStep, 0, len(steps))
	for _, s := range steps {
		if s.Kind != trace.KindOp {
			continue
		}
		out = append(out, TraceStep{
			PC:      s.PC,
			Op:      byte(s.Op),
			Gas:     s.GasLeft,
			GasCost: s.GasCost,
			Refund:  s.GasRefund,
			MemSize: s.MemorySize,
		})
	}
	return out, nil
}

// engineImpl is the internal implementation of Engine
type engineImpl struct {
	config *circuit.Config
}

// NewEngine creates a constraint engine with the given configuration
func NewEngine(config *Config) (Engine, error) {
	internal := toInternalConfig(config)
	if err := internal.Validate(); err != nil {
		return nil, wrapError("invalid configuration", err)
	}
	return &engineImpl{config: internal}, nil
}

// Arithmetize converts a raw execution log into an assigned witness
func (e *engineImpl) Arithmetize(log *ExecutionLog) (*Witness, error) {
	if log == nil || len(log.Steps) == 0 {
		return nil, &EngineError{
			Code:    ErrInvalidInput,
			Message: "execution log is empty",
		}
	}

	builder := trace.NewBuilder(
		toInternalBlock(log.Block),
		toInternalTx(log.Tx),
		log.Code,
	)
	if len(log.Storage) > 0 {
		slots := make(map[[32]byte]uint256.Int, len(log.Storage))
		for k, v := range log.Storage {
			slots[k.Bytes32()] = v
		}
		builder.WithStorage(slots)
	}
	for addr, code := range log.CodeByAddress {
		builder.WithCode(addr, code)
	}

	tr, err := builder.Build(log.rawSteps())
	if err != nil {
		return nil, &EngineError{
			Code:    ErrTraceInconsistency,
			Message: "execution log cannot be arithmetized",
			Cause:   err,
		}
	}

	w, err := circuit.BuildWitness(tr, e.config)
	if err != nil {
		return nil, wrapError("witness construction failed", err)
	}
	return &Witness{inner: w}, nil
}

func toInternalConfig(c *Config) *circuit.Config {
	if c == nil {
		return circuit.DefaultConfig()
	}
	return &circuit.Config{
		MaxRows:         c.MaxRows,
		MaxBytecodeSize: c.MaxBytecodeSize,
		MaxRwEntries:    c.MaxRwEntries,
		MaxTxs:          c.MaxTxs,
		MaxCalldataSize: c.MaxCalldataSize,
		MaxKeccakRows:   c.MaxKeccakRows,
	}
}

func toInternalBlock(b BlockContext) trace.BlockContext {
	return trace.BlockContext{
		ChainID:       b.ChainID,
		Number:        b.Number,
		Timestamp:     b.Timestamp,
		Coinbase:      b.Coinbase,
		GasLimit:      b.GasLimit,
		HistoryHashes: b.HistoryHashes,
	}
}

func toInternalTx(tx Transaction) trace.Transaction {
	return trace.Transaction{
		ID:       1,
		Nonce:    tx.Nonce,
		GasLimit: tx.GasLimit,
		GasPrice: tx.GasPrice,
		From:     tx.From,
		To:       tx.To,
		Value:    tx.Value,
		CallData: tx.CallData,
	}
}

func internalDefaultConfig() *circuit.Config {
	return circuit.DefaultConfig()
}

func opcodeOf(b byte) evm.OpcodeId {
	return evm.OpcodeId(b)
}
