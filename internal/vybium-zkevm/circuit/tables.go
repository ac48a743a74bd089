package circuit

import (
	"sort"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/holiman/uint256"
	"golang.org/x/crypto/sha3"

	"github.com/vybium/vybium-zkevm/internal/vybium-zkevm/evm"
	"github.com/vybium/vybium-zkevm/internal/vybium-zkevm/trace"
)

// TableID identifies each lookup table of the fabric
type TableID int

const (
	// TableBytecode holds (call id, offset, byte, is_code) facts
	TableBytecode TableID = iota

	// TableRw holds the sorted read/write records
	TableRw

	// TableTx holds transaction constants and calldata bytes
	TableTx

	// TableBlock holds block constants and history hashes
	TableBlock

	// TableKeccak holds (preimage rlc, length, digest rlc) facts
	TableKeccak

	// TableByteRange is the fixed 0..255 range table
	TableByteRange

	// TableOpcode is the fixed opcode validity table
	TableOpcode

	// TableBitwise is the fixed per-byte AND/OR/XOR table
	TableBitwise

	// TableCallContext holds (call id, field tag, value rlc) facts derived
	// from the call-context write records
	TableCallContext

	// TablePowOfRand holds powers of the lookup challenge, consumed by the
	// fabric as tuple-compression coefficients
	TablePowOfRand

	numTables
)

// String returns the name of the table
func (id TableID) String() string {
	switch id {
	case TableBytecode:
		return "Bytecode"
	case TableRw:
		return "ReadWrite"
	case TableTx:
		return "Transaction"
	case TableBlock:
		return "Block"
	case TableKeccak:
		return "Keccak"
	case TableByteRange:
		return "ByteRange"
	case TableOpcode:
		return "Opcode"
	case TableBitwise:
		return "Bitwise"
	case TableCallContext:
		return "CallContext"
	case TablePowOfRand:
		return "PowOfRandomness"
	default:
		return "Unknown"
	}
}

// Transaction table field tags
const (
	TxFieldNonce uint64 = iota + 1
	TxFieldGasLimit
	TxFieldGasPrice
	TxFieldFrom
	TxFieldTo
	TxFieldValue
	TxFieldCallDataLength
	TxFieldIsCreate
	TxFieldCallData
)

// Block table field tags
const (
	BlockFieldCoinbase uint64 = iota + 1
	BlockFieldTimestamp
	BlockFieldNumber
	BlockFieldGasLimit
	BlockFieldChainID
	BlockFieldBlockHash
)

// bytecodeEntry is one raw bytecode table fact
type bytecodeEntry struct {
	callID int
	offset uint64
	value  byte
	isCode bool
}

// keccakEntry is one raw keccak table fact
type keccakEntry struct {
	preimage []byte
	digest   [32]byte
}

// Tables aggregates every external fact table the execution circuit looks
// into. Raw entries are populated from the trace before row assignment
// (phase one) and never mutated; challenge-dependent tuple encodings are
// produced on demand after the challenge barrier.
type Tables struct {
	cfg *Config

	bytecode []bytecodeEntry
	rwSorted []trace.Rw
	rwChrono []trace.Rw
	txs      []trace.Transaction
	block    trace.BlockContext
	keccaks  []keccakEntry

	// maxPow bounds the power-of-randomness table; wide enough for every
	// tuple width and word RLC the fabric compresses
	maxPow int
}

// BuildTables populates all tables from the trace, enforcing every declared
// capacity. This is phase-one work: no challenge is available yet.
func BuildTables(tr *trace.Trace, cfg *Config) (*Tables, error) {
	t := &Tables{cfg: cfg, block: tr.Block, maxPow: 64}

	if len(tr.Txs) > cfg.MaxTxs {
		return nil, newError(ErrCapacityExceeded,
			"trace has %d transactions, capacity is %d", len(tr.Txs), cfg.MaxTxs)
	}
	t.txs = tr.Txs

	calldata := 0
	for i := range tr.Txs {
		calldata += len(tr.Txs[i].CallData)
	}
	if calldata > cfg.MaxCalldataSize {
		return nil, newError(ErrCapacityExceeded,
			"trace carries %d calldata bytes, capacity is %d", calldata, cfg.MaxCalldataSize)
	}

	for i := range tr.Calls {
		call := &tr.Calls[i]
		entries := markCode(call.Code)
		if len(t.bytecode)+len(entries) > cfg.MaxBytecodeSize {
			return nil, newError(ErrCapacityExceeded,
				"bytecode table needs more than %d rows", cfg.MaxBytecodeSize)
		}
		for off, e := range entries {
			t.bytecode = append(t.bytecode, bytecodeEntry{
				callID: call.ID,
				offset: uint64(off),
				value:  e.value,
				isCode: e.isCode,
			})
		}
	}

	rws := tr.Rws()
	if len(rws) > cfg.MaxRwEntries {
		return nil, newError(ErrCapacityExceeded,
			"rw table needs %d rows, capacity is %d", len(rws), cfg.MaxRwEntries)
	}
	t.rwChrono = rws
	t.rwSorted = sortRws(rws)

	for i := range tr.Steps {
		step := &tr.Steps[i]
		if len(step.KeccakPreimage) == 0 && !(step.Kind == trace.KindOp && step.Op == evm.SHA3) {
			continue
		}
		if len(t.keccaks) >= cfg.MaxKeccakRows {
			return nil, newError(ErrCapacityExceeded,
				"keccak table needs more than %d rows", cfg.MaxKeccakRows)
		}
		h := sha3.NewLegacyKeccak256()
		h.Write(step.KeccakPreimage)
		var digest [32]byte
		copy(digest[:], h.Sum(nil))
		t.keccaks = append(t.keccaks, keccakEntry{
			preimage: step.KeccakPreimage,
			digest:   digest,
		})
	}

	return t, nil
}

// Commit absorbs every phase-one table fact into the transcript, in table
// order, so the sampled challenges depend on all committed data.
func (t *Tables) Commit(ts *Transcript) {
	for _, e := range t.bytecode {
		ts.AbsorbUint64(uint64(e.callID), e.offset, uint64(e.value), uint64(boolByte(e.isCode)))
	}
	for i := range t.rwChrono {
		rw := &t.rwChrono[i]
		key := rw.Key.Bytes32()
		val := rw.Value.Bytes32()
		prev := rw.ValuePrev.Bytes32()
		ts.AbsorbUint64(rw.Counter, uint64(boolByte(rw.IsWrite)), uint64(rw.Tag),
			uint64(rw.CallID), rw.Address)
		ts.Absorb(key[:])
		ts.Absorb(val[:])
		ts.Absorb(prev[:])
	}
	for i := range t.keccaks {
		ts.Absorb(t.keccaks[i].preimage)
		ts.Absorb(t.keccaks[i].digest[:])
	}
}

// Tuples returns the table's committed tuple rows under the sampled
// challenges. Fixed tables ignore the challenge.
func (t *Tables) Tuples(id TableID, ch *Challenges) [][]fr.Element {
	switch id {
	case TableBytecode:
		rows := make([][]fr.Element, 0, len(t.bytecode))
		for _, e := range t.bytecode {
			rows = append(rows, []fr.Element{
				fe(uint64(e.callID)), fe(e.offset), fe(uint64(e.value)), feFromBool(e.isCode),
			})
		}
		return rows

	case TableRw:
		rows := make([][]fr.Element, 0, len(t.rwSorted))
		for i := range t.rwSorted {
			rows = append(rows, rwTuple(&t.rwSorted[i], ch))
		}
		return rows

	case TableTx:
		var rows [][]fr.Element
		for i := range t.txs {
			rows = append(rows, txTuples(&t.txs[i], ch)...)
		}
		return rows

	case TableBlock:
		return blockTuples(&t.block, ch)

	case TableKeccak:
		rows := make([][]fr.Element, 0, len(t.keccaks))
		for i := range t.keccaks {
			e := &t.keccaks[i]
			rows = append(rows, []fr.Element{
				bytesRLC(e.preimage, ch.LookupInput),
				fe(uint64(len(e.preimage))),
				bytesRLC(e.digest[:], ch.EvmWord),
			})
		}
		return rows

	case TableByteRange:
		rows := make([][]fr.Element, 256)
		for b := 0; b < 256; b++ {
			rows[b] = []fr.Element{fe(uint64(b))}
		}
		return rows

	case TableOpcode:
		ops := evm.ValidOpcodes()
		rows := make([][]fr.Element, 0, len(ops))
		for _, op := range ops {
			rows = append(rows, []fr.Element{
				fe(uint64(op)),
				fe(uint64(op.PushSize())),
				fe(evm.ConstantGas(op)),
			})
		}
		return rows

	case TableBitwise:
		// (op tag, a, b, a op b) for every byte pair. Op tags reuse the
		// opcode ids of AND, OR and XOR.
		rows := make([][]fr.Element, 0, 3*256*256)
		for a := 0; a < 256; a++ {
			for b := 0; b < 256; b++ {
				rows = append(rows,
					[]fr.Element{fe(uint64(evm.AND)), fe(uint64(a)), fe(uint64(b)), fe(uint64(a & b))},
					[]fr.Element{fe(uint64(evm.OR)), fe(uint64(a)), fe(uint64(b)), fe(uint64(a | b))},
					[]fr.Element{fe(uint64(evm.XOR)), fe(uint64(a)), fe(uint64(b)), fe(uint64(a ^ b))},
				)
			}
		}
		return rows

	case TableCallContext:
		var rows [][]fr.Element
		for i := range t.rwChrono {
			rw := &t.rwChrono[i]
			if rw.Tag != trace.RwCallContext {
				continue
			}
			val := rw.Value.Bytes32()
			rows = append(rows, []fr.Element{
				fe(uint64(rw.CallID)),
				fe(rw.Address),
				bytesRLC(val[:], ch.EvmWord),
			})
		}
		return rows

	case TablePowOfRand:
		// The lookup fabric reads its tuple-compression coefficients from
		// this table, keyed by the lookup challenge.
		rows := make([][]fr.Element, t.maxPow)
		pow := fe(1)
		for i := 0; i < t.maxPow; i++ {
			rows[i] = []fr.Element{fe(uint64(i)), pow}
			pow = feMul(pow, ch.LookupInput)
		}
		return rows
	}
	return nil
}

// RwChronological returns the rw records in execution order; the permutation
// argument ties these to the sorted table.
func (t *Tables) RwChronological() []trace.Rw {
	return t.rwChrono
}

// RwSorted returns the rw records in table order
func (t *Tables) RwSorted() []trace.Rw {
	return t.rwSorted
}

// rwTuple encodes one rw record as a table tuple:
// (counter, is_write, tag, call id, address, key rlc, value rlc, prev rlc)
func rwTuple(rw *trace.Rw, ch *Challenges) []fr.Element {
	key := rw.Key.Bytes32()
	val := rw.Value.Bytes32()
	prev := rw.ValuePrev.Bytes32()
	return []fr.Element{
		fe(rw.Counter),
		feFromBool(rw.IsWrite),
		fe(uint64(rw.Tag)),
		fe(uint64(rw.CallID)),
		fe(rw.Address),
		bytesRLC(key[:], ch.EvmWord),
		bytesRLC(val[:], ch.EvmWord),
		bytesRLC(prev[:], ch.EvmWord),
	}
}

// txTuples encodes one transaction as (tx id, field tag, index, value) rows
func txTuples(tx *trace.Transaction, ch *Challenges) [][]fr.Element {
	id := fe(uint64(tx.ID))
	gasPrice := tx.GasPrice.Bytes32()
	from := tx.From.Bytes32()
	to := tx.To.Bytes32()
	value := tx.Value.Bytes32()

	rows := [][]fr.Element{
		{id, fe(TxFieldNonce), fe(0), fe(tx.Nonce)},
		{id, fe(TxFieldGasLimit), fe(0), fe(tx.GasLimit)},
		{id, fe(TxFieldGasPrice), fe(0), bytesRLC(gasPrice[:], ch.EvmWord)},
		{id, fe(TxFieldFrom), fe(0), bytesRLC(from[:], ch.EvmWord)},
		{id, fe(TxFieldTo), fe(0), bytesRLC(to[:], ch.EvmWord)},
		{id, fe(TxFieldValue), fe(0), bytesRLC(value[:], ch.EvmWord)},
		{id, fe(TxFieldCallDataLength), fe(0), fe(uint64(len(tx.CallData)))},
		{id, fe(TxFieldIsCreate), fe(0), feFromBool(tx.IsCreate)},
	}
	for i, b := range tx.CallData {
		rows = append(rows, []fr.Element{id, fe(TxFieldCallData), fe(uint64(i)), fe(uint64(b))})
	}
	return rows
}

// blockTuples encodes the block constants as (field tag, number, value) rows.
// Values are word-RLC encoded uniformly, scalars included, so the execution
// side always claims the RLC of the pushed word.
func blockTuples(b *trace.BlockContext, ch *Challenges) [][]fr.Element {
	scalar := func(v uint64) fr.Element {
		w := uint256.NewInt(v).Bytes32()
		return bytesRLC(w[:], ch.EvmWord)
	}
	coinbase := b.Coinbase.Bytes32()
	rows := [][]fr.Element{
		{fe(BlockFieldCoinbase), fe(0), bytesRLC(coinbase[:], ch.EvmWord)},
		{fe(BlockFieldTimestamp), fe(0), scalar(b.Timestamp)},
		{fe(BlockFieldNumber), fe(0), scalar(b.Number)},
		{fe(BlockFieldGasLimit), fe(0), scalar(b.GasLimit)},
		{fe(BlockFieldChainID), fe(0), scalar(b.ChainID)},
	}
	first := b.Number - uint64(len(b.HistoryHashes))
	for i := range b.HistoryHashes {
		hash := b.HistoryHashes[i].Bytes32()
		rows = append(rows, []fr.Element{
			fe(BlockFieldBlockHash),
			fe(first + uint64(i)),
			bytesRLC(hash[:], ch.EvmWord),
		})
	}
	return rows
}

// codeMark flags one bytecode byte as executable code or push data
type codeMark struct {
	value  byte
	isCode bool
}

// markCode walks bytecode and separates instructions from push immediates
func markCode(code []byte) []codeMark {
	marks := make([]codeMark, len(code))
	for i := 0; i < len(code); {
		op := evm.OpcodeId(code[i])
		marks[i] = codeMark{value: code[i], isCode: true}
		i++
		for j := 0; j < op.PushSize() && i < len(code); j++ {
			marks[i] = codeMark{value: code[i], isCode: false}
			i++
		}
	}
	return marks
}

// sortRws orders records the way the sorted rw table commits them: grouped
// by (tag, call id, address, key), ordered by counter within a group.
func sortRws(rws []trace.Rw) []trace.Rw {
	sorted := make([]trace.Rw, len(rws))
	copy(sorted, rws)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := &sorted[i], &sorted[j]
		if a.Tag != b.Tag {
			return a.Tag < b.Tag
		}
		if a.CallID != b.CallID {
			return a.CallID < b.CallID
		}
		if a.Address != b.Address {
			return a.Address < b.Address
		}
		if c := a.Key.Cmp(&b.Key); c != 0 {
			return c < 0
		}
		return a.Counter < b.Counter
	})
	return sorted
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func feFromBool(b bool) fr.Element {
	if b {
		return fe(1)
	}
	return fe(0)
}
