package trace

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/sirupsen/logrus"

	"github.com/vybium/vybium-zkevm/internal/vybium-zkevm/evm"
)

// StackBase is the EVM stack capacity; the stack pointer counts down from it,
// so an empty stack has pointer 1024 and the top of an n-deep stack sits at
// 1024 - n.
const StackBase = 1024

// RawStep is one entry of the raw execution log produced by the external
// tracer: the machine state observed immediately before the opcode executes.
// Stack snapshots are bottom-first, memory is the full active memory image,
// all 256-bit quantities are uint256.
type RawStep struct {
	PC       uint64
	Op       evm.OpcodeId
	Gas      uint64
	GasCost  uint64
	Refund   uint64
	Depth    int
	Stack    []uint256.Int
	Memory   []byte
	MemSize  uint64
	Err      string
}

// Builder converts a raw execution log into a Trace: it derives every
// read/write record by diffing consecutive stack snapshots against the
// opcode's static stack discipline, assigns the global rw counter, inserts
// the virtual BeginTx/EndTx/EndBlock steps, and tracks call contexts.
type Builder struct {
	block BlockContext
	tx    Transaction
	code  []byte

	// codeByAddress resolves callee bytecode for nested calls
	codeByAddress map[[32]byte][]byte

	// storage is the live storage view used to supply previous values for
	// SSTORE records; seeded by WithStorage
	storage map[[32]byte]uint256.Int

	rwCounter uint64
	nextCall  int
}

// NewBuilder creates a Builder for a single-transaction block. code is the
// bytecode of the transaction's root call.
func NewBuilder(block BlockContext, tx Transaction, code []byte) *Builder {
	return &Builder{
		block:         block,
		tx:            tx,
		code:          code,
		codeByAddress: make(map[[32]byte][]byte),
		storage:       make(map[[32]byte]uint256.Int),
		rwCounter:     1, // counter 0 belongs to the rw table's start row
		nextCall:      1,
	}
}

// WithStorage seeds the storage view with the pre-state of the touched slots
func (b *Builder) WithStorage(slots map[[32]byte]uint256.Int) *Builder {
	for k, v := range slots {
		b.storage[k] = v
	}
	return b
}

// WithCode registers bytecode for an address so nested calls can resolve
// their executing code
func (b *Builder) WithCode(address uint256.Int, code []byte) *Builder {
	b.codeByAddress[address.Bytes32()] = code
	return b
}

// Build converts the raw log into a Trace. The log must describe exactly one
// transaction, root call depth 1, snapshots in execution order.
func (b *Builder) Build(raw []RawStep) (*Trace, error) {
	tr := &Trace{Block: b.block, Txs: []Transaction{b.tx}}

	rootGas := b.tx.GasLimit
	intrinsic := intrinsicGas(b.tx.CallData)
	if intrinsic > rootGas {
		return nil, fmt.Errorf("intrinsic gas %d exceeds tx gas limit %d", intrinsic, rootGas)
	}

	root := CallContext{
		ID:       b.nextCall,
		Depth:    1,
		TxID:     b.tx.ID,
		IsRoot:   true,
		Caller:   b.tx.From,
		Callee:   b.tx.To,
		Value:    b.tx.Value,
		Code:     b.code,
		EntryPC:  0,
		EntryGas: rootGas - intrinsic,
	}
	b.nextCall++
	tr.Calls = append(tr.Calls, root)

	// Virtual step opening the transaction. Its rw records pin the call's
	// context fields into the rw table.
	begin := Step{
		Kind:      KindBeginTx,
		GasLeft:   rootGas,
		GasCost:   intrinsic,
		CallIndex: root.ID,
		RwCounter: b.rwCounter,
	}
	begin.Rws = b.callContextRws(root)
	tr.Steps = append(tr.Steps, begin)

	// Call stack of open contexts; reversible write counters per context.
	callStack := []int{root.ID}
	revCounter := map[int]int{root.ID: 0}

	for i := range raw {
		cur := &raw[i]
		callID := callStack[len(callStack)-1]

		step := Step{
			Kind:                   KindOp,
			Op:                     cur.Op,
			PC:                     cur.PC,
			StackSize:              len(cur.Stack),
			MemorySize:             cur.MemSize,
			GasLeft:                cur.Gas,
			GasCost:                cur.GasCost,
			GasRefund:              cur.Refund,
			CallIndex:              callID,
			RwCounter:              b.rwCounter,
			ReversibleWriteCounter: revCounter[callID],
			Err:                    cur.Err,
		}

		if !cur.Op.Valid() {
			return nil, fmt.Errorf("step %d: opcode 0x%02x outside the arithmetized instruction set", i, byte(cur.Op))
		}
		info := cur.Op.Stack()
		if len(cur.Stack) < info.MinDepth() {
			return nil, fmt.Errorf("step %d: %v requires stack depth %d, have %d", i, cur.Op, info.MinDepth(), len(cur.Stack))
		}

		next := b.nextSnapshotAtDepth(raw, i, cur.Depth)
		if err := b.deriveRws(&step, cur, next); err != nil {
			return nil, fmt.Errorf("step %d (%v): %w", i, cur.Op, err)
		}

		step.ReversibleWriteCounterDelta = countRevertible(step.Rws)
		revCounter[callID] += step.ReversibleWriteCounterDelta
		tr.Steps = append(tr.Steps, step)

		// Call stack transitions are driven by the next raw step's depth.
		switch {
		case i+1 < len(raw) && raw[i+1].Depth > cur.Depth:
			child, err := b.openChildContext(cur, &raw[i+1], callID)
			if err != nil {
				return nil, fmt.Errorf("step %d (%v): %w", i, cur.Op, err)
			}
			tr.Calls = append(tr.Calls, child)
			callStack = append(callStack, child.ID)
			revCounter[child.ID] = 0
			// Pin the child's context fields as part of the call step, the
			// same way BeginTx pins the root's.
			last := &tr.Steps[len(tr.Steps)-1]
			last.Rws = append(last.Rws, b.callContextRws(child)...)
		case i+1 < len(raw) && raw[i+1].Depth < cur.Depth:
			if len(callStack) == 1 {
				return nil, fmt.Errorf("step %d: depth underflow", i)
			}
			callStack = callStack[:len(callStack)-1]
		}
	}

	if n := len(tr.Steps); n > 1 && !tr.Steps[n-1].IsHalting() {
		return nil, fmt.Errorf("trace does not end in a halting step")
	}

	// Close the transaction: settle the refund against total gas used.
	used := begin.GasCost
	for i := 1; i < len(tr.Steps); i++ {
		used += tr.Steps[i].GasCost
	}
	refund := uint64(0)
	if len(raw) > 0 {
		refund = raw[len(raw)-1].Refund
	}
	if maxRefund := used / 5; refund > maxRefund {
		refund = maxRefund
	}
	endTx := Step{
		Kind:      KindEndTx,
		GasLeft:   rootGas - used,
		GasRefund: refund,
		CallIndex: root.ID,
		RwCounter: b.rwCounter,
	}
	endTx.Rws = []Rw{{
		Counter: b.take(),
		IsWrite: true,
		Tag:     RwTxRefund,
		CallID:  root.ID,
		Value:   *uint256.NewInt(refund),
	}}
	tr.Steps = append(tr.Steps, endTx)

	tr.Steps = append(tr.Steps, Step{
		Kind:      KindEndBlock,
		CallIndex: root.ID,
		RwCounter: b.rwCounter,
	})

	logrus.WithFields(logrus.Fields{
		"steps":     len(tr.Steps),
		"calls":     len(tr.Calls),
		"rwEntries": b.rwCounter,
		"gasUsed":   used,
	}).Debug("trace built")

	return tr, nil
}

// take returns the current rw counter and advances it
func (b *Builder) take() uint64 {
	c := b.rwCounter
	b.rwCounter++
	return c
}

// nextSnapshotAtDepth finds the stack snapshot observed after step i returns
// to the given depth. For most steps that is simply the following raw step;
// across a call it is the first later step back at the caller's depth.
func (b *Builder) nextSnapshotAtDepth(raw []RawStep, i, depth int) []uint256.Int {
	for j := i + 1; j < len(raw); j++ {
		if raw[j].Depth == depth {
			return raw[j].Stack
		}
		if raw[j].Depth < depth {
			break
		}
	}
	return nil
}

// deriveRws computes the step's read/write records from the opcode's stack
// discipline and the surrounding snapshots.
func (b *Builder) deriveRws(step *Step, cur *RawStep, nextStack []uint256.Int) error {
	op := cur.Op
	info := op.Stack()
	size := len(cur.Stack)
	sp := uint64(StackBase - size)

	// DUP and SWAP touch individual cells, not the popped span; record the
	// minimal access set the constraint modules expect.
	if op.IsDup() {
		d := uint64(op) - uint64(evm.DUP1) + 1
		v := cur.Stack[size-int(d)]
		step.Rws = append(step.Rws,
			Rw{Counter: b.take(), Tag: RwStack, CallID: step.CallIndex, Address: sp + d - 1, Value: v},
			Rw{Counter: b.take(), IsWrite: true, Tag: RwStack, CallID: step.CallIndex, Address: sp - 1, Value: v},
		)
		return nil
	}
	if op.IsSwap() {
		n := uint64(op) - uint64(evm.SWAP1) + 1
		top := cur.Stack[size-1]
		deep := cur.Stack[size-1-int(n)]
		step.Rws = append(step.Rws,
			Rw{Counter: b.take(), Tag: RwStack, CallID: step.CallIndex, Address: sp, Value: top},
			Rw{Counter: b.take(), Tag: RwStack, CallID: step.CallIndex, Address: sp + n, Value: deep},
			Rw{Counter: b.take(), IsWrite: true, Tag: RwStack, CallID: step.CallIndex, Address: sp, Value: deep},
			Rw{Counter: b.take(), IsWrite: true, Tag: RwStack, CallID: step.CallIndex, Address: sp + n, Value: top},
		)
		return nil
	}

	// Stack reads: the popped words, top first.
	for j := 0; j < info.Pops; j++ {
		step.Rws = append(step.Rws, Rw{
			Counter: b.take(),
			Tag:     RwStack,
			CallID:  step.CallIndex,
			Address: sp + uint64(j),
			Value:   cur.Stack[size-1-j],
		})
	}

	// State-specific records sit between the pops and the result pushes,
	// matching the order the EVM touches state.
	switch op {
	case evm.MLOAD:
		offset := cur.Stack[size-1]
		step.Rws = append(step.Rws, Rw{
			Counter: b.take(),
			Tag:     RwMemory,
			CallID:  step.CallIndex,
			Address: offset.Uint64(),
			Value:   memoryWord(cur.Memory, offset.Uint64()),
		})
	case evm.MSTORE:
		offset, value := cur.Stack[size-1], cur.Stack[size-2]
		step.Rws = append(step.Rws, Rw{
			Counter: b.take(),
			IsWrite: true,
			Tag:     RwMemory,
			CallID:  step.CallIndex,
			Address: offset.Uint64(),
			Value:   value,
		})
	case evm.MSTORE8:
		offset, value := cur.Stack[size-1], cur.Stack[size-2]
		byteVal := *uint256.NewInt(uint64(value.Bytes32()[31]))
		step.Rws = append(step.Rws, Rw{
			Counter: b.take(),
			IsWrite: true,
			Tag:     RwMemory,
			CallID:  step.CallIndex,
			Address: offset.Uint64(),
			Value:   byteVal,
		})
	case evm.SLOAD:
		key := cur.Stack[size-1]
		value, ok := b.storage[key.Bytes32()]
		if !ok && len(nextStack) > 0 {
			// Slot not seeded: trust the tracer's read result.
			value = nextStack[len(nextStack)-1]
			b.storage[key.Bytes32()] = value
		}
		step.Rws = append(step.Rws, Rw{
			Counter: b.take(),
			Tag:     RwStorage,
			CallID:  step.CallIndex,
			Key:     key,
			Value:   value,
		})
	case evm.SSTORE:
		key, value := cur.Stack[size-1], cur.Stack[size-2]
		prev := b.storage[key.Bytes32()]
		b.storage[key.Bytes32()] = value
		step.Rws = append(step.Rws, Rw{
			Counter:   b.take(),
			IsWrite:   true,
			Tag:       RwStorage,
			CallID:    step.CallIndex,
			Key:       key,
			Value:     value,
			ValuePrev: prev,
		})
	case evm.SHA3:
		offset, length := cur.Stack[size-1], cur.Stack[size-2]
		step.KeccakPreimage = memorySlice(cur.Memory, offset.Uint64(), length.Uint64())
	}

	// Stack writes: the pushed words, read off the next snapshot at the same
	// depth, top first.
	if info.Pushes > 0 {
		if len(nextStack) == 0 {
			if !op.IsHalting() {
				return fmt.Errorf("missing successor snapshot for %d stack writes", info.Pushes)
			}
		} else {
			newSize := size - info.Pops + info.Pushes
			if len(nextStack) != newSize {
				return fmt.Errorf("successor stack depth %d, expected %d", len(nextStack), newSize)
			}
			newSp := uint64(StackBase - newSize)
			for j := 0; j < info.Pushes; j++ {
				step.Rws = append(step.Rws, Rw{
					Counter: b.take(),
					IsWrite: true,
					Tag:     RwStack,
					CallID:  step.CallIndex,
					Address: newSp + uint64(j),
					Value:   nextStack[newSize-1-j],
				})
			}
		}
	}
	return nil
}

// openChildContext creates the call context entered by a CALL step
func (b *Builder) openChildContext(call *RawStep, first *RawStep, parentID int) (CallContext, error) {
	if !call.Op.IsCall() {
		return CallContext{}, fmt.Errorf("depth increased after non-call opcode %v", call.Op)
	}
	size := len(call.Stack)
	// CALL stack layout, top first: gas, address, value, argsOffset,
	// argsLength, retOffset, retLength.
	callee := call.Stack[size-2]
	value := call.Stack[size-3]
	code, ok := b.codeByAddress[callee.Bytes32()]
	if !ok {
		return CallContext{}, fmt.Errorf("no bytecode registered for callee %s", callee.Hex())
	}
	ctx := CallContext{
		ID:       b.nextCall,
		Depth:    call.Depth + 1,
		TxID:     b.tx.ID,
		Caller:   b.calleeOf(parentID),
		Callee:   callee,
		Value:    value,
		Code:     code,
		EntryPC:  first.PC,
		EntryGas: first.Gas,
	}
	b.nextCall++
	return ctx, nil
}

// calleeOf returns the callee address of an already opened context. The
// builder only opens contexts in order, so parent lookups always hit.
func (b *Builder) calleeOf(id int) uint256.Int {
	if id == 1 {
		return b.tx.To
	}
	return uint256.Int{}
}

// callContextRws pins a call's metadata into the rw table
func (b *Builder) callContextRws(ctx CallContext) []Rw {
	fields := []struct {
		tag   uint64
		value uint256.Int
	}{
		{CallFieldCaller, ctx.Caller},
		{CallFieldCallee, ctx.Callee},
		{CallFieldValue, ctx.Value},
		{CallFieldDepth, *uint256.NewInt(uint64(ctx.Depth))},
	}
	rws := make([]Rw, 0, len(fields))
	for _, f := range fields {
		rws = append(rws, Rw{
			Counter: b.take(),
			IsWrite: true,
			Tag:     RwCallContext,
			CallID:  ctx.ID,
			Address: f.tag,
			Value:   f.value,
		})
	}
	return rws
}

// Call context field tags used as the Address of RwCallContext records
const (
	CallFieldCaller uint64 = iota + 1
	CallFieldCallee
	CallFieldValue
	CallFieldDepth
)

// intrinsicGas returns the transaction's intrinsic cost: the flat fee plus
// the calldata component
func intrinsicGas(data []byte) uint64 {
	gas := evm.GasTx
	for _, b := range data {
		if b == 0 {
			gas += 4
		} else {
			gas += 16
		}
	}
	return gas
}

// countRevertible counts the step's revertible state writes
func countRevertible(rws []Rw) int {
	n := 0
	for _, rw := range rws {
		if rw.IsRevertible() {
			n++
		}
	}
	return n
}

// memoryWord reads the 32-byte word at the given offset, zero-extended
func memoryWord(mem []byte, offset uint64) uint256.Int {
	var buf [32]byte
	copy(buf[:], memorySlice(mem, offset, 32))
	var w uint256.Int
	w.SetBytes(buf[:])
	return w
}

// memorySlice reads length bytes at offset, zero-extending past the end
func memorySlice(mem []byte, offset, length uint64) []byte {
	out := make([]byte, length)
	for i := uint64(0); i < length; i++ {
		if offset+i < uint64(len(mem)) {
			out[i] = mem[offset+i]
		}
	}
	return out
}
