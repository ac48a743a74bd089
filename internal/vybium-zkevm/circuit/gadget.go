package circuit

import (
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/holiman/uint256"

	"github.com/vybium/vybium-zkevm/internal/vybium-zkevm/evm"
	"github.com/vybium/vybium-zkevm/internal/vybium-zkevm/trace"
)

// ========== Gate-side building blocks ==========

// byteFn extracts the k-th little-endian byte of a 256-bit operand from a
// row. Word slots store limbs big-endian, so limb index 31-k.
type byteFn func(cur []fr.Element, ch *Challenges, k int) fr.Element

// wordByteLE reads operand bytes straight out of a word slot
func wordByteLE(slot int) byteFn {
	return func(cur []fr.Element, _ *Challenges, k int) fr.Element {
		return cur[WordByteCol(slot, WordBytes-1-k)]
	}
}

// zeroByte is the all-zero operand
func zeroByte(cur []fr.Element, _ *Challenges, _ int) fr.Element {
	return fe(0)
}

// selectByteLE blends two word slots by a boolean flag expression:
// flag 0 reads slot a, flag 1 reads slot b
func selectByteLE(a, b int, flag func(cur []fr.Element) fr.Element) byteFn {
	return func(cur []fr.Element, _ *Challenges, k int) fr.Element {
		av := cur[WordByteCol(a, WordBytes-1-k)]
		bv := cur[WordByteCol(b, WordBytes-1-k)]
		return feAdd(av, feMul(flag(cur), feSub(bv, av)))
	}
}

// carryChainGates declares the 32 per-limb constraints of the integer
// identity a + b = c + 2^256·carry_out over byte operands:
//
//	a_k + b_k + carry_{k-1} = c_k + 256·carry_k      (little-endian k)
//
// Carries live in the boolean columns carryBase..carryBase+31; carry_out is
// carry column carryBase+31. Soundness rests on the global byte-range
// lookups of the operand limbs and the carry booleanity gates.
func carryChainGates(cs *ConstraintSystem, state ExecutionState, name string, a, b, c byteFn, carryBase int) {
	for k := 0; k < WordBytes; k++ {
		k := k
		cs.AddGate(Gate{
			Name:   fmt.Sprintf("%s_limb%d", name, k),
			Degree: 3,
			State:  state,
			Scope:  ScopeEvery,
			Eval: func(cur, next []fr.Element, ch *Challenges) fr.Element {
				lhs := feAdd(a(cur, ch, k), b(cur, ch, k))
				if k > 0 {
					lhs = feAdd(lhs, cur[CarryCol(carryBase+k-1)])
				}
				rhs := feAdd(c(cur, ch, k), feMul(fe(256), cur[CarryCol(carryBase+k)]))
				return feSub(lhs, rhs)
			},
		})
	}
}

// assignCarryChain fills the carry columns for a + b = c + 2^256·carry_out
// from concrete operands. Returns the final carry.
func assignCarryChain(asg *Assignment, row, carryBase int, a, b, c uint256.Int) uint64 {
	ab := a.Bytes32()
	bb := b.Bytes32()
	cb := c.Bytes32()
	carry := uint64(0)
	for k := 0; k < WordBytes; k++ {
		t := uint64(ab[WordBytes-1-k]) + uint64(bb[WordBytes-1-k]) + carry
		carry = (t - uint64(cb[WordBytes-1-k])) >> 8
		asg.SetUint64(row, CarryCol(carryBase+k), carry)
	}
	return carry
}

// limb64 assembles the i-th 64-bit limb expression of a word operand from
// its byte columns (i = 0 least significant)
func limb64(op byteFn, cur []fr.Element, ch *Challenges, i int) fr.Element {
	var acc fr.Element
	shift := fe(1)
	for j := 0; j < 8; j++ {
		acc = feAdd(acc, feMul(op(cur, ch, 8*i+j), shift))
		shift = feMul(shift, fe(256))
	}
	return acc
}

// carryBytes is the number of little-endian byte limbs a mul-add carry is
// decomposed into; carries are bounded by 2^66
const carryBytes = 9

// carryValue assembles the carry expression stored in a slot's low bytes
func carryValue(cur []fr.Element, slot int) fr.Element {
	var acc fr.Element
	shift := fe(1)
	for j := 0; j < carryBytes; j++ {
		acc = feAdd(acc, feMul(cur[WordByteCol(slot, WordBytes-1-j)], shift))
		shift = feMul(shift, fe(256))
	}
	return acc
}

// mulAddGates declares the constraints of a·b + c = d (mod 2^256) over
// 64-bit limb products, the standard two-level carry split:
//
//	t_k       = Σ_{i+j=k} a_i·b_j
//	t0 + t1·2^64 + c_lo = d_lo + carry_lo·2^128
//	t2 + t3·2^64 + c_hi + carry_lo = d_hi + carry_hi·2^128
//
// carry_lo and carry_hi are byte-decomposed in the low bytes of two scratch
// word slots, which keeps them bounded by the global range lookups. When
// exact is set the gadget additionally forces the full-width overflow
// (carry_hi plus every t_k with k >= 4) to vanish, turning the modular
// identity into the integer identity a·b + c = d.
func mulAddGates(cs *ConstraintSystem, state ExecutionState, name string, a, b, c, d byteFn, carryLoSlot, carryHiSlot int, exact bool) {
	t := func(cur []fr.Element, ch *Challenges, k int) fr.Element {
		var acc fr.Element
		for i := 0; i <= k; i++ {
			j := k - i
			if i > 3 || j > 3 {
				continue
			}
			acc = feAdd(acc, feMul(limb64(a, cur, ch, i), limb64(b, cur, ch, j)))
		}
		return acc
	}
	pow64 := new(big.Int).Lsh(big.NewInt(1), 64)
	var shift64, shift128 fr.Element
	shift64.SetBigInt(pow64)
	shift128.Mul(&shift64, &shift64)

	half := func(op byteFn, cur []fr.Element, ch *Challenges, hi bool) fr.Element {
		base := 0
		if hi {
			base = 2
		}
		return feAdd(limb64(op, cur, ch, base), feMul(limb64(op, cur, ch, base+1), shift64))
	}

	cs.AddGate(Gate{
		Name:   name + "_low",
		Degree: 3,
		State:  state,
		Scope:  ScopeEvery,
		Eval: func(cur, next []fr.Element, ch *Challenges) fr.Element {
			lhs := feSum(t(cur, ch, 0), feMul(t(cur, ch, 1), shift64), half(c, cur, ch, false))
			rhs := feAdd(half(d, cur, ch, false), feMul(carryValue(cur, carryLoSlot), shift128))
			return feSub(lhs, rhs)
		},
	})
	cs.AddGate(Gate{
		Name:   name + "_high",
		Degree: 3,
		State:  state,
		Scope:  ScopeEvery,
		Eval: func(cur, next []fr.Element, ch *Challenges) fr.Element {
			lhs := feSum(t(cur, ch, 2), feMul(t(cur, ch, 3), shift64),
				half(c, cur, ch, true), carryValue(cur, carryLoSlot))
			rhs := feAdd(half(d, cur, ch, true), feMul(carryValue(cur, carryHiSlot), shift128))
			return feSub(lhs, rhs)
		},
	})
	if exact {
		cs.AddGate(Gate{
			Name:   name + "_no_overflow",
			Degree: 3,
			State:  state,
			Scope:  ScopeEvery,
			Eval: func(cur, next []fr.Element, ch *Challenges) fr.Element {
				// Every term is a non-negative bounded integer, so the
				// field sum vanishes only when each term does.
				o := carryValue(cur, carryHiSlot)
				for k := 4; k <= 6; k++ {
					o = feAdd(o, t(cur, ch, k))
				}
				return o
			},
		})
	}
}

// assignMulAddCarries computes and stores the two carry decompositions of
// a·b + c = d (mod 2^256) into the scratch slots' low bytes
func assignMulAddCarries(asg *Assignment, row int, a, b, c uint256.Int, carryLoSlot, carryHiSlot int) {
	ab := a.ToBig()
	bb := b.ToBig()
	cb := c.ToBig()

	full := new(big.Int).Mul(ab, bb)
	full.Add(full, cb)

	mask128 := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))
	dLo := new(big.Int).And(full, mask128)

	// t0 + t1·2^64 + c_lo = d_lo + carry_lo·2^128
	tLow := new(big.Int).Set(cb)
	tLow.And(tLow, mask128)
	for k := 0; k <= 1; k++ {
		for i := 0; i <= k; i++ {
			j := k - i
			if i > 3 || j > 3 {
				continue
			}
			p := new(big.Int).Mul(bigLimb(ab, i), bigLimb(bb, j))
			tLow.Add(tLow, p.Lsh(p, uint(64*k)))
		}
	}
	carryLo := new(big.Int).Sub(tLow, dLo)
	carryLo.Rsh(carryLo, 128)

	dHi := new(big.Int).Rsh(full, 128)
	dHi.And(dHi, mask128)
	cHi := new(big.Int).Rsh(cb, 128)
	tHigh := new(big.Int).Add(carryLo, cHi)
	for k := 2; k <= 3; k++ {
		for i := 0; i <= k; i++ {
			j := k - i
			if i > 3 || j > 3 {
				continue
			}
			p := new(big.Int).Mul(bigLimb(ab, i), bigLimb(bb, j))
			tHigh.Add(tHigh, p.Lsh(p, uint(64*(k-2))))
		}
	}
	carryHi := new(big.Int).Sub(tHigh, dHi)
	carryHi.Rsh(carryHi, 128)

	setCarrySlot(asg, row, carryLoSlot, carryLo)
	setCarrySlot(asg, row, carryHiSlot, carryHi)
}

// bigLimb extracts the i-th 64-bit limb of a big integer
func bigLimb(x *big.Int, i int) *big.Int {
	l := new(big.Int).Rsh(x, uint(64*i))
	return l.And(l, new(big.Int).SetUint64(^uint64(0)))
}

// setCarrySlot stores a carry's little-endian bytes in a slot's low limbs
func setCarrySlot(asg *Assignment, row, slot int, carry *big.Int) {
	b := carry.Bytes() // big-endian, minimal
	for j := 0; j < carryBytes; j++ {
		v := uint64(0)
		if j < len(b) {
			v = uint64(b[len(b)-1-j])
		}
		asg.SetUint64(row, WordByteCol(slot, WordBytes-1-j), v)
	}
}

// isZeroGates declares the standard is-zero gadget over a value expression:
// out = 1 - value·inv and out·value = 0, with the inverse witnessed in an
// aux column. out is itself an expression (typically a result byte).
func isZeroGates(cs *ConstraintSystem, state ExecutionState, name string, value, out func(cur []fr.Element, ch *Challenges) fr.Element, invCol int) {
	cs.AddGate(Gate{
		Name:   name + "_definition",
		Degree: 3,
		State:  state,
		Scope:  ScopeEvery,
		Eval: func(cur, next []fr.Element, ch *Challenges) fr.Element {
			v := value(cur, ch)
			return feSub(out(cur, ch), feSub(fe(1), feMul(v, cur[invCol])))
		},
	})
	cs.AddGate(Gate{
		Name:   name + "_annihilation",
		Degree: 3,
		State:  state,
		Scope:  ScopeEvery,
		Eval: func(cur, next []fr.Element, ch *Challenges) fr.Element {
			return feMul(out(cur, ch), value(cur, ch))
		},
	})
}

// feInverseOrZero returns v^-1, or zero when v is zero
func feInverseOrZero(v fr.Element) fr.Element {
	if v.IsZero() {
		return v
	}
	var inv fr.Element
	inv.Inverse(&v)
	return inv
}

// opcodeBindingGate restricts the row's opcode to the state's owned set via
// the product polynomial Π (opcode - op_i)
func opcodeBindingGate(cs *ConstraintSystem, state ExecutionState, ops ...evm.OpcodeId) {
	cs.AddGate(Gate{
		Name:   "opcode_binding_" + state.String(),
		Degree: len(ops) + 1,
		State:  state,
		Scope:  ScopeEvery,
		Eval: func(cur, next []fr.Element, ch *Challenges) fr.Element {
			p := fe(1)
			for _, op := range ops {
				p = feMul(p, feSub(cur[ColOpcode], fe(uint64(op))))
			}
			return p
		},
	})
}

// opcodeGasLookup ties (opcode, immediate size, charged gas) to the fixed
// opcode table; only constant-gas states may use it
func opcodeGasLookup(cs *ConstraintSystem, state ExecutionState) {
	cs.AddLookup(Lookup{
		Name:  "opcode_gas_" + state.String(),
		State: state,
		Table: TableOpcode,
		Tuple: func(cur, next []fr.Element, ch *Challenges) []fr.Element {
			return []fr.Element{cur[ColOpcode], cur[AuxCol(auxPushSize)], cur[AuxCol(auxGasCost)]}
		},
	})
}

// rwCountGate pins the row's declared rw record count
func rwCountGate(cs *ConstraintSystem, state ExecutionState, n uint64) {
	cs.AddGate(Gate{
		Name:   "rw_count_" + state.String(),
		Degree: 2,
		State:  state,
		Scope:  ScopeEvery,
		Eval: func(cur, next []fr.Element, ch *Challenges) fr.Element {
			return feSub(cur[AuxCol(auxRwCount)], fe(n))
		},
	})
}

// spDeltaGate pins the row's declared stack pointer delta (delta is signed)
func spDeltaGate(cs *ConstraintSystem, state ExecutionState, delta int) {
	want := feInt(delta)
	cs.AddGate(Gate{
		Name:   "sp_delta_" + state.String(),
		Degree: 2,
		State:  state,
		Scope:  ScopeEvery,
		Eval: func(cur, next []fr.Element, ch *Challenges) fr.Element {
			return feSub(cur[AuxCol(auxSpDelta)], want)
		},
	})
}

// feInt lifts a possibly negative integer into the field
func feInt(v int) fr.Element {
	if v >= 0 {
		return fe(uint64(v))
	}
	return feSub(fe(0), fe(uint64(-v)))
}

// ========== Rw-table lookup builders ==========

// rwLookupTuple assembles an rw-table tuple claim from row expressions; the
// layout matches rwTuple exactly
func rwLookupTuple(cur []fr.Element, rwOffset uint64, isWrite bool, tag trace.RwTag, address, keyRLC, valRLC, prevRLC fr.Element) []fr.Element {
	return []fr.Element{
		feAdd(cur[ColRwCounter], fe(rwOffset)),
		feFromBool(isWrite),
		fe(uint64(tag)),
		cur[ColCallID],
		address,
		keyRLC,
		valRLC,
		prevRLC,
	}
}

// stackRwLookup declares a stack-cell access lookup: the record with counter
// rwCounter + rwOffset touches cell sp + spOff and carries the RLC of the
// given word slot
func stackRwLookup(cs *ConstraintSystem, name string, state ExecutionState, rwOffset uint64, isWrite bool, spOff int, slot int) {
	cs.AddLookup(Lookup{
		Name:  name,
		State: state,
		Table: TableRw,
		Tuple: func(cur, next []fr.Element, ch *Challenges) []fr.Element {
			addr := feAdd(cur[ColStackPointer], feInt(spOff))
			return rwLookupTuple(cur, rwOffset, isWrite, trace.RwStack,
				addr, fe(0), wordRLC(cur, slot, ch.EvmWord), fe(0))
		},
	})
}

// bytecodeLookup declares a (call id, pc + off, byte, is_code) bytecode
// table lookup; the byte and the offset are row expressions
func bytecodeLookup(cs *ConstraintSystem, name string, state ExecutionState, offset, value func(cur []fr.Element) fr.Element, isCode bool, skip func(cur []fr.Element) bool) {
	cs.AddLookup(Lookup{
		Name:  name,
		State: state,
		Table: TableBytecode,
		Tuple: func(cur, next []fr.Element, ch *Challenges) []fr.Element {
			if skip != nil && skip(cur) {
				return nil
			}
			return []fr.Element{
				cur[ColCallID],
				offset(cur),
				value(cur),
				feFromBool(isCode),
			}
		},
	})
}

// ========== Assignment-side record validation ==========

// rwAt fetches the step's i-th rw record, validating its tag and direction.
// A mismatch means the trace builder and the constraint module disagree
// about the opcode's access pattern, which is a trace inconsistency.
func rwAt(step *trace.Step, row, i int, tag trace.RwTag, isWrite bool) (*trace.Rw, error) {
	if i >= len(step.Rws) {
		return nil, stepError(ErrTraceInconsistency, row, step.Op.String(),
			"missing rw record %d (have %d)", i, len(step.Rws))
	}
	rw := &step.Rws[i]
	if rw.Tag != tag || rw.IsWrite != isWrite {
		return nil, stepError(ErrTraceInconsistency, row, step.Op.String(),
			"rw record %d is tag=%d write=%v, module expects tag=%d write=%v",
			i, rw.Tag, rw.IsWrite, tag, isWrite)
	}
	return rw, nil
}

// requireRwCount validates the step's total record count
func requireRwCount(step *trace.Step, row, n int) error {
	if len(step.Rws) != n {
		return stepError(ErrTraceInconsistency, row, step.Op.String(),
			"step carries %d rw records, module expects %d", len(step.Rws), n)
	}
	return nil
}

// setWord stores a 256-bit word's byte limbs into a row's word slot
func setWord(asg *Assignment, row, slot int, w uint256.Int) {
	limbs := wordBytes(w)
	for b := 0; b < WordBytes; b++ {
		asg.Set(row, WordByteCol(slot, b), limbs[b])
	}
}

// requireU64Word checks that a word fits a machine offset
func requireU64Word(row int, step *trace.Step, what string, w uint256.Int) (uint64, error) {
	if !w.IsUint64() {
		return 0, stepError(ErrTraceInconsistency, row, step.Op.String(),
			"%s does not fit 64 bits: %s", what, w.Hex())
	}
	return w.Uint64(), nil
}

// ========== Word/scalar mirrors ==========

// wordLowU64 assembles the low 8 little-endian bytes of a word slot into a
// scalar expression
func wordLowU64(cur []fr.Element, slot int) fr.Element {
	var acc fr.Element
	shift := fe(1)
	for j := 0; j < 8; j++ {
		acc = feAdd(acc, feMul(cur[WordByteCol(slot, WordBytes-1-j)], shift))
		shift = feMul(shift, fe(256))
	}
	return acc
}

// wordHighSum sums the high 24 byte limbs of a word slot; zero exactly when
// the word fits 64 bits (limbs are byte-range checked)
func wordHighSum(cur []fr.Element, slot int) fr.Element {
	var acc fr.Element
	for b := 0; b < WordBytes-8; b++ {
		acc = feAdd(acc, cur[WordByteCol(slot, b)])
	}
	return acc
}

// wordMirrorsGates ties a word slot to a scalar row expression: the low
// bytes compose to the scalar and the high bytes vanish
func wordMirrorsGates(cs *ConstraintSystem, state ExecutionState, name string, slot int, expr func(cur []fr.Element) fr.Element) {
	cs.AddGate(Gate{
		Name:   name + "_low_bytes",
		Degree: 2,
		State:  state,
		Scope:  ScopeEvery,
		Eval: func(cur, next []fr.Element, ch *Challenges) fr.Element {
			return feSub(wordLowU64(cur, slot), expr(cur))
		},
	})
	cs.AddGate(Gate{
		Name:   name + "_high_bytes",
		Degree: 2,
		State:  state,
		Scope:  ScopeEvery,
		Eval: func(cur, next []fr.Element, ch *Challenges) fr.Element {
			return wordHighSum(cur, slot)
		},
	})
}

// lagrangeMap builds the interpolating polynomial through the given
// (x, y) points, evaluated as a closure. Used to map an opcode to its
// table field tag inside a gate.
func lagrangeMap(points [][2]uint64) func(x fr.Element) fr.Element {
	n := len(points)
	xs := make([]fr.Element, n)
	ys := make([]fr.Element, n)
	for i, p := range points {
		xs[i] = fe(p[0])
		ys[i] = fe(p[1])
	}
	// Precompute the basis denominators.
	denomInv := make([]fr.Element, n)
	for i := 0; i < n; i++ {
		d := fe(1)
		for j := 0; j < n; j++ {
			if j != i {
				d = feMul(d, feSub(xs[i], xs[j]))
			}
		}
		denomInv[i] = feInverseOrZero(d)
	}
	return func(x fr.Element) fr.Element {
		var acc fr.Element
		for i := 0; i < n; i++ {
			term := feMul(ys[i], denomInv[i])
			for j := 0; j < n; j++ {
				if j != i {
					term = feMul(term, feSub(x, xs[j]))
				}
			}
			acc = feAdd(acc, term)
		}
		return acc
	}
}

// ========== Memory expansion ==========

// memFlagCarry is the boolean carry column holding the "memory grows" flag
// in memory-touching states
const memFlagCarry = 32

// memExpansionGates declares the word-aligned memory growth discipline for
// a state whose access ends at offset + reach:
//
//	off + reach + 31 = 32·q + m,  m < 32
//	msize' = grows·32q + (1-grows)·msize
//
// q and m live in aux scratch, the grows flag in a boolean carry column.
// The assigner picks grows = (32q > msize); the gate family keeps msize'
// consistent with that choice, and q is byte-range bounded.
func memExpansionGates(cs *ConstraintSystem, state ExecutionState, offSlot int, reach uint64) {
	cs.AddGate(Gate{
		Name:   "mem_expansion_decompose_" + state.String(),
		Degree: 2,
		State:  state,
		Scope:  ScopeEvery,
		Eval: func(cur, next []fr.Element, ch *Challenges) fr.Element {
			lhs := feAdd(wordLowU64(cur, offSlot), fe(reach+31))
			rhs := feAdd(feMul(fe(32), cur[AuxCol(auxMemQuot)]), cur[AuxCol(auxMemRem)])
			return feSub(lhs, rhs)
		},
	})
	cs.AddGate(Gate{
		Name:   "mem_offset_fits_u64_" + state.String(),
		Degree: 2,
		State:  state,
		Scope:  ScopeEvery,
		Eval: func(cur, next []fr.Element, ch *Challenges) fr.Element {
			return wordHighSum(cur, offSlot)
		},
	})
	cs.AddGate(Gate{
		Name:   "mem_size_update_" + state.String(),
		Degree: 3,
		State:  state,
		Scope:  ScopeTransition,
		Eval: func(cur, next []fr.Element, ch *Challenges) fr.Element {
			grows := cur[CarryCol(memFlagCarry)]
			grown := feMul(fe(32), cur[AuxCol(auxMemQuot)])
			want := feAdd(feMul(grows, grown), feMul(feSub(fe(1), grows), cur[ColMemorySize]))
			return feSub(next[ColMemorySize], want)
		},
	})
	cs.AddLookup(Lookup{
		Name:  "mem_quotient_byte_" + state.String(),
		State: state,
		Table: TableByteRange,
		Tuple: func(cur, next []fr.Element, ch *Challenges) []fr.Element {
			return []fr.Element{cur[AuxCol(auxMemQuot)]}
		},
	})
	cs.AddLookup(Lookup{
		Name:  "mem_remainder_small_" + state.String(),
		State: state,
		Table: TableByteRange,
		Tuple: func(cur, next []fr.Element, ch *Challenges) []fr.Element {
			// 8·m is a byte exactly when m < 32.
			return []fr.Element{feMul(fe(8), cur[AuxCol(auxMemRem)])}
		},
	})
}

// assignMemExpansion fills the expansion decomposition cells and returns
// the post-access memory size
func assignMemExpansion(asg *Assignment, row int, off, reach, msize uint64) uint64 {
	q := (off + reach + 31) / 32
	m := (off + reach + 31) % 32
	asg.SetUint64(row, AuxCol(auxMemQuot), q)
	asg.SetUint64(row, AuxCol(auxMemRem), m)
	newSize := msize
	if 32*q > msize {
		newSize = 32 * q
		asg.SetUint64(row, CarryCol(memFlagCarry), 1)
	}
	return newSize
}

// memGasCost is the yellow-paper memory cost of a byte size: 3 gas per
// word plus the quadratic component
func memGasCost(sizeBytes uint64) uint64 {
	w := (sizeBytes + 31) / 32
	return evm.GasMemoryWord*w + w*w/512
}
