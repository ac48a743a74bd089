package circuit

import (
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/holiman/uint256"

	"github.com/vybium/vybium-zkevm/internal/vybium-zkevm/evm"
	"github.com/vybium/vybium-zkevm/internal/vybium-zkevm/trace"
)

// binaryOpRws validates the canonical two-pop one-push record layout and
// loads the operands into word slots 0, 1 and the result into slot 2
func binaryOpRws(asg *Assignment, row int, step *trace.Step) error {
	if err := requireRwCount(step, row, 3); err != nil {
		return err
	}
	for i, isWrite := range []bool{false, false, true} {
		rw, err := rwAt(step, row, i, trace.RwStack, isWrite)
		if err != nil {
			return err
		}
		setWord(asg, row, i, rw.Value)
	}
	return nil
}

// binaryOpLookups declares the canonical two-pop one-push stack lookups:
// reads at sp and sp+1, the result written back at sp+1
func binaryOpLookups(cs *ConstraintSystem, state ExecutionState, prefix string) {
	stackRwLookup(cs, prefix+"_pop_a", state, 0, false, 0, 0)
	stackRwLookup(cs, prefix+"_pop_b", state, 1, false, 1, 1)
	stackRwLookup(cs, prefix+"_push", state, 2, true, 1, 2)
}

// addSubModule handles ADD and SUB through one carry chain: for ADD the
// chain states x + y = z, for SUB it is rearranged to z + y = x. The
// operand roles are blended per byte by the is-sub flag derived from the
// opcode.
type addSubModule struct{}

func (m *addSubModule) State() ExecutionState { return StateAddSub }

// isSubFlag is (opcode - ADD) / 2, which is 0 for ADD and 1 for SUB once
// the opcode binding gate holds
func isSubFlag(cur []fr.Element) fr.Element {
	return feMul(feSub(cur[ColOpcode], fe(uint64(evm.ADD))), feInverseOrZero(fe(2)))
}

func (m *addSubModule) Gates(cs *ConstraintSystem) {
	opcodeBindingGate(cs, StateAddSub, evm.ADD, evm.SUB)
	opcodeGasLookup(cs, StateAddSub)
	rwCountGate(cs, StateAddSub, 3)
	spDeltaGate(cs, StateAddSub, 1)
	binaryOpLookups(cs, StateAddSub, "add_sub")

	carryChainGates(cs, StateAddSub, "add_sub_chain",
		selectByteLE(0, 2, isSubFlag),
		wordByteLE(1),
		selectByteLE(2, 0, isSubFlag),
		0)
}

func (m *addSubModule) Assign(asg *Assignment, row int, step *trace.Step, tr *trace.Trace) error {
	if err := binaryOpRws(asg, row, step); err != nil {
		return err
	}
	x, y, z := step.Rws[0].Value, step.Rws[1].Value, step.Rws[2].Value

	var want uint256.Int
	if step.Op == evm.SUB {
		want.Sub(&x, &y)
	} else {
		want.Add(&x, &y)
	}
	if !want.Eq(&z) {
		return stepError(ErrTraceInconsistency, row, step.Op.String(),
			"recorded result %s, computed %s", z.Hex(), want.Hex())
	}

	if step.Op == evm.SUB {
		assignCarryChain(asg, row, 0, z, y, x)
	} else {
		assignCarryChain(asg, row, 0, x, y, z)
	}
	return nil
}

// mulModule handles MUL as a·b + 0 = c modulo 2^256, with the mul-add
// carries byte-decomposed in word slots 3 and 4
type mulModule struct{}

func (m *mulModule) State() ExecutionState { return StateMul }

func (m *mulModule) Gates(cs *ConstraintSystem) {
	opcodeBindingGate(cs, StateMul, evm.MUL)
	opcodeGasLookup(cs, StateMul)
	rwCountGate(cs, StateMul, 3)
	spDeltaGate(cs, StateMul, 1)
	binaryOpLookups(cs, StateMul, "mul")

	mulAddGates(cs, StateMul, "mul",
		wordByteLE(0), wordByteLE(1), zeroByte, wordByteLE(2),
		3, 4, false)
}

func (m *mulModule) Assign(asg *Assignment, row int, step *trace.Step, tr *trace.Trace) error {
	if err := binaryOpRws(asg, row, step); err != nil {
		return err
	}
	x, y, z := step.Rws[0].Value, step.Rws[1].Value, step.Rws[2].Value

	var want uint256.Int
	want.Mul(&x, &y)
	if !want.Eq(&z) {
		return stepError(ErrTraceInconsistency, row, step.Op.String(),
			"recorded product %s, computed %s", z.Hex(), want.Hex())
	}
	assignMulAddCarries(asg, row, x, y, uint256.Int{}, 3, 4)
	return nil
}

// divModModule handles DIV and MOD through the exact integer identity
// q·b + r = a with r < b, plus the zero-divisor special case. Word slots:
// 0 numerator, 1 divisor, 2 pushed result, 3 quotient, 4 remainder,
// 5/6 mul-add carries, 7 comparison diff. The divisor-is-zero flag lives
// in a boolean carry column past the comparison chain.
type divModModule struct{}

const divIsZeroCarry = 32

func (m *divModModule) State() ExecutionState { return StateDivMod }

// isModFlag is (opcode - DIV) / 2: 0 for DIV, 1 for MOD
func isModFlag(cur []fr.Element) fr.Element {
	return feMul(feSub(cur[ColOpcode], fe(uint64(evm.DIV))), feInverseOrZero(fe(2)))
}

func (m *divModModule) Gates(cs *ConstraintSystem) {
	opcodeBindingGate(cs, StateDivMod, evm.DIV, evm.MOD)
	opcodeGasLookup(cs, StateDivMod)
	rwCountGate(cs, StateDivMod, 3)
	spDeltaGate(cs, StateDivMod, 1)
	binaryOpLookups(cs, StateDivMod, "div_mod")

	// q·b + r = a, exactly (no 2^256 wrap).
	mulAddGates(cs, StateDivMod, "div_mod",
		wordByteLE(3), wordByteLE(1), wordByteLE(4), wordByteLE(0),
		5, 6, true)

	// Divisor-is-zero flag over the divisor byte sum.
	isZeroGates(cs, StateDivMod, "div_mod_divisor_zero",
		func(cur []fr.Element, ch *Challenges) fr.Element {
			var sum fr.Element
			for b := 0; b < WordBytes; b++ {
				sum = feAdd(sum, cur[WordByteCol(1, b)])
			}
			return sum
		},
		func(cur []fr.Element, ch *Challenges) fr.Element {
			return cur[CarryCol(divIsZeroCarry)]
		},
		AuxCol(auxInverse))

	// r < b whenever b is non-zero: the borrow chain b + diff = r + lt·2^256
	// leaves lt in the last chain carry.
	carryChainGates(cs, StateDivMod, "div_mod_rem_lt",
		wordByteLE(1), wordByteLE(7), wordByteLE(4), 0)
	cs.AddGate(Gate{
		Name:   "div_mod_rem_bound",
		Degree: 3,
		State:  StateDivMod,
		Scope:  ScopeEvery,
		Eval: func(cur, next []fr.Element, ch *Challenges) fr.Element {
			zero := cur[CarryCol(divIsZeroCarry)]
			lt := cur[CarryCol(WordBytes - 1)]
			return feMul(feSub(fe(1), zero), feSub(fe(1), lt))
		},
	})

	// Pushed result: zero divisor forces zero, otherwise q for DIV and
	// r for MOD, byte by byte.
	for j := 0; j < WordBytes; j++ {
		j := j
		cs.AddGate(Gate{
			Name:   "div_mod_result_" + ColumnName(WordByteCol(2, j)),
			Degree: 4,
			State:  StateDivMod,
			Scope:  ScopeEvery,
			Eval: func(cur, next []fr.Element, ch *Challenges) fr.Element {
				q := cur[WordByteCol(3, j)]
				r := cur[WordByteCol(4, j)]
				picked := feAdd(q, feMul(isModFlag(cur), feSub(r, q)))
				nonZero := feSub(fe(1), cur[CarryCol(divIsZeroCarry)])
				return feSub(cur[WordByteCol(2, j)], feMul(nonZero, picked))
			},
		})
	}
}

func (m *divModModule) Assign(asg *Assignment, row int, step *trace.Step, tr *trace.Trace) error {
	if err := binaryOpRws(asg, row, step); err != nil {
		return err
	}
	a, b, out := step.Rws[0].Value, step.Rws[1].Value, step.Rws[2].Value

	var q, r uint256.Int
	if b.IsZero() {
		r = a
		asg.SetUint64(row, CarryCol(divIsZeroCarry), 1)
		if !out.IsZero() {
			return stepError(ErrTraceInconsistency, row, step.Op.String(),
				"zero divisor must yield zero, trace recorded %s", out.Hex())
		}
	} else {
		q.Div(&a, &b)
		r.Mod(&a, &b)
		var sum fr.Element
		be := b.Bytes32()
		for _, v := range be {
			sum = feAdd(sum, fe(uint64(v)))
		}
		asg.Set(row, AuxCol(auxInverse), feInverseOrZero(sum))

		want := &q
		if step.Op == evm.MOD {
			want = &r
		}
		if !want.Eq(&out) {
			return stepError(ErrTraceInconsistency, row, step.Op.String(),
				"recorded result %s, computed %s", out.Hex(), want.Hex())
		}
	}
	setWord(asg, row, 3, q)
	setWord(asg, row, 4, r)
	assignMulAddCarries(asg, row, q, b, r, 5, 6)

	var diff uint256.Int
	diff.Sub(&r, &b)
	setWord(asg, row, 7, diff)
	assignCarryChain(asg, row, 0, b, diff, r)
	return nil
}
