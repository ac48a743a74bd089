package circuit

import (
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// StateAny marks a gate or lookup that applies to every row regardless of
// the active selector
const StateAny ExecutionState = -1

// GateScope restricts which rows a gate is evaluated on
type GateScope int

const (
	// ScopeEvery evaluates the gate on each row in isolation
	ScopeEvery GateScope = iota

	// ScopeTransition evaluates the gate on each pair of consecutive rows
	// (every row except the last)
	ScopeTransition

	// ScopeFirst evaluates the gate on the first row only
	ScopeFirst

	// ScopeLast evaluates the gate on the last row only
	ScopeLast
)

// Gate is a named polynomial constraint over one row (or a consecutive row
// pair). A gate owned by an execution state is implicitly multiplied by that
// state's selector: it must vanish on rows where the selector is active.
//
// The evaluator receives the current row, the next row (nil outside
// ScopeTransition and on the last row), and the sampled challenges; gates
// over phase-two columns fold challenge powers into their expressions.
type Gate struct {
	// Name identifies the algebraic assertion in unsatisfiability reports
	Name string

	// Degree is the polynomial degree bound of the constraint, selector
	// factor included
	Degree int

	// State gates the constraint by a selector; StateAny applies always
	State ExecutionState

	// Scope restricts the rows the gate covers
	Scope GateScope

	// Eval returns the constraint value; zero means satisfied
	Eval func(cur, next []fr.Element, ch *Challenges) fr.Element
}

// ConstraintSystem is the declared gate, lookup and permutation set of the
// execution circuit. Construction is single-threaded, done once, and purely
// declarative; the system is immutable after Finalize.
type ConstraintSystem struct {
	gates        []Gate
	lookups      []Lookup
	permutations []Permutation
	finalized    bool
}

// NewConstraintSystem creates an empty constraint system
func NewConstraintSystem() *ConstraintSystem {
	return &ConstraintSystem{
		gates:        make([]Gate, 0, 256),
		lookups:      make([]Lookup, 0, 64),
		permutations: make([]Permutation, 0, 4),
	}
}

// AddGate declares a gate. Panics if the system is finalized: gate
// declaration is circuit-definition time work, never per-proof work.
func (cs *ConstraintSystem) AddGate(g Gate) {
	if cs.finalized {
		panic("circuit: gate declared after finalization")
	}
	cs.gates = append(cs.gates, g)
}

// AddLookup declares a lookup of a row tuple into a table
func (cs *ConstraintSystem) AddLookup(l Lookup) {
	if cs.finalized {
		panic("circuit: lookup declared after finalization")
	}
	cs.lookups = append(cs.lookups, l)
}

// AddPermutation declares a multiset-equality argument between two column sets
func (cs *ConstraintSystem) AddPermutation(p Permutation) {
	if cs.finalized {
		panic("circuit: permutation declared after finalization")
	}
	cs.permutations = append(cs.permutations, p)
}

// Finalize freezes the system
func (cs *ConstraintSystem) Finalize() {
	cs.finalized = true
}

// Gates returns the declared gates
func (cs *ConstraintSystem) Gates() []Gate {
	return cs.gates
}

// Lookups returns the declared lookups
func (cs *ConstraintSystem) Lookups() []Lookup {
	return cs.lookups
}

// Permutations returns the declared permutation arguments
func (cs *ConstraintSystem) Permutations() []Permutation {
	return cs.permutations
}

// ========== Expression helpers ==========
//
// Gate evaluators are ordinary Go closures over fr arithmetic. These helpers
// keep them readable; all of them are pure value functions.

// fe lifts a uint64 into the field
func fe(v uint64) fr.Element {
	var e fr.Element
	e.SetUint64(v)
	return e
}

func feAdd(a, b fr.Element) fr.Element {
	var r fr.Element
	r.Add(&a, &b)
	return r
}

func feSub(a, b fr.Element) fr.Element {
	var r fr.Element
	r.Sub(&a, &b)
	return r
}

func feMul(a, b fr.Element) fr.Element {
	var r fr.Element
	r.Mul(&a, &b)
	return r
}

// feBool returns b*(b-1); zero exactly when b is boolean
func feBool(b fr.Element) fr.Element {
	return feMul(b, feSub(b, fe(1)))
}

// feSum folds a list of terms
func feSum(terms ...fr.Element) fr.Element {
	var r fr.Element
	for i := range terms {
		r.Add(&r, &terms[i])
	}
	return r
}
