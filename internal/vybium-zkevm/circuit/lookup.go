package circuit

import (
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// Lookup asserts that a tuple extracted from an execution row appears in a
// designated external table (multiset containment). Like gates, lookups are
// gated by an execution state selector; StateAny lookups apply to every row.
type Lookup struct {
	// Name identifies the assertion in unsatisfiability reports
	Name string

	// State gates the lookup by a selector
	State ExecutionState

	// Table designates the target table
	Table TableID

	// Tuple extracts the claimed tuple from the current row (and next row,
	// which is nil on the last row). A nil result skips the row: the
	// extractor itself found the lookup inactive (e.g. a degenerate
	// zero-length hash).
	Tuple func(cur, next []fr.Element, ch *Challenges) []fr.Element
}

// Permutation asserts that two tuple multisets are equal, via running
// products keyed by the permutation challenge. It stitches independently
// committed column sets together without per-row equality.
type Permutation struct {
	// Name identifies the argument in unsatisfiability reports
	Name string

	// Source and Target produce the two multisets under comparison
	Source func(w *Witness) [][]fr.Element
	Target func(w *Witness) [][]fr.Element
}

// Fabric implements the cross-circuit consistency checks: tuple compression
// under the shared challenges, multiset containment for lookups and running
// product equality for permutations.
//
// Compression coefficients come from the fixed power-of-randomness table, so
// the execution side and every table side weigh tuple components identically.
type Fabric struct {
	ch  *Challenges
	pow []fr.Element
}

// NewFabric creates a fabric over the sampled challenges
func NewFabric(ch *Challenges, tables *Tables) *Fabric {
	powRows := tables.Tuples(TablePowOfRand, ch)
	pow := make([]fr.Element, len(powRows))
	for i, row := range powRows {
		pow[i] = row[1]
	}
	return &Fabric{ch: ch, pow: pow}
}

// Compress folds a tuple into a single field element with the power table's
// coefficients
func (f *Fabric) Compress(tuple []fr.Element) fr.Element {
	var acc fr.Element
	for i := range tuple {
		acc = feAdd(acc, feMul(tuple[i], f.pow[i]))
	}
	return acc
}

// TableSet compresses every row of a table into a membership set
func (f *Fabric) TableSet(rows [][]fr.Element) map[fr.Element]struct{} {
	set := make(map[fr.Element]struct{}, len(rows))
	for _, row := range rows {
		set[f.Compress(row)] = struct{}{}
	}
	return set
}

// RunningProduct folds a compressed multiset into the permutation argument's
// terminal value: init * Π (gamma - compressed_i). Two multisets are equal
// exactly when their terminals agree (up to challenge collisions).
func (f *Fabric) RunningProduct(rows [][]fr.Element) fr.Element {
	acc := fe(1)
	for _, row := range rows {
		acc = feMul(acc, feSub(f.ch.Permutation, f.Compress(row)))
	}
	return acc
}
