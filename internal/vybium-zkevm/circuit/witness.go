package circuit

import (
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/vybium/vybium-zkevm/internal/vybium-zkevm/trace"
)

// ========== Assignment ==========

// Assignment is the witness matrix under construction, stored column-major
// the way the prover commits it. Rows are independent during phase one, so
// distinct row ranges may be assigned concurrently.
//
// Seal marks the challenge barrier: after Seal only the phase-two scratch
// column may still be written. Writing any other column past the barrier is
// a programming error and panics with a PhaseViolation.
type Assignment struct {
	cols   [][]fr.Element
	rows   int
	sealed bool
}

// NewAssignment allocates a zeroed witness matrix with the given row count
func NewAssignment(rows int) *Assignment {
	cols := make([][]fr.Element, NumColumns)
	for i := range cols {
		cols[i] = make([]fr.Element, rows)
	}
	return &Assignment{cols: cols, rows: rows}
}

// Rows returns the matrix height
func (a *Assignment) Rows() int {
	return a.rows
}

// Set writes one cell. Past the challenge barrier only the phase-two
// scratch column is writable.
func (a *Assignment) Set(row, col int, v fr.Element) {
	if a.sealed && col != AuxCol(0) {
		panic(&Error{
			Code:    ErrPhaseViolation,
			Message: "column assigned after the challenge barrier",
			Step:    row,
			Column:  ColumnName(col),
		})
	}
	a.cols[col][row] = v
}

// SetUint64 writes one cell from a uint64
func (a *Assignment) SetUint64(row, col int, v uint64) {
	a.Set(row, col, fe(v))
}

// Seal freezes every deterministic column; called exactly once, before the
// challenges are squeezed
func (a *Assignment) Seal() {
	a.sealed = true
}

// Row gathers one row into a contiguous slice, indexed by column
func (a *Assignment) Row(row int) []fr.Element {
	out := make([]fr.Element, NumColumns)
	for c := range a.cols {
		out[c] = a.cols[c][row]
	}
	return out
}

// Columns returns the column-major matrix. The slices are the live backing
// store, not a copy.
func (a *Assignment) Columns() [][]fr.Element {
	return a.cols
}

// ========== Witness ==========

// Witness is a fully assigned execution circuit instance: the constraint
// system, the witness matrix, the populated fact tables and the sampled
// challenges. It is the hand-off object for a proving backend, and carries
// a direct checker used for testing and pre-flight validation.
type Witness struct {
	cfg    *Config
	cs     *ConstraintSystem
	tables *Tables
	ch     *Challenges
	asg    *Assignment
	tr     *trace.Trace

	// stepRows is the number of rows carrying real steps; rows beyond it
	// are padding in the EndBlock state
	stepRows int
}

// Config returns the capacity configuration the witness was built under
func (w *Witness) Config() *Config { return w.cfg }

// System returns the constraint system the witness is claimed to satisfy
func (w *Witness) System() *ConstraintSystem { return w.cs }

// Tables returns the populated fact tables
func (w *Witness) Tables() *Tables { return w.tables }

// Challenges returns the sampled challenge set
func (w *Witness) Challenges() *Challenges { return w.ch }

// Rows returns the full row count, padding included
func (w *Witness) Rows() int { return w.asg.rows }

// StepRows returns the number of rows carrying real execution steps
func (w *Witness) StepRows() int { return w.stepRows }

// Matrix returns the column-major witness matrix
func (w *Witness) Matrix() [][]fr.Element { return w.asg.Columns() }

// Row returns one assembled witness row
func (w *Witness) Row(i int) []fr.Element { return w.asg.Row(i) }

// BuildWitness assigns the full witness for a trace: constraint system
// construction, table population with capacity enforcement, parallel
// phase-one row assignment, the challenge barrier, then phase-two
// randomness-dependent cells.
func BuildWitness(tr *trace.Trace, cfg *Config) (*Witness, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if tr == nil || len(tr.Steps) == 0 {
		return nil, newError(ErrInvalidInput, "trace carries no steps")
	}
	if len(tr.Steps) > cfg.MaxRows {
		return nil, newError(ErrCapacityExceeded,
			"trace needs %d rows, capacity is %d", len(tr.Steps), cfg.MaxRows)
	}

	cs := BuildConstraintSystem()
	tables, err := BuildTables(tr, cfg)
	if err != nil {
		return nil, err
	}

	asg := NewAssignment(cfg.MaxRows)

	// Phase one: deterministic columns. Rows are independent, so the trace
	// is split at call-context boundaries and the segments assigned
	// concurrently.
	var g errgroup.Group
	for _, seg := range stepSegments(tr) {
		lo, hi := seg[0], seg[1]
		g.Go(func() error {
			return assignRange(asg, tr, lo, hi)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for row := len(tr.Steps); row < cfg.MaxRows; row++ {
		asg.SetUint64(row, SelectorCol(StateEndBlock), 1)
	}

	// Challenge barrier: freeze phase one, commit it, then sample.
	asg.Seal()
	ts := NewTranscript()
	absorbColumns(ts, asg.Columns())
	tables.Commit(ts)
	ch := SampleChallenges(ts)

	if err := assignPhase2(asg, tr, ch); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"rows":     cfg.MaxRows,
		"stepRows": len(tr.Steps),
		"gates":    len(cs.Gates()),
		"lookups":  len(cs.Lookups()),
	}).Debug("witness assigned")

	return &Witness{
		cfg:      cfg,
		cs:       cs,
		tables:   tables,
		ch:       ch,
		asg:      asg,
		tr:       tr,
		stepRows: len(tr.Steps),
	}, nil
}

// stepSegments splits the step range into maximal runs sharing a call
// context, as [lo, hi) pairs
func stepSegments(tr *trace.Trace) [][2]int {
	var segs [][2]int
	lo := 0
	for i := 1; i < len(tr.Steps); i++ {
		if tr.Steps[i].CallIndex != tr.Steps[lo].CallIndex {
			segs = append(segs, [2]int{lo, i})
			lo = i
		}
	}
	segs = append(segs, [2]int{lo, len(tr.Steps)})
	return segs
}

// assignRange assigns the deterministic columns of rows [lo, hi)
func assignRange(asg *Assignment, tr *trace.Trace, lo, hi int) error {
	for row := lo; row < hi; row++ {
		step := &tr.Steps[row]
		state, err := stateForStep(step)
		if err != nil {
			return err
		}
		assignContext(asg, row, step, state, tr)

		m := moduleForState(state)
		if m == nil {
			return stepError(ErrTraceInconsistency, row, step.Op.String(),
				"no constraint module owns state %v", state)
		}
		if err := m.Assign(asg, row, step, tr); err != nil {
			return err
		}
	}
	return nil
}

// assignPhase2 runs the randomness-dependent assigners. A module writing
// outside the scratch column panics with a PhaseViolation; that panic is
// converted back into the returned error.
func assignPhase2(asg *Assignment, tr *trace.Trace, ch *Challenges) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(*Error); ok {
				err = e
				return
			}
			panic(r)
		}
	}()
	for row := range tr.Steps {
		step := &tr.Steps[row]
		state, serr := stateForStep(step)
		if serr != nil {
			return serr
		}
		m := moduleForState(state)
		if p2, ok := m.(Phase2Assigner); ok {
			if err := p2.AssignPhase2(asg, row, step, ch); err != nil {
				return err
			}
		}
	}
	return nil
}

// stateForStep maps a step to its owning execution state
func stateForStep(step *trace.Step) (ExecutionState, error) {
	switch step.Kind {
	case trace.KindBeginTx:
		return StateBeginTx, nil
	case trace.KindEndTx:
		return StateEndTx, nil
	case trace.KindEndBlock:
		return StateEndBlock, nil
	}
	s, ok := StateForOpcode(step.Op)
	if !ok {
		return 0, stepError(ErrTraceInconsistency, -1, step.Op.String(),
			"opcode outside the arithmetized instruction set")
	}
	return s, nil
}

// assignContext fills the context columns, the state selector and the
// generic bookkeeping scratch cells every module shares: stack pointer
// delta, push size, gas cost and rw record count.
func assignContext(asg *Assignment, row int, step *trace.Step, state ExecutionState, tr *trace.Trace) {
	asg.SetUint64(row, ColStepIndex, uint64(row))
	asg.SetUint64(row, ColPC, step.PC)
	asg.SetUint64(row, ColOpcode, uint64(step.Op))
	asg.SetUint64(row, ColStackPointer, uint64(trace.StackBase-step.StackSize))
	asg.SetUint64(row, ColMemorySize, step.MemorySize)
	asg.SetUint64(row, ColGasLeft, step.GasLeft)
	asg.SetUint64(row, ColCallID, uint64(step.CallIndex))
	asg.SetUint64(row, ColRwCounter, step.RwCounter)
	asg.SetUint64(row, ColGasRefund, step.GasRefund)
	asg.SetUint64(row, ColRevWriteCounter, uint64(step.ReversibleWriteCounter))
	asg.SetUint64(row, ColLogID, uint64(step.LogID))
	if call := tr.Call(step.CallIndex); call != nil {
		asg.SetUint64(row, ColCallDepth, uint64(call.Depth))
		asg.SetUint64(row, ColTxID, uint64(call.TxID))
	}
	asg.SetUint64(row, SelectorCol(state), 1)

	if step.Kind == trace.KindOp {
		info := step.Op.Stack()
		asg.Set(row, AuxCol(auxSpDelta), feSub(fe(uint64(info.Pops)), fe(uint64(info.Pushes))))
		asg.SetUint64(row, AuxCol(auxPushSize), uint64(step.Op.PushSize()))
	}
	asg.SetUint64(row, AuxCol(auxGasCost), step.GasCost)
	asg.SetUint64(row, AuxCol(auxRwCount), uint64(len(step.Rws)))
}

// ========== Checking ==========

// Check evaluates every gate, lookup and permutation of the constraint
// system against the witness. It returns nil exactly when the witness
// satisfies the full system; the first violation is reported with its step,
// opcode and constraint name.
//
// This is the testing and pre-flight path. A proving backend re-derives the
// same checks from the committed polynomials.
func (w *Witness) Check() error {
	rows := make([][]fr.Element, w.asg.rows)
	for i := range rows {
		rows[i] = w.asg.Row(i)
	}

	if err := w.checkGates(rows); err != nil {
		return err
	}
	if err := w.checkLookups(rows); err != nil {
		return err
	}
	return w.checkPermutations()
}

func (w *Witness) checkGates(rows [][]fr.Element) error {
	n := len(rows)
	for _, g := range w.cs.Gates() {
		lo, hi := 0, n
		switch g.Scope {
		case ScopeTransition:
			hi = n - 1
		case ScopeFirst:
			hi = 1
		case ScopeLast:
			lo = n - 1
		}
		for r := lo; r < hi; r++ {
			// A state-owned gate is multiplied by its selector.
			sel := fe(1)
			if g.State != StateAny {
				sel = rows[r][SelectorCol(g.State)]
				if sel.IsZero() {
					continue
				}
			}
			var next []fr.Element
			if r+1 < n {
				next = rows[r+1]
			}
			if v := feMul(sel, g.Eval(rows[r], next, w.ch)); !v.IsZero() {
				return w.violation(r, g.Name, "gate does not vanish")
			}
		}
	}
	return nil
}

func (w *Witness) checkLookups(rows [][]fr.Element) error {
	fabric := NewFabric(w.ch, w.tables)
	sets := make(map[TableID]map[fr.Element]struct{})
	tableSet := func(id TableID) map[fr.Element]struct{} {
		s, ok := sets[id]
		if !ok {
			s = fabric.TableSet(w.tables.Tuples(id, w.ch))
			sets[id] = s
		}
		return s
	}

	n := len(rows)
	for _, l := range w.cs.Lookups() {
		for r := 0; r < n; r++ {
			if l.State != StateAny && rows[r][SelectorCol(l.State)].IsZero() {
				continue
			}
			var next []fr.Element
			if r+1 < n {
				next = rows[r+1]
			}
			tuple := l.Tuple(rows[r], next, w.ch)
			if tuple == nil {
				continue
			}
			if _, ok := tableSet(l.Table)[fabric.Compress(tuple)]; !ok {
				return w.violation(r, l.Name, "tuple missing from the %v table", l.Table)
			}
		}
	}
	return nil
}

func (w *Witness) checkPermutations() error {
	fabric := NewFabric(w.ch, w.tables)
	for _, p := range w.cs.Permutations() {
		src := fabric.RunningProduct(p.Source(w))
		tgt := fabric.RunningProduct(p.Target(w))
		if !src.Equal(&tgt) {
			return &Error{
				Code:    ErrUnsatisfiableWitness,
				Message: "permutation running products disagree",
				Step:    -1,
				Gate:    p.Name,
			}
		}
	}
	return nil
}

// violation builds an unsatisfiability report for a row, recovering the
// step's opcode from the trace when the row carries a real step
func (w *Witness) violation(row int, name, format string, args ...interface{}) error {
	op := ""
	step := row
	if row < w.stepRows {
		s := &w.tr.Steps[row]
		if s.Kind == trace.KindOp {
			op = s.Op.String()
		} else {
			op = s.Kind.String()
		}
	} else {
		step = -1
	}
	e := stepError(ErrUnsatisfiableWitness, step, op, format, args...)
	e.Gate = name
	return e
}

// ========== Round-trip extraction ==========

// Steps reconstructs the step stream from the assigned context columns:
// kind, opcode, program counter, stack depth, gas and rw bookkeeping. The
// reconstruction must agree with the input trace field for field; it is the
// round-trip half of witness validation.
func (w *Witness) Steps() ([]trace.Step, error) {
	out := make([]trace.Step, 0, w.stepRows)
	for row := 0; row < w.stepRows; row++ {
		r := w.asg.Row(row)

		state := ExecutionState(-1)
		for s := ExecutionState(0); s < NumStates; s++ {
			if !r[SelectorCol(s)].IsZero() {
				if state >= 0 {
					return nil, w.violation(row, "selector_one_hot", "multiple selectors active")
				}
				state = s
			}
		}
		if state < 0 {
			return nil, w.violation(row, "selector_one_hot", "no selector active")
		}

		step := trace.Step{
			PC:                     mustU64(r[ColPC]),
			StackSize:              trace.StackBase - int(mustU64(r[ColStackPointer])),
			MemorySize:             mustU64(r[ColMemorySize]),
			GasLeft:                mustU64(r[ColGasLeft]),
			GasCost:                mustU64(r[AuxCol(auxGasCost)]),
			GasRefund:              mustU64(r[ColGasRefund]),
			CallIndex:              int(mustU64(r[ColCallID])),
			RwCounter:              mustU64(r[ColRwCounter]),
			ReversibleWriteCounter: int(mustU64(r[ColRevWriteCounter])),
			LogID:                  int(mustU64(r[ColLogID])),
		}
		switch state {
		case StateBeginTx:
			step.Kind = trace.KindBeginTx
		case StateEndTx:
			step.Kind = trace.KindEndTx
		case StateEndBlock:
			step.Kind = trace.KindEndBlock
		default:
			step.Kind = trace.KindOp
			step.Op = evmOpcode(r[ColOpcode])
		}
		out = append(out, step)
	}
	return out, nil
}

func mustU64(e fr.Element) uint64 {
	if !e.IsUint64() {
		return 0
	}
	return e.Uint64()
}
