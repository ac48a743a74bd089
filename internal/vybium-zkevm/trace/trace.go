package trace

// Trace is the complete, immutable execution record handed to the constraint
// engine: block and transaction constants, call contexts, and the ordered
// step list with fully populated read/write records.
type Trace struct {
	Block BlockContext
	Txs   []Transaction
	Calls []CallContext
	Steps []Step
}

// Call returns the call context with the given 1-based id, or nil
func (t *Trace) Call(id int) *CallContext {
	for i := range t.Calls {
		if t.Calls[i].ID == id {
			return &t.Calls[i]
		}
	}
	return nil
}

// Tx returns the transaction with the given 1-based id, or nil
func (t *Trace) Tx(id int) *Transaction {
	for i := range t.Txs {
		if t.Txs[i].ID == id {
			return &t.Txs[i]
		}
	}
	return nil
}

// Rws collects every read/write record of the trace in rw counter order,
// with the sentinel start record prepended. This is the exact multiset the
// rw table commits to.
func (t *Trace) Rws() []Rw {
	out := []Rw{{Tag: RwStart}}
	for i := range t.Steps {
		out = append(out, t.Steps[i].Rws...)
	}
	return out
}

// StepCount returns the number of steps, virtual steps included
func (t *Trace) StepCount() int {
	return len(t.Steps)
}

// GasUsed returns the total gas consumed across all steps
func (t *Trace) GasUsed() uint64 {
	var total uint64
	for i := range t.Steps {
		total += t.Steps[i].GasCost
	}
	return total
}
