package circuit

import (
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/holiman/uint256"

	"github.com/vybium/vybium-zkevm/internal/vybium-zkevm/trace"
)

// TestCommitBinding tests that the table commitment distinguishes facts
// that agree on their low bytes: the sampled challenges must depend on the
// full width of every committed field
func TestCommitBinding(t *testing.T) {
	commit := func(rw trace.Rw) fr.Element {
		ts := NewTranscript()
		tbl := &Tables{rwChrono: []trace.Rw{rw}}
		tbl.Commit(ts)
		return ts.Squeeze()
	}

	base := trace.Rw{Counter: 1, Tag: trace.RwStack, Address: 1023}
	ref := commit(base)

	variants := map[string]func(rw *trace.Rw){
		// 257 and 1 share their low byte.
		"Counter":   func(rw *trace.Rw) { rw.Counter = 257 },
		"Address":   func(rw *trace.Rw) { rw.Address = 1023 + 256 },
		"CallID":    func(rw *trace.Rw) { rw.CallID = 256 },
		"PrevValue": func(rw *trace.Rw) { rw.ValuePrev = *uint256.NewInt(7) },
	}
	for name, mutate := range variants {
		rw := base
		mutate(&rw)
		if got := commit(rw); got.Equal(&ref) {
			t.Errorf("%s change did not reach the transcript", name)
		}
	}
}

// TestTranscriptSqueeze tests that squeezing advances the state
func TestTranscriptSqueeze(t *testing.T) {
	ts := NewTranscript()
	ts.AbsorbUint64(42)
	a := ts.Squeeze()
	b := ts.Squeeze()
	if a.Equal(&b) {
		t.Error("consecutive squeezes returned the same element")
	}
}
