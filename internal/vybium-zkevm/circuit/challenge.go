package circuit

import (
	"encoding/binary"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"golang.org/x/crypto/sha3"
)

// Transcript is a Fiat-Shamir transcript over Keccak-256. All phase-one
// column data is absorbed before any challenge is squeezed; the witness
// builder enforces that ordering as an explicit barrier.
type Transcript struct {
	state []byte
}

// NewTranscript creates an empty transcript
func NewTranscript() *Transcript {
	return &Transcript{state: []byte{0}}
}

// Absorb mixes data into the transcript state
func (t *Transcript) Absorb(data []byte) {
	h := sha3.NewLegacyKeccak256()
	h.Write(t.state)
	h.Write(data)
	t.state = h.Sum(nil)
}

// AbsorbUint64 mixes scalars into the transcript state as fixed-width
// big-endian words, so facts differing only above the low byte stay distinct
func (t *Transcript) AbsorbUint64(vs ...uint64) {
	buf := make([]byte, 8*len(vs))
	for i, v := range vs {
		binary.BigEndian.PutUint64(buf[i*8:], v)
	}
	t.Absorb(buf)
}

// AbsorbElement mixes a field element into the transcript state
func (t *Transcript) AbsorbElement(e fr.Element) {
	b := e.Bytes()
	t.Absorb(b[:])
}

// Squeeze derives one field element and advances the state. The 32-byte hash
// output is reduced into the field by SetBytes.
func (t *Transcript) Squeeze() fr.Element {
	h := sha3.NewLegacyKeccak256()
	h.Write(t.state)
	digest := h.Sum(nil)

	var e fr.Element
	e.SetBytes(digest)

	t.state = append(digest, 1)
	return e
}

// Challenges holds the random scalars sampled after all non-random columns
// are fixed. Each is sampled once per proof and shared by every table that
// must compress the same logical tuples.
type Challenges struct {
	// EvmWord compresses 256-bit words into single field elements
	EvmWord fr.Element

	// LookupInput compresses variable-length byte strings (keccak
	// preimages, calldata) for lookup tuples
	LookupInput fr.Element

	// Permutation keys the running-product multiset arguments
	Permutation fr.Element
}

// SampleChallenges squeezes the challenge set from a transcript that has
// absorbed every phase-one column commitment
func SampleChallenges(t *Transcript) *Challenges {
	return &Challenges{
		EvmWord:     t.Squeeze(),
		LookupInput: t.Squeeze(),
		Permutation: t.Squeeze(),
	}
}

// absorbColumns commits a column-major matrix into the transcript: column
// index, length, then the raw element bytes in row order.
func absorbColumns(t *Transcript, cols [][]fr.Element) {
	var hdr [16]byte
	for i, col := range cols {
		binary.BigEndian.PutUint64(hdr[0:8], uint64(i))
		binary.BigEndian.PutUint64(hdr[8:16], uint64(len(col)))
		t.Absorb(hdr[:])
		for j := range col {
			b := col[j].Bytes()
			t.Absorb(b[:])
		}
	}
}
