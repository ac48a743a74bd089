package circuit

import (
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/holiman/uint256"
)

// TestWordCompression tests the identity the rw tuple matching relies on:
// a word assigned limbwise into a row compresses to the same element as its
// big-endian byte string
func TestWordCompression(t *testing.T) {
	var r fr.Element
	r.SetUint64(0x1234567)

	words := []uint256.Int{
		*uint256.NewInt(0),
		*uint256.NewInt(42),
		*uint256.NewInt(1).Lsh(uint256.NewInt(1), 255),
		*new(uint256.Int).SetAllOne(),
	}
	for _, w := range words {
		asg := NewAssignment(1)
		setWord(asg, 0, 0, w)
		row := asg.Row(0)

		be := w.Bytes32()
		got := wordRLC(row, 0, r)
		want := bytesRLC(be[:], r)
		if !got.Equal(&want) {
			t.Errorf("word %s: slot RLC and byte RLC disagree", w.Hex())
		}
	}
}

// TestBytesRLCHorner tests the Horner ordering: the least significant byte
// carries coefficient r^0
func TestBytesRLCHorner(t *testing.T) {
	var r fr.Element
	r.SetUint64(256)

	// With r = 256 the RLC of a byte string is its integer value.
	got := bytesRLC([]byte{0x01, 0x02, 0x03}, r)
	want := fe(0x010203)
	if !got.Equal(&want) {
		t.Errorf("bytesRLC base-256 = %s, want 0x010203", got.String())
	}
}
