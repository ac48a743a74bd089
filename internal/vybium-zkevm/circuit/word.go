package circuit

import (
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/holiman/uint256"
)

// bytesRLC compresses a big-endian byte string into one field element as a
// random linear combination: the least significant byte carries coefficient
// r^0, matching the word bank's big-endian limb order.
func bytesRLC(be []byte, r fr.Element) fr.Element {
	var acc fr.Element
	for i := 0; i < len(be); i++ {
		// Horner over the bytes, most significant first.
		acc = feAdd(feMul(acc, r), fe(uint64(be[i])))
	}
	return acc
}

// wordRLC compresses word slot w of a row into one field element under the
// word challenge
func wordRLC(row []fr.Element, w int, r fr.Element) fr.Element {
	var acc fr.Element
	for b := 0; b < WordBytes; b++ {
		acc = feAdd(feMul(acc, r), row[WordByteCol(w, b)])
	}
	return acc
}

// wordBytes decomposes a 256-bit word into its 32 big-endian byte limbs as
// field elements
func wordBytes(w uint256.Int) [WordBytes]fr.Element {
	be := w.Bytes32()
	var out [WordBytes]fr.Element
	for i := 0; i < WordBytes; i++ {
		out[i] = fe(uint64(be[i]))
	}
	return out
}
