package utils

import (
	crand "crypto/rand"
	"hash"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	_ "github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
	gnark_hash "github.com/consensys/gnark-crypto/hash"
)

// DefaultHasher returns the field hasher shared by note commitments, the
// deposit accumulator and the withdrawal circuit. The host-side hash must
// stay in lockstep with the in-circuit MiMC gadget.
func DefaultHasher() hash.Hash {
	return MiMCHasher()
}

func DefaultHashSum(ins ...[]byte) []byte {
	return MiMCHash(ins...)
}

func MiMCHasher() hash.Hash {
	return gnark_hash.MIMC_BN254.New()
}

// MiMCHash hashes the inputs as a sequence of BN254 field elements.
// Inputs longer than one block are split; every full block is reduced to
// canonical form before being absorbed, so values that exceed the modulus
// still hash consistently on both sides of the circuit boundary.
func MiMCHash(ins ...[]byte) []byte {
	hasher := MiMCHasher()

	blockSize := hasher.Size()

	hasher.Reset()
	for _, in := range ins {
		for i := 0; i < len(in); i += blockSize {
			end := i + blockSize
			if end > len(in) {
				end = len(in)
			}
			chunk := in[i:end]

			if len(chunk) == blockSize {
				var elem fr.Element
				elem.SetBytes(chunk)
				chunk = elem.Marshal()
			}
			if _, err := hasher.Write(chunk); err != nil {
				panic(err)
			}
		}
	}
	return hasher.Sum(nil)
}

// RandFieldElement draws a uniformly random BN254 scalar field element and
// returns its canonical 32-byte big-endian encoding.
func RandFieldElement() []byte {
	var elem fr.Element
	if _, err := elem.SetRandom(); err != nil {
		panic(err)
	}
	bz := elem.Bytes()
	return bz[:]
}

func RandBytes(n int) []byte {
	bz := make([]byte, n)
	if _, err := crand.Read(bz); err != nil {
		panic(err)
	}
	return bz
}
