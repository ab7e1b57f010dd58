// Package crypto centralizes the secp256k1 curve arithmetic used by the
// stealth-address protocol behind fixed-width types, together with the
// Keccak helpers and the note-backup AEAD.
package crypto

import (
	"errors"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

const (
	// ScalarSize is the byte length of a secp256k1 scalar.
	ScalarSize = 32
	// CompressedPubKeySize is the byte length of a compressed public key.
	CompressedPubKeySize = 33
)

var (
	ErrZeroScalar    = errors.New("scalar is zero mod curve order")
	ErrInvalidPubKey = errors.New("invalid secp256k1 public key")
)

// ScalarFromBytes reduces a 32-byte value mod the curve order n and rejects
// the zero scalar. Reduction is silent: key-derivation hashes routinely
// exceed n and must map onto valid scalars.
func ScalarFromBytes(bz []byte) (*secp256k1.ModNScalar, error) {
	if len(bz) != ScalarSize {
		return nil, fmt.Errorf("scalar must be %d bytes, got %d", ScalarSize, len(bz))
	}
	s := new(secp256k1.ModNScalar)
	s.SetByteSlice(bz)
	if s.IsZero() {
		return nil, ErrZeroScalar
	}
	return s, nil
}

// ScalarBytes returns the canonical 32-byte big-endian encoding of s.
func ScalarBytes(s *secp256k1.ModNScalar) []byte {
	bz := s.Bytes()
	return bz[:]
}

// PrivKeyFromScalar builds a private key from a non-zero scalar.
func PrivKeyFromScalar(s *secp256k1.ModNScalar) *secp256k1.PrivateKey {
	return secp256k1.NewPrivateKey(s)
}

// GeneratePrivKey draws a fresh random private key.
func GeneratePrivKey() (*secp256k1.PrivateKey, error) {
	return secp256k1.GeneratePrivateKey()
}

// ParsePubKey decodes a compressed or uncompressed public key.
func ParsePubKey(bz []byte) (*secp256k1.PublicKey, error) {
	pub, err := secp256k1.ParsePubKey(bz)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPubKey, err)
	}
	return pub, nil
}

// ScalarBaseMult computes k*G.
func ScalarBaseMult(k *secp256k1.ModNScalar) *secp256k1.PublicKey {
	var result secp256k1.JacobianPoint
	secp256k1.ScalarBaseMultNonConst(k, &result)
	result.ToAffine()
	return secp256k1.NewPublicKey(&result.X, &result.Y)
}

// SharedPoint computes the ECDH point k*P.
func SharedPoint(k *secp256k1.ModNScalar, p *secp256k1.PublicKey) *secp256k1.PublicKey {
	var point, result secp256k1.JacobianPoint
	p.AsJacobian(&point)
	secp256k1.ScalarMultNonConst(k, &point, &result)
	result.ToAffine()
	return secp256k1.NewPublicKey(&result.X, &result.Y)
}

// AddPubKeys computes the curve point a + b.
func AddPubKeys(a, b *secp256k1.PublicKey) *secp256k1.PublicKey {
	var ja, jb, sum secp256k1.JacobianPoint
	a.AsJacobian(&ja)
	b.AsJacobian(&jb)
	secp256k1.AddNonConst(&ja, &jb, &sum)
	sum.ToAffine()
	return secp256k1.NewPublicKey(&sum.X, &sum.Y)
}

// AddScalars computes a + b mod n.
func AddScalars(a, b *secp256k1.ModNScalar) *secp256k1.ModNScalar {
	sum := new(secp256k1.ModNScalar).Set(a)
	sum.Add(b)
	return sum
}

// EthereumAddress derives the EVM address of a public key: the last 20
// bytes of Keccak256 over the uncompressed point without its prefix byte.
func EthereumAddress(pub *secp256k1.PublicKey) common.Address {
	uncompressed := pub.SerializeUncompressed()
	return common.BytesToAddress(ethcrypto.Keccak256(uncompressed[1:])[12:])
}

// Keccak256 re-exports the ledger's hash so callers outside this package
// never touch go-ethereum's crypto directly.
func Keccak256(data ...[]byte) []byte {
	return ethcrypto.Keccak256(data...)
}
