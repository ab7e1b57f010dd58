// Package keys turns one wallet signature into the recipient's long-lived
// spend and view keypairs. Derivation is deterministic: signing the same
// fixed message always recovers the same key material, with no randomness
// and no network access.
package keys

import (
	"errors"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/veilprotocol/veil/crypto"
)

// SignMessage is the fixed, versioned message the user's wallet signs to
// derive key material. It must never change within a version: changing it
// orphans every stealth payment derived from the old keys.
const SignMessage = "veil.keys.v1: derive my stealth keys"

// Domain-separation suffixes appended to the signature hash.
const (
	domainSpend byte = 0x01
	domainView  byte = 0x02
)

// maxDeriveAttempts bounds the zero-scalar re-derivation loop. A derived
// scalar of zero has negligible probability; hitting the bound means the
// hash function is broken.
const maxDeriveAttempts = 8

var ErrDeriveFailed = errors.New("key derivation produced no valid scalar")

// MasterKeys holds the two long-lived keypairs. The spend key authorizes
// spending from stealth addresses; the view key only detects payments.
// Never transmitted, always re-derivable from the wallet signature.
type MasterKeys struct {
	SpendPriv *secp256k1.ModNScalar
	SpendPub  *secp256k1.PublicKey
	ViewPriv  *secp256k1.ModNScalar
	ViewPub   *secp256k1.PublicKey
}

// Derive computes the master key material from the hash of the user's
// signature over SignMessage.
func Derive(signatureHash [32]byte) (*MasterKeys, error) {
	spendPriv, err := deriveScalar(signatureHash, domainSpend)
	if err != nil {
		return nil, err
	}
	viewPriv, err := deriveScalar(signatureHash, domainView)
	if err != nil {
		return nil, err
	}

	return &MasterKeys{
		SpendPriv: spendPriv,
		SpendPub:  crypto.ScalarBaseMult(spendPriv),
		ViewPriv:  viewPriv,
		ViewPub:   crypto.ScalarBaseMult(viewPriv),
	}, nil
}

// deriveScalar hashes the signature hash with a domain suffix and reduces
// the digest mod the curve order. A zero result is rejected and re-derived
// with a bump byte rather than silently producing an invalid key.
func deriveScalar(signatureHash [32]byte, domain byte) (*secp256k1.ModNScalar, error) {
	input := append(signatureHash[:], domain)
	for bump := 0; bump < maxDeriveAttempts; bump++ {
		s, err := crypto.ScalarFromBytes(crypto.Keccak256(input))
		if err == nil {
			return s, nil
		}
		if !errors.Is(err, crypto.ErrZeroScalar) {
			return nil, err
		}
		input = append(input, byte(bump))
	}
	return nil, ErrDeriveFailed
}
