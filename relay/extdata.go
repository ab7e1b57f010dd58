// Package relay packages a withdrawal proof and its bridging parameters
// into the single atomic pool call that consumes the note and triggers the
// cross-chain transfer to the stealth recipient.
package relay

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/veilprotocol/veil/crypto"
)

// ExtData carries every non-secret withdrawal parameter. Its hash is a
// public input of the withdrawal proof, so none of these fields can be
// substituted after the proof is generated.
type ExtData struct {
	DestinationChainID uint64
	Recipient          common.Address // stealth address on the destination chain
	EphemeralPub       []byte         // compressed, published for the recipient's records
	ViewHint           []byte
	Index              uint32
	Fee                *uint256.Int
	BridgeAddress      common.Address
	Token              common.Address
}

// Validate applies the input-validation tier of the error taxonomy:
// reported immediately, never retried.
func (e *ExtData) Validate(denomination *uint256.Int) error {
	if e.DestinationChainID == 0 {
		return fmt.Errorf("destination chain id must be non-zero")
	}
	if e.Recipient == (common.Address{}) {
		return fmt.Errorf("stealth recipient address must be non-zero")
	}
	if len(e.EphemeralPub) != crypto.CompressedPubKeySize {
		return fmt.Errorf("ephemeral pubkey must be %d bytes, got %d", crypto.CompressedPubKeySize, len(e.EphemeralPub))
	}
	if _, err := crypto.ParsePubKey(e.EphemeralPub); err != nil {
		return err
	}
	if e.Fee == nil {
		return fmt.Errorf("fee must be set")
	}
	if e.Fee.Cmp(denomination) > 0 {
		return fmt.Errorf("fee %s exceeds denomination %s", e.Fee.Dec(), denomination.Dec())
	}
	return nil
}

// Hash computes Keccak256 over the fixed-width packed encoding of every
// field, reduced into the BN254 scalar field so it fits the circuit's
// public input.
func (e *ExtData) Hash() []byte {
	var chainID [8]byte
	binary.BigEndian.PutUint64(chainID[:], e.DestinationChainID)
	var index [4]byte
	binary.BigEndian.PutUint32(index[:], e.Index)
	fee := e.Fee.Bytes32()

	hint := make([]byte, 1+len(e.ViewHint))
	hint[0] = byte(len(e.ViewHint))
	copy(hint[1:], e.ViewHint)

	digest := crypto.Keccak256(
		chainID[:],
		e.Recipient.Bytes(),
		e.EphemeralPub,
		hint,
		index[:],
		fee[:],
		e.BridgeAddress.Bytes(),
		e.Token.Bytes(),
	)

	reduced := new(big.Int).Mod(new(big.Int).SetBytes(digest), fr.Modulus())
	out := make([]byte, 32)
	reduced.FillBytes(out)
	return out
}
