// Package note manages the shielded pool's bearer notes. A note is the
// pair (nullifier, secret); whoever holds the pair can spend the deposit.
// Loss of a note is permanent fund loss, mirroring bearer cash.
package note

import (
	"bytes"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/veilprotocol/veil/ledger"
	"github.com/veilprotocol/veil/utils"
)

// Note is one fixed-denomination pool deposit held client-side. Nullifier
// and Secret are BN254 field elements; neither is ever submitted in full
// until withdrawal reveals the nullifier hash.
type Note struct {
	Nullifier     []byte
	Secret        []byte
	Denomination  *uint256.Int
	LeafIndex     uint32
	DepositTxHash common.Hash
	CreatedAt     time.Time
	Spent         bool
}

// New creates a fresh note for a deposit of the given denomination,
// drawing nullifier and secret from a cryptographically secure source.
func New(denomination *uint256.Int) (*Note, error) {
	if denomination == nil || denomination.IsZero() {
		return nil, fmt.Errorf("denomination must be positive")
	}
	return &Note{
		Nullifier:    utils.RandFieldElement(),
		Secret:       utils.RandFieldElement(),
		Denomination: denomination.Clone(),
		CreatedAt:    time.Now().UTC(),
	}, nil
}

// Commitment returns MiMC(nullifier, secret), the leaf the deposit
// transaction inserts into the accumulator.
func (n *Note) Commitment() []byte {
	return utils.MiMCHash(n.Nullifier, n.Secret)
}

// NullifierHash returns MiMC(nullifier), revealed at withdrawal to mark
// the note spent without revealing which commitment it was.
func (n *Note) NullifierHash() []byte {
	return utils.MiMCHash(n.Nullifier)
}

// RecordDeposit attaches the on-chain position once the deposit confirms.
// The chain-observed leaf must equal the note's own commitment; a mismatch
// is a construction bug, not a runtime condition to recover from.
func (n *Note) RecordDeposit(observedLeaf []byte, leafIndex uint32, txHash common.Hash) error {
	if !bytes.Equal(observedLeaf, n.Commitment()) {
		return fmt.Errorf("%w: leaf %x, commitment %x", ledger.ErrLeafMismatch, observedLeaf, n.Commitment())
	}
	n.LeafIndex = leafIndex
	n.DepositTxHash = txHash
	return nil
}

// Deposited reports whether the note's on-chain position is recorded.
func (n *Note) Deposited() bool {
	return n.DepositTxHash != (common.Hash{})
}
