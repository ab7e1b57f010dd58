// Package ledger defines the data and error types crossing the chain
// boundary: announcement and deposit events, the source interfaces the
// scanner and proof builder consume, and the shared chunked log-range
// replay with provider range-cap narrowing.
package ledger

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Announcement is one stealth payment announcement event.
type Announcement struct {
	EphemeralPub []byte // compressed secp256k1 point, 33 bytes
	ViewHint     []byte
	Address      common.Address
	Index        uint32
	Amount       *uint256.Int
	Symbol       string
	BlockNumber  uint64
	TxHash       common.Hash
}

// Deposit is one pool deposit event: a commitment inserted as a leaf.
type Deposit struct {
	Commitment  []byte
	LeafIndex   uint32
	BlockNumber uint64
	TxHash      common.Hash
}

// PoolInfo mirrors the pool contract's read accessors.
type PoolInfo struct {
	Token         common.Address
	Denomination  *uint256.Int
	NextIndex     uint32
	BridgeAddress common.Address
}

// AnnouncementSource yields payment announcements for a block range.
// Implementations surface provider range caps as ErrRangeLimited.
type AnnouncementSource interface {
	Announcements(ctx context.Context, fromBlock, toBlock uint64) ([]Announcement, error)
}

// DepositSource yields pool deposit events for a block range.
type DepositSource interface {
	Deposits(ctx context.Context, fromBlock, toBlock uint64) ([]Deposit, error)
}

// RootChecker reports whether the pool contract currently recognizes a
// Merkle root. Pools accept a small history window of recent roots, so a
// freshly reconstructed root can already have rotated out.
type RootChecker interface {
	IsKnownRoot(ctx context.Context, root []byte) (bool, error)
}
