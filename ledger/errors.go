package ledger

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Transient infrastructure errors. Recovered locally by narrowing ranges
// or retrying with backoff; never surfaced until retries are exhausted.
var (
	// ErrRangeLimited marks a log query rejected because the requested
	// block window exceeds the provider's cap. Providers phrase this
	// differently, so it is a category, not a string match.
	ErrRangeLimited = errors.New("log query block range exceeds provider limit")

	// ErrInsufficientGas marks a stealth wallet that cannot cover the gas
	// of its own spend; callers top it up from the funded wallet and retry.
	ErrInsufficientGas = errors.New("insufficient gas balance")
)

// Protocol-integrity errors. Fatal for the specific attempt; retrying
// cannot succeed and may mask a double-spend race or a construction bug.
var (
	ErrNullifierSpent = errors.New("nullifier already spent")
	ErrProofRejected  = errors.New("proof verification rejected")
	ErrLeafMismatch   = errors.New("commitment does not match recorded leaf")

	// ErrStaleRoot is distinct from ErrProofRejected: the proof may be
	// well-formed but built against a root the contract no longer
	// recognizes. The caller retries with an adjusted block window.
	ErrStaleRoot = errors.New("merkle root not recognized by pool")
)

// TxError carries the on-chain transaction hash through failure paths so
// failed submissions stay auditable.
type TxError struct {
	TxHash common.Hash
	Err    error
}

func (e *TxError) Error() string {
	return fmt.Sprintf("tx %s: %v", e.TxHash.Hex(), e.Err)
}

func (e *TxError) Unwrap() error { return e.Err }
