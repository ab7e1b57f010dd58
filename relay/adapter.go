package relay

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"

	"github.com/veilprotocol/veil/ledger"
	"github.com/veilprotocol/veil/zkproof"
)

// Backend is the ledger-call boundary the adapter drives. Implementations
// map contract reverts onto the ledger error sentinels and always return
// the transaction hash they obtained, even on failure.
type Backend interface {
	// SubmitWithdraw sends the single withdrawAndBridge transaction and
	// waits for it to be mined.
	SubmitWithdraw(ctx context.Context, proof *zkproof.Proof, ext *ExtData) (*ethtypes.Receipt, error)
	// IsSpent reports whether the pool has already recorded the
	// nullifier hash spent.
	IsSpent(ctx context.Context, nullifierHash []byte) (bool, error)
}

// Adapter submits withdrawal proofs. The pool contract verifies the proof
// and marks the nullifier spent atomically with the bridge call, so a
// failed bridge leg cannot strand a consumed note; the adapter's own
// obligation is only to never race itself on one note.
type Adapter struct {
	backend Backend
	logger  zerolog.Logger

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// ErrWithdrawInFlight is returned when a withdrawal for the same note is
// already being submitted by this client.
var ErrWithdrawInFlight = errors.New("withdrawal already in flight for this note")

func NewAdapter(backend Backend, logger zerolog.Logger) *Adapter {
	return &Adapter{
		backend:  backend,
		logger:   logger,
		inFlight: make(map[string]struct{}),
	}
}

// RelayWithdraw validates ext against the pool denomination, confirms the
// proof was bound to exactly these parameters, and submits the atomic
// withdraw-and-bridge call.
//
// The receipt's transaction hash is preserved on every failure path. A
// spent nullifier or rejected proof is fatal for this attempt and must not
// be retried; a stale root calls for a freshly built proof.
func (a *Adapter) RelayWithdraw(ctx context.Context, proof *zkproof.Proof, ext *ExtData, denomination *uint256.Int) (*ethtypes.Receipt, error) {
	if err := ext.Validate(denomination); err != nil {
		return nil, err
	}
	if !extDataBound(proof, ext) {
		return nil, fmt.Errorf("proof was generated for different external data")
	}

	key := hex.EncodeToString(proof.NullifierHash)
	a.mu.Lock()
	if _, busy := a.inFlight[key]; busy {
		a.mu.Unlock()
		return nil, ErrWithdrawInFlight
	}
	a.inFlight[key] = struct{}{}
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		delete(a.inFlight, key)
		a.mu.Unlock()
	}()

	// Losing a gas race on an already-spent nullifier is guaranteed;
	// check before paying for the attempt.
	spent, err := a.backend.IsSpent(ctx, proof.NullifierHash)
	if err != nil {
		return nil, err
	}
	if spent {
		return nil, fmt.Errorf("%w: nullifier hash %x", ledger.ErrNullifierSpent, proof.NullifierHash)
	}

	receipt, err := a.backend.SubmitWithdraw(ctx, proof, ext)
	if err != nil {
		a.logger.Error().Err(err).Hex("nullifier_hash", proof.NullifierHash).Msg("withdrawal submission failed")
		return receipt, err
	}

	a.logger.Info().
		Str("tx", receipt.TxHash.Hex()).
		Uint64("destination_chain", ext.DestinationChainID).
		Str("recipient", ext.Recipient.Hex()).
		Str("fee", ext.Fee.Dec()).
		Msg("withdrawal submitted, bridge delivery pending")

	// Delivery on the destination chain is asynchronous and outside this
	// client's control; the receipt only proves the source-chain leg.
	return receipt, nil
}

func extDataBound(proof *zkproof.Proof, ext *ExtData) bool {
	return bytes.Equal(ext.Hash(), proof.ExtDataHash)
}
