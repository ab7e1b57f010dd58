package merkle

import (
	"bytes"
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/veilprotocol/veil/ledger"
)

// Builder reconstructs the deposit accumulator from chain logs and
// produces inclusion proofs the on-chain verifier will accept.
type Builder struct {
	deposits ledger.DepositSource
	roots    ledger.RootChecker
	depth    int
	opts     ledger.RangeOptions
	progress func(ledger.Progress)
	logger   zerolog.Logger
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithDepth overrides the accumulator depth.
func WithDepth(depth int) BuilderOption {
	return func(b *Builder) { b.depth = depth }
}

// WithRangeOptions overrides the chunking/backoff tuning.
func WithRangeOptions(opts ledger.RangeOptions) BuilderOption {
	return func(b *Builder) { b.opts = opts }
}

// WithProgress registers a replay progress callback.
func WithProgress(fn func(ledger.Progress)) BuilderOption {
	return func(b *Builder) { b.progress = fn }
}

// WithLogger attaches a structured logger.
func WithLogger(logger zerolog.Logger) BuilderOption {
	return func(b *Builder) { b.logger = logger }
}

// NewBuilder builds proofs from deposits, checking reconstructed roots
// against the pool's recognized-root window via roots.
func NewBuilder(deposits ledger.DepositSource, roots ledger.RootChecker, options ...BuilderOption) *Builder {
	b := &Builder{
		deposits: deposits,
		roots:    roots,
		depth:    DefaultDepth,
		opts:     ledger.DefaultRangeOptions(),
		logger:   zerolog.Nop(),
	}
	for _, opt := range options {
		opt(b)
	}
	return b
}

// Build replays deposit events over [fromBlock, toBlock], locates the leaf
// equal to commitment and returns its inclusion proof together with the
// leaf index.
//
// The returned root is checked against the verifier's recognized window:
// an unrecognized root surfaces as ledger.ErrStaleRoot, distinguishable
// from an invalid proof, so callers can retry with an adjusted window. A
// leaf set that does not contain the commitment at all means the replay
// window misses the deposit; that is also a window problem, not a proof
// problem.
func (b *Builder) Build(ctx context.Context, commitment []byte, fromBlock, toBlock uint64) (*Proof, uint32, error) {
	tree, err := NewTree(b.depth)
	if err != nil {
		return nil, 0, err
	}

	leafIndex := uint32(0)
	found := false

	err = ledger.ReplayRange(ctx, fromBlock, toBlock, b.opts, b.progress, func(from, to uint64) error {
		deps, err := b.deposits.Deposits(ctx, from, to)
		if err != nil {
			return err
		}
		for _, dep := range deps {
			idx, err := tree.Insert(dep.Commitment)
			if err != nil {
				return err
			}
			if idx != dep.LeafIndex {
				// The replay window started after the pool's first
				// deposit, so local indices drifted off the chain's.
				return fmt.Errorf("%w: replayed index %d, chain index %d (tx %s)",
					ledger.ErrStaleRoot, idx, dep.LeafIndex, dep.TxHash.Hex())
			}
			if bytes.Equal(dep.Commitment, commitment) {
				leafIndex = idx
				found = true
			}
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	if !found {
		return nil, 0, fmt.Errorf("%w: commitment %x not found in replayed deposits", ledger.ErrStaleRoot, commitment)
	}

	proof, err := tree.Path(leafIndex)
	if err != nil {
		return nil, 0, err
	}

	known, err := b.roots.IsKnownRoot(ctx, proof.Root)
	if err != nil {
		return nil, 0, err
	}
	if !known {
		return nil, 0, fmt.Errorf("%w: root %x", ledger.ErrStaleRoot, proof.Root)
	}

	b.logger.Debug().
		Uint32("leaf_index", leafIndex).
		Uint32("leaves", tree.Size()).
		Hex("root", proof.Root).
		Msg("reconstructed deposit accumulator")

	return proof, leafIndex, nil
}
