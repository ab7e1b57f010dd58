package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RangeOptions tunes the chunked log replay shared by the payment scanner
// and the Merkle proof builder.
type RangeOptions struct {
	// ChunkSize is the initial block window per log query.
	ChunkSize uint64
	// MinChunkSize is the floor the window may be narrowed to before the
	// provider cap is treated as a hard failure.
	MinChunkSize uint64
	// RetryBackoff is the base delay between retries of a transient
	// failure; doubled per attempt.
	RetryBackoff time.Duration
	// MaxRetries bounds retries of transient failures per chunk,
	// range-narrowing excluded.
	MaxRetries int
}

// DefaultRangeOptions matches the caps of common public RPC providers.
func DefaultRangeOptions() RangeOptions {
	return RangeOptions{
		ChunkSize:    5_000,
		MinChunkSize: 64,
		RetryBackoff: 500 * time.Millisecond,
		MaxRetries:   4,
	}
}

func (o RangeOptions) withDefaults() RangeOptions {
	def := DefaultRangeOptions()
	if o.ChunkSize == 0 {
		o.ChunkSize = def.ChunkSize
	}
	if o.MinChunkSize == 0 {
		o.MinChunkSize = def.MinChunkSize
	}
	if o.RetryBackoff == 0 {
		o.RetryBackoff = def.RetryBackoff
	}
	if o.MaxRetries == 0 {
		o.MaxRetries = def.MaxRetries
	}
	return o
}

// Progress reports chunked replay advancement. TotalBlocks is fixed for
// the whole run; BlocksScanned is monotonic.
type Progress struct {
	BlocksScanned uint64
	TotalBlocks   uint64
}

// ReplayRange walks [fromBlock, toBlock] in chunks, invoking fetch for each
// sub-range. On ErrRangeLimited the window is halved and the chunk retried;
// other errors are retried with bounded exponential backoff. The walk is
// cancellable between chunks and holds no state needing rollback: partial
// results handed to fetch are simply a prefix of the final set.
func ReplayRange(
	ctx context.Context,
	fromBlock, toBlock uint64,
	opts RangeOptions,
	onProgress func(Progress),
	fetch func(from, to uint64) error,
) error {
	if toBlock < fromBlock {
		return fmt.Errorf("invalid block range: from=%d to=%d", fromBlock, toBlock)
	}
	opts = opts.withDefaults()

	total := toBlock - fromBlock + 1
	chunk := opts.ChunkSize
	cursor := fromBlock

	for cursor <= toBlock {
		if err := ctx.Err(); err != nil {
			return err
		}

		end := cursor + chunk - 1
		if end > toBlock {
			end = toBlock
		}

		err := fetchWithRetry(ctx, opts, cursor, end, fetch)
		if errors.Is(err, ErrRangeLimited) {
			if chunk <= opts.MinChunkSize {
				return fmt.Errorf("provider range cap below minimum window %d: %w", opts.MinChunkSize, err)
			}
			chunk /= 2
			if chunk < opts.MinChunkSize {
				chunk = opts.MinChunkSize
			}
			continue
		}
		if err != nil {
			return err
		}

		cursor = end + 1
		if onProgress != nil {
			onProgress(Progress{BlocksScanned: cursor - fromBlock, TotalBlocks: total})
		}
	}
	return nil
}

func fetchWithRetry(ctx context.Context, opts RangeOptions, from, to uint64, fetch func(from, to uint64) error) error {
	backoff := opts.RetryBackoff
	var err error
	for attempt := 0; attempt <= opts.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		err = fetch(from, to)
		if err == nil || errors.Is(err, ErrRangeLimited) || errors.Is(err, context.Canceled) {
			return err
		}
	}
	return fmt.Errorf("log query [%d,%d] failed after %d retries: %w", from, to, opts.MaxRetries, err)
}
