package stealth

import (
	"bytes"
	"context"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/rs/zerolog"

	"github.com/veilprotocol/veil/crypto"
	"github.com/veilprotocol/veil/keys"
	"github.com/veilprotocol/veil/ledger"
)

// Match is a recovered incoming payment: the announcement plus the private
// key that spends from its one-time address.
type Match struct {
	ledger.Announcement
	StealthPriv *secp256k1.PrivateKey
}

// Scanner walks announcement logs and recovers payments addressed to one
// recipient. It holds no mutable state across runs; a cancelled scan
// simply returns the prefix of matches found so far with ctx's error.
type Scanner struct {
	src      ledger.AnnouncementSource
	master   *keys.MasterKeys
	opts     ledger.RangeOptions
	progress func(ledger.Progress)
	logger   zerolog.Logger
}

// ScannerOption configures a Scanner.
type ScannerOption func(*Scanner)

// WithRangeOptions overrides the chunking/backoff tuning.
func WithRangeOptions(opts ledger.RangeOptions) ScannerOption {
	return func(s *Scanner) { s.opts = opts }
}

// WithProgress registers a callback invoked after every completed chunk.
func WithProgress(fn func(ledger.Progress)) ScannerOption {
	return func(s *Scanner) { s.progress = fn }
}

// WithLogger attaches a structured logger.
func WithLogger(logger zerolog.Logger) ScannerOption {
	return func(s *Scanner) { s.logger = logger }
}

// NewScanner builds a scanner over src for the given master keys.
func NewScanner(src ledger.AnnouncementSource, master *keys.MasterKeys, options ...ScannerOption) *Scanner {
	s := &Scanner{
		src:    src,
		master: master,
		opts:   ledger.DefaultRangeOptions(),
		logger: zerolog.Nop(),
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Scan replays announcements over [fromBlock, toBlock] and returns every
// payment addressed to the scanner's keys. Zero matches is success, not an
// error. Provider range caps are narrowed and retried; the scan is
// cancellable between chunks.
func (s *Scanner) Scan(ctx context.Context, fromBlock, toBlock uint64) ([]Match, error) {
	var matches []Match

	err := ledger.ReplayRange(ctx, fromBlock, toBlock, s.opts, s.progress, func(from, to uint64) error {
		anns, err := s.src.Announcements(ctx, from, to)
		if err != nil {
			return err
		}
		for _, ann := range anns {
			match, ok := s.tryMatch(ann)
			if !ok {
				continue
			}
			s.logger.Info().
				Uint64("block", ann.BlockNumber).
				Str("address", ann.Address.Hex()).
				Str("amount", ann.Amount.Dec()).
				Msg("recovered stealth payment")
			matches = append(matches, match)
		}
		return nil
	})
	if err != nil {
		return matches, err
	}
	return matches, nil
}

// tryMatch runs the cheap hint pre-filter first, then the full EC
// comparison. The hint is an optimization, never a security boundary: a
// hint match alone is not a payment until the announced address equals the
// recomputed stealth address.
func (s *Scanner) tryMatch(ann ledger.Announcement) (Match, bool) {
	ephPub, err := crypto.ParsePubKey(ann.EphemeralPub)
	if err != nil {
		// Malformed announcements are third-party noise, not our error.
		return Match{}, false
	}

	shared := crypto.SharedPoint(s.master.ViewPriv, ephPub)
	sharedBytes := shared.SerializeCompressed()

	// Announcements without a usable hint fall through to the full check.
	if n := len(ann.ViewHint); n > 0 && n <= MaxViewHintSize {
		if !bytes.Equal(viewHint(sharedBytes, n), ann.ViewHint) {
			return Match{}, false
		}
	}

	tweak, err := tweakScalar(sharedBytes, ann.Index)
	if err != nil {
		return Match{}, false
	}
	stealthPub := crypto.AddPubKeys(s.master.SpendPub, crypto.ScalarBaseMult(tweak))
	if crypto.EthereumAddress(stealthPub) != ann.Address {
		// Hint false positive; expected at the configured hint rate.
		return Match{}, false
	}

	priv := crypto.PrivKeyFromScalar(crypto.AddScalars(s.master.SpendPriv, tweak))
	return Match{Announcement: ann, StealthPriv: priv}, true
}
