package stealth

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/veilprotocol/veil/crypto"
	"github.com/veilprotocol/veil/ledger"
)

// fakeAnnouncementSource serves a fixed announcement set, keyed by block.
type fakeAnnouncementSource struct {
	anns  []ledger.Announcement
	calls int
}

func (f *fakeAnnouncementSource) Announcements(_ context.Context, from, to uint64) ([]ledger.Announcement, error) {
	f.calls++
	var out []ledger.Announcement
	for _, a := range f.anns {
		if a.BlockNumber >= from && a.BlockNumber <= to {
			out = append(out, a)
		}
	}
	return out, nil
}

func announcementFor(t *testing.T, meta *MetaAddress, index uint32, block uint64) ledger.Announcement {
	t.Helper()
	eph, err := NewEphemeralKey()
	require.NoError(t, err)
	addr, err := Generate(meta, eph, index, DefaultViewHintSize)
	require.NoError(t, err)
	return ledger.Announcement{
		EphemeralPub: addr.EphemeralPub,
		ViewHint:     addr.ViewHint,
		Address:      addr.Address,
		Index:        index,
		Amount:       uint256.NewInt(100),
		Symbol:       "VUSD",
		BlockNumber:  block,
		TxHash:       common.HexToHash("0x01"),
	}
}

func Test_ScanRecoversOwnPayments(t *testing.T) {
	recipient := testMasterKeys(t, 10)
	stranger := testMasterKeys(t, 11)

	src := &fakeAnnouncementSource{anns: []ledger.Announcement{
		announcementFor(t, MetaAddressOf(recipient), 0, 5),
		announcementFor(t, MetaAddressOf(stranger), 0, 6),
		announcementFor(t, MetaAddressOf(recipient), 1, 7),
	}}

	scanner := NewScanner(src, recipient)
	matches, err := scanner.Scan(context.Background(), 0, 100)
	require.NoError(t, err)
	require.Equal(t, 2, len(matches))

	for _, m := range matches {
		require.Equal(t, m.Address, crypto.EthereumAddress(m.StealthPriv.PubKey()))
	}
}

func Test_ScanEmptyRange(t *testing.T) {
	recipient := testMasterKeys(t, 12)
	src := &fakeAnnouncementSource{}

	matches, err := NewScanner(src, recipient).Scan(context.Background(), 0, 100)
	require.NoError(t, err)
	require.Empty(t, matches)
}

func Test_ScanSkipsMalformed(t *testing.T) {
	recipient := testMasterKeys(t, 13)

	good := announcementFor(t, MetaAddressOf(recipient), 0, 5)
	src := &fakeAnnouncementSource{anns: []ledger.Announcement{
		{EphemeralPub: []byte{0x02, 0xde, 0xad}, BlockNumber: 3},
		good,
	}}

	matches, err := NewScanner(src, recipient).Scan(context.Background(), 0, 100)
	require.NoError(t, err)
	require.Equal(t, 1, len(matches))
	require.Equal(t, good.Address, matches[0].Address)
}

func Test_ScanNoHintStillMatches(t *testing.T) {
	recipient := testMasterKeys(t, 14)

	ann := announcementFor(t, MetaAddressOf(recipient), 0, 5)
	ann.ViewHint = nil
	src := &fakeAnnouncementSource{anns: []ledger.Announcement{ann}}

	matches, err := NewScanner(src, recipient).Scan(context.Background(), 0, 100)
	require.NoError(t, err)
	require.Equal(t, 1, len(matches))
}

func Test_ScanChunksAndProgress(t *testing.T) {
	recipient := testMasterKeys(t, 15)
	src := &fakeAnnouncementSource{anns: []ledger.Announcement{
		announcementFor(t, MetaAddressOf(recipient), 0, 950),
	}}

	opts := ledger.DefaultRangeOptions()
	opts.ChunkSize = 100

	var last ledger.Progress
	scanner := NewScanner(src, recipient,
		WithRangeOptions(opts),
		WithProgress(func(p ledger.Progress) { last = p }),
	)

	matches, err := scanner.Scan(context.Background(), 0, 999)
	require.NoError(t, err)
	require.Equal(t, 1, len(matches))
	require.Equal(t, 10, src.calls)
	require.Equal(t, uint64(1000), last.BlocksScanned)
	require.Equal(t, uint64(1000), last.TotalBlocks)
}

func Test_ScanCancelled(t *testing.T) {
	recipient := testMasterKeys(t, 16)
	src := &fakeAnnouncementSource{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewScanner(src, recipient).Scan(ctx, 0, 100)
	require.ErrorIs(t, err, context.Canceled)
}
