package note

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *LevelStore {
	t.Helper()
	store, err := NewLevelStore("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func Test_StoreRoundTrip(t *testing.T) {
	store := openTestStore(t)

	n, err := New(uint256.NewInt(1_000_000))
	require.NoError(t, err)
	require.NoError(t, n.RecordDeposit(n.Commitment(), 3, common.HexToHash("0x22")))
	require.NoError(t, store.Put(n))

	got, ok, err := store.Get(n.Commitment())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, n.Nullifier, got.Nullifier)
	require.Equal(t, n.Secret, got.Secret)
	require.Equal(t, n.Denomination, got.Denomination)
	require.Equal(t, n.LeafIndex, got.LeafIndex)
	require.Equal(t, n.DepositTxHash, got.DepositTxHash)
	require.Equal(t, n.CreatedAt.Unix(), got.CreatedAt.Unix())
	require.False(t, got.Spent)
}

func Test_StoreGetMissing(t *testing.T) {
	store := openTestStore(t)

	_, ok, err := store.Get(make([]byte, 32))
	require.NoError(t, err)
	require.False(t, ok)
}

func Test_StoreList(t *testing.T) {
	store := openTestStore(t)

	for i := 0; i < 3; i++ {
		n, err := New(uint256.NewInt(100))
		require.NoError(t, err)
		require.NoError(t, store.Put(n))
	}

	notes, err := store.List()
	require.NoError(t, err)
	require.Equal(t, 3, len(notes))
}

func Test_StoreMarkSpent(t *testing.T) {
	store := openTestStore(t)

	n, err := New(uint256.NewInt(100))
	require.NoError(t, err)
	require.NoError(t, store.Put(n))

	require.NoError(t, store.MarkSpent(n.Commitment()))
	got, ok, err := store.Get(n.Commitment())
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, got.Spent)

	require.Error(t, store.MarkSpent(make([]byte, 32)))
}

func Test_EncryptedBackupRoundTrip(t *testing.T) {
	src := openTestStore(t)

	var originals []*Note
	for i := 0; i < 4; i++ {
		n, err := New(uint256.NewInt(1_000_000))
		require.NoError(t, err)
		require.NoError(t, src.Put(n))
		originals = append(originals, n)
	}

	var key [32]byte
	key[0] = 0x42

	backup, err := ExportEncrypted(src, key)
	require.NoError(t, err)

	dst := openTestStore(t)
	count, err := ImportEncrypted(dst, key, backup)
	require.NoError(t, err)
	require.Equal(t, 4, count)

	for _, n := range originals {
		got, ok, err := dst.Get(n.Commitment())
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, n.Nullifier, got.Nullifier)
		require.Equal(t, n.Secret, got.Secret)
	}
}

func Test_EncryptedBackupWrongKey(t *testing.T) {
	src := openTestStore(t)
	n, err := New(uint256.NewInt(100))
	require.NoError(t, err)
	require.NoError(t, src.Put(n))

	var key, wrong [32]byte
	key[0] = 0x01
	wrong[0] = 0x02

	backup, err := ExportEncrypted(src, key)
	require.NoError(t, err)

	_, err = ImportEncrypted(openTestStore(t), wrong, backup)
	require.Error(t, err)

	_, err = ImportEncrypted(openTestStore(t), key, []byte{0x01})
	require.Error(t, err)
}
