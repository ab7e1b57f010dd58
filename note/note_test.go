package note

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/veilprotocol/veil/ledger"
)

func Test_NewNote(t *testing.T) {
	n, err := New(uint256.NewInt(1_000_000))
	require.NoError(t, err)
	require.Equal(t, 32, len(n.Nullifier))
	require.Equal(t, 32, len(n.Secret))
	require.False(t, n.Deposited())
	require.False(t, n.Spent)

	_, err = New(nil)
	require.Error(t, err)
	_, err = New(uint256.NewInt(0))
	require.Error(t, err)
}

func Test_CommitmentStable(t *testing.T) {
	n, err := New(uint256.NewInt(100))
	require.NoError(t, err)

	// Commitment and nullifier hash are pure functions of the note.
	require.Equal(t, n.Commitment(), n.Commitment())
	require.Equal(t, n.NullifierHash(), n.NullifierHash())
	require.NotEqual(t, n.Commitment(), n.NullifierHash())

	other, err := New(uint256.NewInt(100))
	require.NoError(t, err)
	require.NotEqual(t, n.Commitment(), other.Commitment())
}

func Test_RecordDeposit(t *testing.T) {
	n, err := New(uint256.NewInt(100))
	require.NoError(t, err)

	tx := common.HexToHash("0x11")
	require.NoError(t, n.RecordDeposit(n.Commitment(), 7, tx))
	require.Equal(t, uint32(7), n.LeafIndex)
	require.Equal(t, tx, n.DepositTxHash)
	require.True(t, n.Deposited())
}

func Test_RecordDepositMismatch(t *testing.T) {
	n, err := New(uint256.NewInt(100))
	require.NoError(t, err)

	wrong := make([]byte, 32)
	wrong[0] = 0x01
	err = n.RecordDeposit(wrong, 0, common.HexToHash("0x11"))
	require.ErrorIs(t, err, ledger.ErrLeafMismatch)
	require.False(t, n.Deposited())
}
