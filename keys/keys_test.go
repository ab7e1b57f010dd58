package keys

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/veilprotocol/veil/crypto"
)

func sigHash(seed byte) [32]byte {
	var h [32]byte
	copy(h[:], crypto.Keccak256([]byte{seed}))
	return h
}

func Test_DeriveDeterministic(t *testing.T) {
	a, err := Derive(sigHash(1))
	require.NoError(t, err)
	b, err := Derive(sigHash(1))
	require.NoError(t, err)

	require.True(t, a.SpendPriv.Equals(b.SpendPriv))
	require.True(t, a.ViewPriv.Equals(b.ViewPriv))
	require.True(t, a.SpendPub.IsEqual(b.SpendPub))
	require.True(t, a.ViewPub.IsEqual(b.ViewPub))
}

func Test_DeriveDomainSeparation(t *testing.T) {
	mk, err := Derive(sigHash(2))
	require.NoError(t, err)

	// Spend and view keys come from the same signature but must differ.
	require.False(t, mk.SpendPriv.Equals(mk.ViewPriv))
	require.False(t, mk.SpendPub.IsEqual(mk.ViewPub))
}

func Test_DeriveDistinctSignatures(t *testing.T) {
	a, err := Derive(sigHash(3))
	require.NoError(t, err)
	b, err := Derive(sigHash(4))
	require.NoError(t, err)

	require.False(t, a.SpendPriv.Equals(b.SpendPriv))
	require.False(t, a.ViewPriv.Equals(b.ViewPriv))
}

func Test_DerivePubMatchesPriv(t *testing.T) {
	mk, err := Derive(sigHash(5))
	require.NoError(t, err)

	require.True(t, crypto.ScalarBaseMult(mk.SpendPriv).IsEqual(mk.SpendPub))
	require.True(t, crypto.ScalarBaseMult(mk.ViewPriv).IsEqual(mk.ViewPub))
}
