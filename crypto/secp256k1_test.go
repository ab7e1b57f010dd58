package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_ScalarFromBytes(t *testing.T) {
	_, err := ScalarFromBytes(make([]byte, 32))
	require.ErrorIs(t, err, ErrZeroScalar)

	_, err = ScalarFromBytes(make([]byte, 31))
	require.Error(t, err)

	// Values above the curve order must reduce, not fail.
	over := make([]byte, 32)
	for i := range over {
		over[i] = 0xff
	}
	s, err := ScalarFromBytes(over)
	require.NoError(t, err)
	require.False(t, s.IsZero())
}

func Test_ScalarRoundTrip(t *testing.T) {
	priv, err := GeneratePrivKey()
	require.NoError(t, err)

	bz := ScalarBytes(&priv.Key)
	require.Equal(t, ScalarSize, len(bz))

	s, err := ScalarFromBytes(bz)
	require.NoError(t, err)
	require.True(t, s.Equals(&priv.Key))
}

func Test_SharedPointSymmetry(t *testing.T) {
	a, err := GeneratePrivKey()
	require.NoError(t, err)
	b, err := GeneratePrivKey()
	require.NoError(t, err)

	// a*(b*G) == b*(a*G)
	ab := SharedPoint(&a.Key, b.PubKey())
	ba := SharedPoint(&b.Key, a.PubKey())
	require.Equal(t, ab.SerializeCompressed(), ba.SerializeCompressed())
}

func Test_AddHomomorphism(t *testing.T) {
	a, err := GeneratePrivKey()
	require.NoError(t, err)
	b, err := GeneratePrivKey()
	require.NoError(t, err)

	// (a+b)*G == a*G + b*G
	sum := AddScalars(&a.Key, &b.Key)
	lhs := ScalarBaseMult(sum)
	rhs := AddPubKeys(a.PubKey(), b.PubKey())
	require.Equal(t, lhs.SerializeCompressed(), rhs.SerializeCompressed())
}

func Test_ParsePubKey(t *testing.T) {
	priv, err := GeneratePrivKey()
	require.NoError(t, err)

	pub, err := ParsePubKey(priv.PubKey().SerializeCompressed())
	require.NoError(t, err)
	require.True(t, pub.IsEqual(priv.PubKey()))

	_, err = ParsePubKey([]byte{0x02, 0x01})
	require.ErrorIs(t, err, ErrInvalidPubKey)
}

func Test_EthereumAddress(t *testing.T) {
	priv, err := GeneratePrivKey()
	require.NoError(t, err)

	addr := EthereumAddress(priv.PubKey())
	require.Equal(t, addr, EthereumAddress(priv.PubKey()))

	other, err := GeneratePrivKey()
	require.NoError(t, err)
	require.NotEqual(t, addr, EthereumAddress(other.PubKey()))
}
