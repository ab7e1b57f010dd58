package relay

import (
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/veilprotocol/veil/crypto"
)

func validExtData(t *testing.T) *ExtData {
	t.Helper()
	priv, err := crypto.GeneratePrivKey()
	require.NoError(t, err)
	return &ExtData{
		DestinationChainID: 137,
		Recipient:          common.HexToAddress("0x1111111111111111111111111111111111111111"),
		EphemeralPub:       priv.PubKey().SerializeCompressed(),
		ViewHint:           []byte{0xab},
		Index:              0,
		Fee:                uint256.NewInt(100),
		BridgeAddress:      common.HexToAddress("0x2222222222222222222222222222222222222222"),
		Token:              common.HexToAddress("0x3333333333333333333333333333333333333333"),
	}
}

func Test_ExtDataValidate(t *testing.T) {
	denom := uint256.NewInt(1_000_000)

	require.NoError(t, validExtData(t).Validate(denom))

	ext := validExtData(t)
	ext.DestinationChainID = 0
	require.Error(t, ext.Validate(denom))

	ext = validExtData(t)
	ext.Recipient = common.Address{}
	require.Error(t, ext.Validate(denom))

	ext = validExtData(t)
	ext.EphemeralPub = ext.EphemeralPub[:32]
	require.Error(t, ext.Validate(denom))

	ext = validExtData(t)
	ext.EphemeralPub = make([]byte, 33)
	require.Error(t, ext.Validate(denom))

	ext = validExtData(t)
	ext.Fee = nil
	require.Error(t, ext.Validate(denom))

	ext = validExtData(t)
	ext.Fee = uint256.NewInt(1_000_001)
	require.Error(t, ext.Validate(denom))

	// A fee equal to the full denomination is allowed.
	ext = validExtData(t)
	ext.Fee = denom.Clone()
	require.NoError(t, ext.Validate(denom))
}

func Test_ExtDataHash(t *testing.T) {
	ext := validExtData(t)

	h := ext.Hash()
	require.Equal(t, 32, len(h))
	require.Equal(t, h, ext.Hash())

	// The digest lies in the BN254 scalar field.
	var e fr.Element
	require.NoError(t, e.SetBytesCanonical(h))

	// Every field is binding.
	mutations := []func(*ExtData){
		func(e *ExtData) { e.DestinationChainID++ },
		func(e *ExtData) { e.Recipient[0] ^= 0x01 },
		func(e *ExtData) { e.EphemeralPub[1] ^= 0x01 },
		func(e *ExtData) { e.ViewHint = []byte{0xcd} },
		func(e *ExtData) { e.Index++ },
		func(e *ExtData) { e.Fee = uint256.NewInt(101) },
		func(e *ExtData) { e.BridgeAddress[0] ^= 0x01 },
		func(e *ExtData) { e.Token[0] ^= 0x01 },
	}
	for i, mutate := range mutations {
		mutated := validExtData(t)
		mutated.EphemeralPub = append([]byte(nil), ext.EphemeralPub...)
		base := mutated.Hash()
		mutate(mutated)
		require.NotEqual(t, base, mutated.Hash(), "mutation %d did not change the hash", i)
	}
}

func Test_ExtDataHashHintFraming(t *testing.T) {
	// The hint is length-prefixed: an empty hint and a zero byte differ.
	a := validExtData(t)
	b := validExtData(t)
	b.EphemeralPub = append([]byte(nil), a.EphemeralPub...)
	a.ViewHint = nil
	b.ViewHint = []byte{0x00}
	require.NotEqual(t, a.Hash(), b.Hash())
}
