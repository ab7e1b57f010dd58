// Package stealth implements the one-time address protocol: senders derive
// fresh unlinkable addresses from a recipient's public meta-address, and
// recipients scan chain announcements to recover the matching private keys.
package stealth

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/base58"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/ethereum/go-ethereum/common"

	"github.com/veilprotocol/veil/crypto"
	"github.com/veilprotocol/veil/keys"
)

const (
	metaAddrPrefix  = "vm"
	metaAddrVersion = 0x01

	// DefaultViewHintSize is the published hint length in bytes. One byte
	// keeps the scanner's false-positive rate at 1/256 per announcement,
	// cheap enough that the mandatory full EC check stays rare.
	DefaultViewHintSize = 1

	// MaxViewHintSize caps the hint so it can never leak a meaningful
	// share of the shared-secret hash.
	MaxViewHintSize = 4
)

// MetaAddress is the public pair a recipient publishes so senders can
// derive stealth addresses for them.
type MetaAddress struct {
	SpendPub *secp256k1.PublicKey
	ViewPub  *secp256k1.PublicKey
}

// MetaAddressOf extracts the shareable meta-address from master keys.
func MetaAddressOf(mk *keys.MasterKeys) *MetaAddress {
	return &MetaAddress{SpendPub: mk.SpendPub, ViewPub: mk.ViewPub}
}

// String encodes the meta-address as "vm" + base58check(spendPub‖viewPub).
func (m *MetaAddress) String() string {
	payload := append(m.SpendPub.SerializeCompressed(), m.ViewPub.SerializeCompressed()...)
	return metaAddrPrefix + base58.CheckEncode(payload, metaAddrVersion)
}

// ParseMetaAddress decodes a meta-address string.
func ParseMetaAddress(addr string) (*MetaAddress, error) {
	if !strings.HasPrefix(addr, metaAddrPrefix) {
		return nil, fmt.Errorf("wrong meta-address prefix: got(%s)", addr)
	}
	payload, ver, err := base58.CheckDecode(addr[len(metaAddrPrefix):])
	if err != nil {
		return nil, err
	}
	if ver != metaAddrVersion {
		return nil, fmt.Errorf("wrong meta-address version: expected(%d), got(%d)", metaAddrVersion, ver)
	}
	if len(payload) != 2*crypto.CompressedPubKeySize {
		return nil, fmt.Errorf("wrong meta-address length: %d", len(payload))
	}
	spendPub, err := crypto.ParsePubKey(payload[:crypto.CompressedPubKeySize])
	if err != nil {
		return nil, err
	}
	viewPub, err := crypto.ParsePubKey(payload[crypto.CompressedPubKeySize:])
	if err != nil {
		return nil, err
	}
	return &MetaAddress{SpendPub: spendPub, ViewPub: viewPub}, nil
}

// Address is a one-time destination plus everything the sender publishes
// alongside the payment. EphemeralPriv never appears here: the sender
// discards it right after generation.
type Address struct {
	Pub          *secp256k1.PublicKey
	Address      common.Address
	EphemeralPub []byte // compressed, published with the payment
	ViewHint     []byte
	Index        uint32
}

// NewEphemeralKey draws the single-use sender key for one announcement.
func NewEphemeralKey() (*secp256k1.PrivateKey, error) {
	return crypto.GeneratePrivKey()
}

// Generate derives a fresh stealth address for the recipient:
//
//	S          = ephemeralPriv · viewPub
//	tweak      = Keccak256(compress(S) ‖ index) mod n
//	stealthPub = spendPub + tweak·G
//
// index is always hashed into the tweak so several addresses derived from
// one ephemeral key (batch payments) cannot collide. The view hint is
// computed over the shared point alone and therefore shared by the whole
// batch.
func Generate(meta *MetaAddress, ephemeralPriv *secp256k1.PrivateKey, index uint32, hintSize int) (*Address, error) {
	if hintSize <= 0 || hintSize > MaxViewHintSize {
		return nil, fmt.Errorf("view hint size out of range: %d", hintSize)
	}

	shared := crypto.SharedPoint(&ephemeralPriv.Key, meta.ViewPub)
	sharedBytes := shared.SerializeCompressed()

	tweak, err := tweakScalar(sharedBytes, index)
	if err != nil {
		return nil, err
	}

	stealthPub := crypto.AddPubKeys(meta.SpendPub, crypto.ScalarBaseMult(tweak))

	return &Address{
		Pub:          stealthPub,
		Address:      crypto.EthereumAddress(stealthPub),
		EphemeralPub: ephemeralPriv.PubKey().SerializeCompressed(),
		ViewHint:     viewHint(sharedBytes, hintSize),
		Index:        index,
	}, nil
}

// RecoverPrivateKey derives the spending key for a stealth address the
// scanner matched: stealthPriv = spendPriv + tweak mod n. Only the holder
// of both master private keys can compute it.
func RecoverPrivateKey(mk *keys.MasterKeys, ephemeralPub []byte, index uint32) (*secp256k1.PrivateKey, error) {
	ephPub, err := crypto.ParsePubKey(ephemeralPub)
	if err != nil {
		return nil, err
	}

	shared := crypto.SharedPoint(mk.ViewPriv, ephPub)
	tweak, err := tweakScalar(shared.SerializeCompressed(), index)
	if err != nil {
		return nil, err
	}

	return crypto.PrivKeyFromScalar(crypto.AddScalars(mk.SpendPriv, tweak)), nil
}

func tweakScalar(sharedPoint []byte, index uint32) (*secp256k1.ModNScalar, error) {
	var idx [4]byte
	binary.BigEndian.PutUint32(idx[:], index)
	return crypto.ScalarFromBytes(crypto.Keccak256(sharedPoint, idx[:]))
}

func viewHint(sharedPoint []byte, size int) []byte {
	hint := make([]byte, size)
	copy(hint, crypto.Keccak256(sharedPoint)[:size])
	return hint
}
