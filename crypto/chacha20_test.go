package crypto

import (
	crand "crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_NoteBackupRoundTrip(t *testing.T) {
	m := []byte("note backup payload")

	key := make([]byte, 32)
	_, err := crand.Read(key)
	require.NoError(t, err)
	nonce := make([]byte, 12)
	_, err = crand.Read(nonce)
	require.NoError(t, err)

	enc, err := EncryptNotes(key, nonce, m, []byte("veil.notes.v1"))
	require.NoError(t, err)

	dec, err := DecryptNotes(key, nonce, enc, []byte("veil.notes.v1"))
	require.NoError(t, err)
	require.Equal(t, m, dec)
}

func Test_NoteBackupTamper(t *testing.T) {
	key := make([]byte, 32)
	nonce := make([]byte, 12)
	_, err := crand.Read(key)
	require.NoError(t, err)

	enc, err := EncryptNotes(key, nonce, []byte("payload"), nil)
	require.NoError(t, err)

	enc[0] ^= 0x01
	_, err = DecryptNotes(key, nonce, enc, nil)
	require.Error(t, err)

	enc[0] ^= 0x01
	_, err = DecryptNotes(key, nonce, enc, []byte("wrong adata"))
	require.Error(t, err)
}

func Test_NoteBackupKeySizes(t *testing.T) {
	_, err := EncryptNotes(make([]byte, 16), make([]byte, 12), nil, nil)
	require.Error(t, err)

	_, err = EncryptNotes(make([]byte, 32), make([]byte, 8), nil, nil)
	require.Error(t, err)
}
