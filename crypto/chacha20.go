package crypto

import (
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// EncryptNotes encrypts a serialized note backup using the
// ChaCha20-Poly1305 AEAD scheme.
//
// Parameters:
//   - key: A 32-byte symmetric encryption key.
//   - nonce: A 12-byte nonce, which must be unique for each encryption with the same key.
//   - plaintext: The data to be encrypted (the RLP-encoded note records).
//   - additionalData: Data to be authenticated but not encrypted.
//
// Returns the ciphertext, which includes the authentication tag.
func EncryptNotes(key, nonce, plaintext, additionalData []byte) ([]byte, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("invalid key size: must be %d bytes", chacha20poly1305.KeySize)
	}
	if len(nonce) != chacha20poly1305.NonceSize {
		return nil, fmt.Errorf("invalid nonce size: must be %d bytes", chacha20poly1305.NonceSize)
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create ChaCha20-Poly1305 AEAD: %w", err)
	}

	return aead.Seal(nil, nonce, plaintext, additionalData), nil
}

// DecryptNotes decrypts a note backup produced by EncryptNotes.
//
// Returns the original plaintext if decryption and authentication succeed.
// A failure here means a wrong key/nonce or a tampered backup; since the
// plaintext carries bearer notes, the caller must treat it as fatal.
func DecryptNotes(key, nonce, ciphertext, additionalData []byte) ([]byte, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("invalid key size: must be %d bytes", chacha20poly1305.KeySize)
	}
	if len(nonce) != chacha20poly1305.NonceSize {
		return nil, fmt.Errorf("invalid nonce size: must be %d bytes", chacha20poly1305.NonceSize)
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create ChaCha20-Poly1305 AEAD: %w", err)
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, additionalData)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt note backup: %w", err)
	}
	return plaintext, nil
}
