package cryptox

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/argon2"
)

const (
	// KeySize is the AES-256 key length in bytes.
	KeySize = 32
	// NonceSize is the AES-GCM nonce length in bytes.
	NonceSize = 12
)

// Key is a 256-bit symmetric encryption key. Keys are generated fresh per
// upload and never persisted server-side; call Wipe as soon as the key is no
// longer needed.
type Key [KeySize]byte

// GenerateKey returns a new random key drawn from crypto/rand.
func GenerateKey() (*Key, error) {
	k := &Key{}
	if _, err := rand.Read(k[:]); err != nil {
		return nil, fmt.Errorf("key generation: %w", err)
	}
	return k, nil
}

// ParseKey decodes a key from its URL-safe unpadded base64 transport form.
func ParseKey(encoded string) (*Key, error) {
	decoded, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKeyFormat, err)
	}
	if len(decoded) != KeySize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidKeyFormat, KeySize, len(decoded))
	}
	k := &Key{}
	copy(k[:], decoded)
	return k, nil
}

// DeriveKey derives a key from a passphrase and salt using Argon2id.
// The same passphrase and salt always produce the same key, so a caller can
// re-derive it later instead of storing the random key.
func DeriveKey(passphrase, salt []byte) *Key {
	k := &Key{}
	copy(k[:], argon2.IDKey(passphrase, salt, 1, 64*1024, 4, KeySize))
	return k
}

// Encode returns the URL-safe unpadded base64 form used in download URLs.
func (k *Key) Encode() string {
	return base64.RawURLEncoding.EncodeToString(k[:])
}

// Bytes exposes the raw key material. Use with caution.
func (k *Key) Bytes() []byte {
	return k[:]
}

// Wipe zeroes the key material in place.
func (k *Key) Wipe() {
	for i := range k {
		k[i] = 0
	}
}
