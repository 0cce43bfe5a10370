// Package cryptox implements the symmetric envelope encryption used to
// protect file contents and filenames at rest: AES-256-GCM with a fresh
// random 96-bit nonce per encryption.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
)

var (
	// ErrInvalidKeyFormat reports a malformed transport encoding of a key.
	ErrInvalidKeyFormat = errors.New("invalid key format")

	// ErrInvalidNonceLength reports a nonce that is not NonceSize bytes.
	ErrInvalidNonceLength = errors.New("invalid nonce length")

	// ErrDecryptFailed reports an AEAD open failure. A wrong key and tampered
	// ciphertext are indistinguishable here: the GCM tag check conflates both.
	ErrDecryptFailed = errors.New("decryption failed")
)

// EncryptedData is a ciphertext together with the nonce it was sealed under.
type EncryptedData struct {
	Ciphertext []byte
	Nonce      []byte
}

func newGCM(key *Key) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key.Bytes())
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Encrypt seals data under key with a fresh random nonce. The nonce is never
// derived from the plaintext or a counter; reuse under the same key would
// break GCM.
func Encrypt(data []byte, key *Key) (*EncryptedData, error) {
	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("nonce generation: %w", err)
	}

	ciphertext := aesgcm.Seal(nil, nonce, data, nil)
	return &EncryptedData{Ciphertext: ciphertext, Nonce: nonce}, nil
}

// Decrypt opens ciphertext sealed by Encrypt. It returns ErrInvalidNonceLength
// for a malformed nonce and ErrDecryptFailed when the tag check fails.
func Decrypt(ciphertext, nonce []byte, key *Key) ([]byte, error) {
	if len(nonce) != NonceSize {
		return nil, ErrInvalidNonceLength
	}

	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	plaintext, err := aesgcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	return plaintext, nil
}

// EncryptString seals a short auxiliary string and returns nonce||ciphertext
// as a single standard-base64 blob. Not used for file content.
func EncryptString(text string, key *Key) (string, error) {
	encrypted, err := Encrypt([]byte(text), key)
	if err != nil {
		return "", err
	}
	combined := append(append([]byte{}, encrypted.Nonce...), encrypted.Ciphertext...)
	return base64.StdEncoding.EncodeToString(combined), nil
}

// DecryptString reverses EncryptString.
func DecryptString(encoded string, key *Key) (string, error) {
	combined, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptFailed, err)
	}
	if len(combined) < NonceSize {
		return "", ErrInvalidNonceLength
	}

	plaintext, err := Decrypt(combined[NonceSize:], combined[:NonceSize], key)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}
