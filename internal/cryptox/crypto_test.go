package cryptox

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustKey(t *testing.T) *Key {
	t.Helper()
	key, err := GenerateKey()
	require.NoError(t, err)
	return key
}

func TestKey_EncodeParseRoundTrip(t *testing.T) {
	key := mustKey(t)

	encoded := key.Encode()
	restored, err := ParseKey(encoded)
	require.NoError(t, err)
	assert.Equal(t, key.Bytes(), restored.Bytes())
}

func TestParseKey_Invalid(t *testing.T) {
	_, err := ParseKey("not-base64!!")
	assert.ErrorIs(t, err, ErrInvalidKeyFormat)

	// valid base64 but wrong length
	_, err = ParseKey("c2hvcnQ")
	assert.ErrorIs(t, err, ErrInvalidKeyFormat)
}

func TestDeriveKey_Deterministic(t *testing.T) {
	pass := []byte("correct horse battery staple")
	salt := []byte("550e8400e29b41d4a716446655440000")

	key1 := DeriveKey(pass, salt)
	key2 := DeriveKey(pass, salt)
	assert.Equal(t, key1.Bytes(), key2.Bytes())

	key3 := DeriveKey(pass, []byte("another-salt"))
	assert.NotEqual(t, key1.Bytes(), key3.Bytes())
}

func TestKey_Wipe(t *testing.T) {
	key := mustKey(t)
	key.Wipe()
	assert.Equal(t, make([]byte, KeySize), key.Bytes())
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	key := mustKey(t)

	for _, data := range [][]byte{
		[]byte("Hello, World! This is a test message."),
		{},
		bytes.Repeat([]byte{0xAB}, 1<<16),
	} {
		encrypted, err := Encrypt(data, key)
		require.NoError(t, err)
		require.Len(t, encrypted.Nonce, NonceSize)

		decrypted, err := Decrypt(encrypted.Ciphertext, encrypted.Nonce, key)
		require.NoError(t, err)
		assert.Equal(t, data, append([]byte{}, decrypted...))
	}
}

func TestDecrypt_WrongKeyFails(t *testing.T) {
	key1 := mustKey(t)
	key2 := mustKey(t)

	encrypted, err := Encrypt([]byte("secret data"), key1)
	require.NoError(t, err)

	_, err = Decrypt(encrypted.Ciphertext, encrypted.Nonce, key2)
	assert.ErrorIs(t, err, ErrDecryptFailed)
}

func TestDecrypt_BadNonceLength(t *testing.T) {
	key := mustKey(t)

	encrypted, err := Encrypt([]byte("data"), key)
	require.NoError(t, err)

	_, err = Decrypt(encrypted.Ciphertext, encrypted.Nonce[:8], key)
	assert.ErrorIs(t, err, ErrInvalidNonceLength)
}

func TestDecrypt_TamperedCiphertextFails(t *testing.T) {
	key := mustKey(t)

	encrypted, err := Encrypt([]byte("integrity matters"), key)
	require.NoError(t, err)

	encrypted.Ciphertext[0] ^= 0xFF
	_, err = Decrypt(encrypted.Ciphertext, encrypted.Nonce, key)
	assert.ErrorIs(t, err, ErrDecryptFailed)
}

func TestEncrypt_NonceUniqueness(t *testing.T) {
	key := mustKey(t)
	data := []byte("same data")

	e1, err := Encrypt(data, key)
	require.NoError(t, err)
	e2, err := Encrypt(data, key)
	require.NoError(t, err)

	assert.NotEqual(t, e1.Nonce, e2.Nonce)
	assert.NotEqual(t, e1.Ciphertext, e2.Ciphertext)

	d1, err := Decrypt(e1.Ciphertext, e1.Nonce, key)
	require.NoError(t, err)
	d2, err := Decrypt(e2.Ciphertext, e2.Nonce, key)
	require.NoError(t, err)
	assert.Equal(t, d1, d2)
}

func TestEncryptDecryptString_RoundTrip(t *testing.T) {
	key := mustKey(t)

	encoded, err := EncryptString("report-2024.pdf", key)
	require.NoError(t, err)

	decoded, err := DecryptString(encoded, key)
	require.NoError(t, err)
	assert.Equal(t, "report-2024.pdf", decoded)
}

func TestDecryptString_Invalid(t *testing.T) {
	key := mustKey(t)

	_, err := DecryptString("%%%", key)
	assert.ErrorIs(t, err, ErrDecryptFailed)

	// too short to contain a nonce
	_, err = DecryptString("AAAA", key)
	assert.ErrorIs(t, err, ErrInvalidNonceLength)
}
