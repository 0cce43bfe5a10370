// Package common defines shared constants and sentinel errors used across
// sharedrop components. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrFileNotFound    = errors.New("file not found")
	ErrSessionNotFound = errors.New("upload session not found")

	// Access-policy errors.
	ErrFileExpired          = errors.New("file expired")
	ErrDownloadLimitReached = errors.New("download limit reached")
	ErrSessionExpired       = errors.New("upload session expired")

	// Validation errors. Wrapped with detail at the call site, e.g.
	// fmt.Errorf("%w: invalid chunk number %d", ErrValidation, n).
	ErrValidation     = errors.New("validation error")
	ErrFileTooLarge   = errors.New("file too large")
	ErrChunkMissing   = errors.New("missing chunk")
	ErrUploadComplete = errors.New("upload already complete")

	// Crypto errors. ErrInvalidKey deliberately covers both a wrong key and
	// tampered ciphertext: the AEAD tag check cannot tell them apart, and
	// distinguishing them would leak information.
	ErrInvalidKey    = errors.New("invalid key or corrupted data")
	ErrKeyNotAllowed = errors.New("file is not encrypted, no key expected")
)
