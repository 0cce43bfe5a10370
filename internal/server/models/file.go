// Package models defines server-side data models persisted in the database.
package models

import (
	"time"

	"github.com/google/uuid"
)

// File describes metadata for a completed, downloadable file. The blob
// itself lives in the file store at FilePath (relative to the storage root).
//
// An empty Nonce means the blob is stored in plaintext and EncryptedFilename
// actually holds the plain UTF-8 filename; see Content.
type File struct {
	// FileID is the public identifier used in download URLs.
	FileID uuid.UUID

	// OriginalSize is the plaintext size in bytes.
	OriginalSize int64
	// StoredSize is the on-disk (possibly encrypted) size in bytes.
	StoredSize int64

	// MimeType is the declared content type, empty if unknown.
	MimeType string

	// FilePath is the blob location relative to the storage root.
	FilePath string

	// Nonce is the AEAD nonce for the file content, empty for plaintext files.
	Nonce []byte
	// EncryptedFilename is the sealed filename, or the plain filename bytes
	// when Nonce is empty.
	EncryptedFilename []byte
	// FilenameNonce is the AEAD nonce for the filename.
	FilenameNonce []byte

	CreatedAt time.Time
	// ExpiresAt is the optional expiry time; nil means the file never expires.
	ExpiresAt *time.Time

	// DownloadCount is incremented once per successful serve.
	DownloadCount int32
	// MaxDownloads is the optional download cap; nil means unlimited.
	MaxDownloads *int32
}

// IsExpired reports whether the file is past its expiry time.
func (f *File) IsExpired() bool {
	return f.ExpiresAt != nil && time.Now().After(*f.ExpiresAt)
}

// IsDownloadLimitReached reports whether the download cap has been hit.
func (f *File) IsDownloadLimitReached() bool {
	return f.MaxDownloads != nil && f.DownloadCount >= *f.MaxDownloads
}

// IsAccessible reports whether the file may still be served.
func (f *File) IsAccessible() bool {
	return !f.IsExpired() && !f.IsDownloadLimitReached()
}

// Content interprets the record's blob and filename fields as a tagged
// variant, so download code branches exhaustively instead of checking the
// empty-nonce sentinel at every call site.
func (f *File) Content() Content {
	if len(f.Nonce) == 0 {
		return PlainContent{Filename: string(f.EncryptedFilename)}
	}
	return EncryptedContent{
		Nonce:             f.Nonce,
		EncryptedFilename: f.EncryptedFilename,
		FilenameNonce:     f.FilenameNonce,
	}
}

// Content is either PlainContent or EncryptedContent.
type Content interface {
	isContent()
}

// PlainContent marks a file stored in plaintext (chunked uploads).
type PlainContent struct {
	Filename string
}

// EncryptedContent marks a file whose blob and filename both require the
// caller's key.
type EncryptedContent struct {
	Nonce             []byte
	EncryptedFilename []byte
	FilenameNonce     []byte
}

func (PlainContent) isContent()     {}
func (EncryptedContent) isContent() {}
