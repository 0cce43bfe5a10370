package models

import (
	"time"

	"github.com/google/uuid"
)

// UploadSession tracks the progress of a chunked upload. Sessions are
// transient: deleted on completion, or reclaimed by the sweeper once past
// ExpiresAt.
type UploadSession struct {
	// UploadID identifies the session; a separate namespace from file ids.
	UploadID uuid.UUID

	Filename string
	// MimeType is the declared content type, empty if unknown.
	MimeType string

	// TotalSize is the declared size of the final file in bytes.
	TotalSize int64
	// ChunkSize is the size of every chunk except possibly the last.
	ChunkSize int64
	// TotalChunks is ceil(TotalSize / ChunkSize).
	TotalChunks int32
	// UploadedChunks counts accepted chunks; incremented atomically by the
	// session repository.
	UploadedChunks int32

	// ExpiresInHours is the optional expiry hint for the final file.
	ExpiresInHours *int32
	// MaxDownloads is the optional download cap hint for the final file.
	MaxDownloads *int32

	CreatedAt time.Time
	// ExpiresAt is the hard session deadline, SessionTTL after creation.
	ExpiresAt time.Time
}

// TotalChunks returns ceil(totalSize / chunkSize). chunkSize must be positive.
func TotalChunks(totalSize, chunkSize int64) int32 {
	return int32((totalSize + chunkSize - 1) / chunkSize)
}

// IsExpired reports whether the session is past its deadline.
func (s *UploadSession) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// IsComplete reports whether every chunk has been accepted.
func (s *UploadSession) IsComplete() bool {
	return s.UploadedChunks >= s.TotalChunks
}

// Progress returns the upload progress as a fraction in [0, 1].
func (s *UploadSession) Progress() float64 {
	if s.TotalChunks == 0 {
		return 0
	}
	return float64(s.UploadedChunks) / float64(s.TotalChunks)
}

// ExpectedChunkSize returns the exact byte length chunk number must have:
// ChunkSize for all but the last chunk, the remainder for the last one.
func (s *UploadSession) ExpectedChunkSize(number int32) int64 {
	if number == s.TotalChunks-1 {
		return s.TotalSize - int64(number)*s.ChunkSize
	}
	return s.ChunkSize
}
