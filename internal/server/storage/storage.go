// Package storage implements the two on-disk trees owned by the server: the
// sharded store for final file blobs and the transient chunk store for
// in-flight uploads, plus an S3-backed alternative for final blobs.
package storage

import (
	"context"

	"github.com/google/uuid"
)

// BlobStore is the contract for durable storage of final file blobs.
// Store returns a path relative to the store's root so the root can be
// relocated without invalidating persisted references.
type BlobStore interface {
	Store(ctx context.Context, fileID uuid.UUID, data []byte) (string, error)
	Retrieve(ctx context.Context, relativePath string) ([]byte, error)
	Delete(ctx context.Context, relativePath string) error
}

// Stats summarizes stored blobs for operational visibility.
type Stats struct {
	TotalFiles int64
	TotalSize  int64
}
