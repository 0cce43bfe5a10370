// Package files persists metadata for completed, downloadable files.
package files

import (
	"context"
	"time"

	"github.com/dmitrijs2005/sharedrop/internal/server/models"
	"github.com/google/uuid"
)

// Repository is the metadata-store contract for file records.
type Repository interface {
	// Create inserts a new record.
	Create(ctx context.Context, file *models.File) error

	// GetByFileID returns the record or common.ErrFileNotFound.
	GetByFileID(ctx context.Context, fileID uuid.UUID) (*models.File, error)

	// IncrementDownloadCount atomically bumps the counter by one.
	IncrementDownloadCount(ctx context.Context, fileID uuid.UUID) error

	// DeleteByFileID removes the record, reporting whether it existed.
	DeleteByFileID(ctx context.Context, fileID uuid.UUID) (bool, error)

	// SelectExpired returns all records whose expiry time is before now.
	SelectExpired(ctx context.Context, now time.Time) ([]*models.File, error)

	// DeleteExpired removes all records whose expiry time is before now and
	// returns how many were deleted.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
