// Package sessions persists upload-session state for chunked uploads.
package sessions

import (
	"context"
	"time"

	"github.com/dmitrijs2005/sharedrop/internal/server/models"
	"github.com/google/uuid"
)

// Repository is the metadata-store contract for upload sessions.
type Repository interface {
	// Create inserts a new session.
	Create(ctx context.Context, session *models.UploadSession) error

	// GetByUploadID returns the session or common.ErrSessionNotFound.
	GetByUploadID(ctx context.Context, uploadID uuid.UUID) (*models.UploadSession, error)

	// IncrementUploadedChunks atomically bumps the counter by one and returns
	// the new value. Concurrent calls for the same session must not lose
	// updates, so the increment is applied in the store, never read-modify-
	// write in caller code.
	IncrementUploadedChunks(ctx context.Context, uploadID uuid.UUID) (int32, error)

	// DeleteByUploadID removes the session, reporting whether it existed.
	DeleteByUploadID(ctx context.Context, uploadID uuid.UUID) (bool, error)

	// SelectExpired returns all sessions whose deadline is before now.
	SelectExpired(ctx context.Context, now time.Time) ([]*models.UploadSession, error)

	// DeleteExpired removes all sessions whose deadline is before now and
	// returns how many were deleted.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
