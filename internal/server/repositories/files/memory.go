package files

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/sharedrop/internal/common"
	"github.com/dmitrijs2005/sharedrop/internal/server/models"
	"github.com/google/uuid"
)

// MemoryRepository is a mutex-guarded in-memory Repository used in tests and
// single-process setups. Increments are serialized by the mutex, satisfying
// the same linearizability contract as the SQL implementation.
type MemoryRepository struct {
	mu    sync.Mutex
	files map[uuid.UUID]*models.File
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{files: make(map[uuid.UUID]*models.File)}
}

func (r *MemoryRepository) Create(ctx context.Context, file *models.File) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *file
	r.files[file.FileID] = &clone
	return nil
}

func (r *MemoryRepository) GetByFileID(ctx context.Context, fileID uuid.UUID) (*models.File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	file, ok := r.files[fileID]
	if !ok {
		return nil, common.ErrFileNotFound
	}
	clone := *file
	return &clone, nil
}

func (r *MemoryRepository) IncrementDownloadCount(ctx context.Context, fileID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	file, ok := r.files[fileID]
	if !ok {
		return common.ErrFileNotFound
	}
	file.DownloadCount++
	return nil
}

func (r *MemoryRepository) DeleteByFileID(ctx context.Context, fileID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.files[fileID]
	delete(r.files, fileID)
	return ok, nil
}

func (r *MemoryRepository) SelectExpired(ctx context.Context, now time.Time) ([]*models.File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*models.File
	for _, file := range r.files {
		if file.ExpiresAt != nil && file.ExpiresAt.Before(now) {
			clone := *file
			result = append(result, &clone)
		}
	}
	return result, nil
}

func (r *MemoryRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var deleted int64
	for id, file := range r.files {
		if file.ExpiresAt != nil && file.ExpiresAt.Before(now) {
			delete(r.files, id)
			deleted++
		}
	}
	return deleted, nil
}
