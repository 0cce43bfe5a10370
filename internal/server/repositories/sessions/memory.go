package sessions

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/sharedrop/internal/common"
	"github.com/dmitrijs2005/sharedrop/internal/server/models"
	"github.com/google/uuid"
)

// MemoryRepository is a mutex-guarded in-memory Repository used in tests and
// single-process setups. The mutex serializes counter increments, giving the
// same per-session linearizability as the SQL UPDATE.
type MemoryRepository struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*models.UploadSession
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{sessions: make(map[uuid.UUID]*models.UploadSession)}
}

func (r *MemoryRepository) Create(ctx context.Context, session *models.UploadSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *session
	r.sessions[session.UploadID] = &clone
	return nil
}

func (r *MemoryRepository) GetByUploadID(ctx context.Context, uploadID uuid.UUID) (*models.UploadSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[uploadID]
	if !ok {
		return nil, common.ErrSessionNotFound
	}
	clone := *session
	return &clone, nil
}

func (r *MemoryRepository) IncrementUploadedChunks(ctx context.Context, uploadID uuid.UUID) (int32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[uploadID]
	if !ok {
		return 0, common.ErrSessionNotFound
	}
	session.UploadedChunks++
	return session.UploadedChunks, nil
}

func (r *MemoryRepository) DeleteByUploadID(ctx context.Context, uploadID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[uploadID]
	delete(r.sessions, uploadID)
	return ok, nil
}

func (r *MemoryRepository) SelectExpired(ctx context.Context, now time.Time) ([]*models.UploadSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*models.UploadSession
	for _, session := range r.sessions {
		if session.ExpiresAt.Before(now) {
			clone := *session
			result = append(result, &clone)
		}
	}
	return result, nil
}

func (r *MemoryRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var deleted int64
	for id, session := range r.sessions {
		if session.ExpiresAt.Before(now) {
			delete(r.sessions, id)
			deleted++
		}
	}
	return deleted, nil
}
