package services

import (
	"context"
	"database/sql"
	"time"

	"github.com/dmitrijs2005/sharedrop/internal/logging"
	sc "github.com/dmitrijs2005/sharedrop/internal/server/config"
	"github.com/dmitrijs2005/sharedrop/internal/server/metrics"
	"github.com/dmitrijs2005/sharedrop/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/sharedrop/internal/server/storage"
)

// CleanupService reclaims expired files, expired upload sessions and
// orphaned chunk directories. Every pass is independent of per-request
// access checks and tolerant of disk state disagreeing with the metadata
// store.
type CleanupService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	config      *sc.Config
	blobs       storage.BlobStore
	chunks      *storage.ChunkStorage
	// fileStorage is the local store used for stats gauges; nil when final
	// blobs live in S3.
	fileStorage *storage.FileStorage
	logger      logging.Logger
	metrics     *metrics.ServerMetrics
}

func NewCleanupService(db *sql.DB, repomanager repomanager.RepositoryManager, config *sc.Config,
	blobs storage.BlobStore, chunks *storage.ChunkStorage, fileStorage *storage.FileStorage,
	logger logging.Logger, m *metrics.ServerMetrics) *CleanupService {
	return &CleanupService{
		db:          db,
		repomanager: repomanager,
		config:      config,
		blobs:       blobs,
		chunks:      chunks,
		fileStorage: fileStorage,
		logger:      logger,
		metrics:     m,
	}
}

// CleanupExpiredFiles deletes blobs of expired files best-effort, then
// removes their metadata rows, returning how many rows were deleted.
func (s *CleanupService) CleanupExpiredFiles(ctx context.Context) (int64, error) {
	fileRepo := s.repomanager.Files(s.db)
	now := time.Now()

	expired, err := fileRepo.SelectExpired(ctx, now)
	if err != nil {
		return 0, err
	}
	for _, file := range expired {
		if err := s.blobs.Delete(ctx, file.FilePath); err != nil {
			s.logger.Warn(ctx, "failed to delete expired blob", "file_id", file.FileID, "error", err)
		}
	}

	deleted, err := fileRepo.DeleteExpired(ctx, now)
	if err != nil {
		return 0, err
	}

	s.metrics.ExpiredFilesSweptTotal.Add(float64(deleted))
	s.refreshStorageGauges(ctx)
	return deleted, nil
}

// CleanupExpiredSessions removes chunk directories of expired sessions
// best-effort, then deletes their rows, returning how many were deleted.
func (s *CleanupService) CleanupExpiredSessions(ctx context.Context) (int64, error) {
	sessionRepo := s.repomanager.Sessions(s.db)
	now := time.Now()

	expired, err := sessionRepo.SelectExpired(ctx, now)
	if err != nil {
		return 0, err
	}
	for _, session := range expired {
		if err := s.chunks.Cleanup(session.UploadID); err != nil {
			s.logger.Warn(ctx, "failed to cleanup expired session chunks", "upload_id", session.UploadID, "error", err)
		}
	}

	deleted, err := sessionRepo.DeleteExpired(ctx, now)
	if err != nil {
		return 0, err
	}

	s.metrics.ExpiredSessionsSweptTotal.Add(float64(deleted))
	return deleted, nil
}

// CleanupOrphanedChunks removes chunk directories older than the configured
// disk-age threshold regardless of what the session store says about them.
// This backstop catches sessions whose metadata was lost.
func (s *CleanupService) CleanupOrphanedChunks(ctx context.Context) (int, error) {
	removed, err := s.chunks.SweepStale(ctx, s.config.ChunkMaxAge)
	if err != nil {
		return 0, err
	}
	s.metrics.StaleChunkDirsSweptTotal.Add(float64(removed))
	return removed, nil
}

// Sweep runs all three cleanup passes, logging failures and continuing.
func (s *CleanupService) Sweep(ctx context.Context) {
	if deleted, err := s.CleanupExpiredFiles(ctx); err != nil {
		s.logger.Error(ctx, "expired file sweep failed", "error", err)
	} else if deleted > 0 {
		s.logger.Info(ctx, "expired files swept", "count", deleted)
	}

	if deleted, err := s.CleanupExpiredSessions(ctx); err != nil {
		s.logger.Error(ctx, "expired session sweep failed", "error", err)
	} else if deleted > 0 {
		s.logger.Info(ctx, "expired sessions swept", "count", deleted)
	}

	if removed, err := s.CleanupOrphanedChunks(ctx); err != nil {
		s.logger.Error(ctx, "orphaned chunk sweep failed", "error", err)
	} else if removed > 0 {
		s.logger.Info(ctx, "orphaned chunk directories swept", "count", removed)
	}
}

// Run sweeps immediately and then on every tick of the configured interval
// until the context is cancelled.
func (s *CleanupService) Run(ctx context.Context) {
	s.Sweep(ctx)

	ticker := time.NewTicker(s.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

func (s *CleanupService) refreshStorageGauges(ctx context.Context) {
	if s.fileStorage == nil {
		return
	}
	stats, err := s.fileStorage.Stats()
	if err != nil {
		s.logger.Warn(ctx, "failed to refresh storage stats", "error", err)
		return
	}
	s.metrics.StoredFiles.Set(float64(stats.TotalFiles))
	s.metrics.StoredBytes.Set(float64(stats.TotalSize))
}
