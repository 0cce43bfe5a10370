// Package services implements the upload, download and cleanup flows on top
// of the repositories and the blob and chunk stores.
package services

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/dmitrijs2005/sharedrop/internal/common"
	"github.com/dmitrijs2005/sharedrop/internal/cryptox"
	"github.com/dmitrijs2005/sharedrop/internal/logging"
	sc "github.com/dmitrijs2005/sharedrop/internal/server/config"
	"github.com/dmitrijs2005/sharedrop/internal/server/metrics"
	"github.com/dmitrijs2005/sharedrop/internal/server/models"
	"github.com/dmitrijs2005/sharedrop/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/sharedrop/internal/server/storage"
	"github.com/google/uuid"
)

// UploadService owns both upload paths: direct uploads, which are encrypted
// with a fresh per-file key, and chunked uploads, which are assembled from
// the chunk store and stored in plaintext. The asymmetry is deliberate and
// observable: downloads of chunked uploads never require a key.
type UploadService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	config      *sc.Config
	blobs       storage.BlobStore
	chunks      *storage.ChunkStorage
	logger      logging.Logger
	metrics     *metrics.ServerMetrics
}

func NewUploadService(db *sql.DB, repomanager repomanager.RepositoryManager, config *sc.Config,
	blobs storage.BlobStore, chunks *storage.ChunkStorage, logger logging.Logger, m *metrics.ServerMetrics) *UploadService {
	return &UploadService{
		db:          db,
		repomanager: repomanager,
		config:      config,
		blobs:       blobs,
		chunks:      chunks,
		logger:      logger,
		metrics:     m,
	}
}

// UploadOptions carries the optional parameters of a direct upload.
type UploadOptions struct {
	// Passphrase, when non-empty, derives the encryption key from the
	// passphrase and the file id instead of generating a random one. The
	// caller can then re-derive the key later from the passphrase alone.
	Passphrase string

	// ExpiresInHours sets the file's expiry relative to now; nil or
	// non-positive means the file never expires.
	ExpiresInHours *int32

	// MaxDownloads caps successful downloads; nil means unlimited.
	MaxDownloads *int32
}

// UploadResult reports a completed direct upload. Key is the URL-safe
// encoded encryption key, returned exactly once and never persisted.
type UploadResult struct {
	FileID       uuid.UUID
	Key          string
	OriginalSize int64
	StoredSize   int64
	ExpiresAt    *time.Time
}

// Upload stores data encrypted under a fresh key and creates the file record.
func (s *UploadService) Upload(ctx context.Context, filename, mimeType string, data []byte, opts UploadOptions) (*UploadResult, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty file", common.ErrValidation)
	}
	if int64(len(data)) > s.config.MaxFileSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds limit of %d", common.ErrFileTooLarge, len(data), s.config.MaxFileSize)
	}
	if filename == "" {
		return nil, fmt.Errorf("%w: filename is required", common.ErrValidation)
	}

	fileID := uuid.New()

	var key *cryptox.Key
	if opts.Passphrase != "" {
		// The file id doubles as the derivation salt. It is public, which is
		// fine for a salt, and it makes the derivation reproducible from the
		// passphrase and the download URL alone.
		key = cryptox.DeriveKey([]byte(opts.Passphrase), fileID[:])
	} else {
		var err error
		key, err = cryptox.GenerateKey()
		if err != nil {
			return nil, err
		}
	}
	defer key.Wipe()

	encrypted, err := cryptox.Encrypt(data, key)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt file: %w", err)
	}
	encryptedName, err := cryptox.Encrypt([]byte(filename), key)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt filename: %w", err)
	}

	relativePath, err := s.blobs.Store(ctx, fileID, encrypted.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("failed to store file: %w", err)
	}

	file := &models.File{
		FileID:            fileID,
		OriginalSize:      int64(len(data)),
		StoredSize:        int64(len(encrypted.Ciphertext)),
		MimeType:          mimeType,
		FilePath:          relativePath,
		Nonce:             encrypted.Nonce,
		EncryptedFilename: encryptedName.Ciphertext,
		FilenameNonce:     encryptedName.Nonce,
		CreatedAt:         time.Now(),
		ExpiresAt:         expiryFromHours(opts.ExpiresInHours),
		MaxDownloads:      opts.MaxDownloads,
	}

	if err := s.repomanager.Files(s.db).Create(ctx, file); err != nil {
		if delErr := s.blobs.Delete(ctx, relativePath); delErr != nil {
			s.logger.Warn(ctx, "failed to remove blob after create failure", "file_id", fileID, "error", delErr)
		}
		return nil, fmt.Errorf("failed to create file record: %w", err)
	}

	s.metrics.UploadsTotal.Inc()
	s.metrics.UploadBytesTotal.Add(float64(len(data)))
	s.logger.Info(ctx, "file uploaded", "file_id", fileID, "size", len(data))

	return &UploadResult{
		FileID:       fileID,
		Key:          key.Encode(),
		OriginalSize: file.OriginalSize,
		StoredSize:   file.StoredSize,
		ExpiresAt:    file.ExpiresAt,
	}, nil
}

// StartChunkedUpload validates the chunking plan and persists a new session.
// A zero chunkSize selects the configured default.
func (s *UploadService) StartChunkedUpload(ctx context.Context, filename, mimeType string,
	totalSize, chunkSize int64, expiresInHours, maxDownloads *int32) (*models.UploadSession, error) {

	if filename == "" {
		return nil, fmt.Errorf("%w: filename is required", common.ErrValidation)
	}
	if totalSize <= 0 {
		return nil, fmt.Errorf("%w: total size must be positive", common.ErrValidation)
	}
	if totalSize > s.config.MaxFileSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds limit of %d", common.ErrFileTooLarge, totalSize, s.config.MaxFileSize)
	}
	if chunkSize == 0 {
		chunkSize = s.config.DefaultChunkSize
	}
	if chunkSize < 0 || chunkSize > s.config.MaxChunkSize {
		return nil, fmt.Errorf("%w: chunk size %d outside (0, %d]", common.ErrValidation, chunkSize, s.config.MaxChunkSize)
	}

	// The chunk counter is an int32; a plan that does not fit would silently
	// truncate and corrupt the completion threshold.
	totalChunks := (totalSize + chunkSize - 1) / chunkSize
	if totalChunks > math.MaxInt32 {
		return nil, fmt.Errorf("%w: plan of %d chunks exceeds %d", common.ErrValidation, totalChunks, math.MaxInt32)
	}

	now := time.Now()
	session := &models.UploadSession{
		UploadID:       uuid.New(),
		Filename:       filename,
		MimeType:       mimeType,
		TotalSize:      totalSize,
		ChunkSize:      chunkSize,
		TotalChunks:    int32(totalChunks),
		ExpiresInHours: expiresInHours,
		MaxDownloads:   maxDownloads,
		CreatedAt:      now,
		ExpiresAt:      now.Add(s.config.SessionTTL),
	}

	if err := s.repomanager.Sessions(s.db).Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create upload session: %w", err)
	}

	s.logger.Info(ctx, "chunked upload started", "upload_id", session.UploadID,
		"total_size", totalSize, "total_chunks", session.TotalChunks)
	return session, nil
}

// ChunkProgress reports session progress after a chunk delivery.
type ChunkProgress struct {
	UploadedChunks int32
	TotalChunks    int32
	Complete       bool
}

// UploadChunk accepts one chunk. Redelivery of an index already on disk is
// idempotent: the current progress is returned and the counter is untouched.
// The counter increment itself is applied atomically in the session store, so
// concurrent deliveries of different chunks never lose updates.
func (s *UploadService) UploadChunk(ctx context.Context, uploadID uuid.UUID, number int32, data []byte) (*ChunkProgress, error) {
	sessionRepo := s.repomanager.Sessions(s.db)

	session, err := sessionRepo.GetByUploadID(ctx, uploadID)
	if err != nil {
		return nil, err
	}
	if session.IsExpired() {
		return nil, common.ErrSessionExpired
	}
	if session.IsComplete() {
		return nil, common.ErrUploadComplete
	}
	if number < 0 || number >= session.TotalChunks {
		return nil, fmt.Errorf("%w: chunk number %d outside [0, %d)", common.ErrValidation, number, session.TotalChunks)
	}

	if s.chunks.Exists(uploadID, number) {
		return &ChunkProgress{
			UploadedChunks: session.UploadedChunks,
			TotalChunks:    session.TotalChunks,
			Complete:       session.IsComplete(),
		}, nil
	}

	if expected := session.ExpectedChunkSize(number); int64(len(data)) != expected {
		return nil, fmt.Errorf("%w: chunk %d is %d bytes, expected %d", common.ErrValidation, number, len(data), expected)
	}

	if err := s.chunks.Store(ctx, uploadID, number, data); err != nil {
		return nil, err
	}

	uploaded, err := sessionRepo.IncrementUploadedChunks(ctx, uploadID)
	if err != nil {
		return nil, err
	}

	s.metrics.ChunksTotal.Inc()
	return &ChunkProgress{
		UploadedChunks: uploaded,
		TotalChunks:    session.TotalChunks,
		Complete:       uploaded >= session.TotalChunks,
	}, nil
}

// UploadStatus describes a session's progress, including which chunk indices
// are actually on disk. An expired session is still reported, with Expired
// set, so a client can learn why its uploads are being rejected.
type UploadStatus struct {
	UploadID       uuid.UUID
	Filename       string
	MimeType       string
	TotalSize      int64
	ChunkSize      int64
	TotalChunks    int32
	UploadedChunks int32
	PresentChunks  []int32
	Complete       bool
	Expired        bool
	Progress       float64
}

// UploadStatus resolves the session and inspects the chunk store.
func (s *UploadService) UploadStatus(ctx context.Context, uploadID uuid.UUID) (*UploadStatus, error) {
	session, err := s.repomanager.Sessions(s.db).GetByUploadID(ctx, uploadID)
	if err != nil {
		return nil, err
	}

	present, err := s.chunks.ListPresent(uploadID)
	if err != nil {
		return nil, err
	}

	return &UploadStatus{
		UploadID:       session.UploadID,
		Filename:       session.Filename,
		MimeType:       session.MimeType,
		TotalSize:      session.TotalSize,
		ChunkSize:      session.ChunkSize,
		TotalChunks:    session.TotalChunks,
		UploadedChunks: session.UploadedChunks,
		PresentChunks:  present,
		Complete:       session.IsComplete(),
		Expired:        session.IsExpired(),
		Progress:       session.Progress(),
	}, nil
}

// CompleteResult reports the file produced by a completed chunked upload.
// There is no key: chunked uploads are stored in plaintext.
type CompleteResult struct {
	FileID uuid.UUID
	Size   int64
}

// CompleteChunkedUpload assembles the chunks, verifies the assembled length
// against the declared total, stores the result and creates the file record.
// Session and chunk cleanup afterwards is best effort: the sweeper reclaims
// whatever is left behind.
func (s *UploadService) CompleteChunkedUpload(ctx context.Context, uploadID uuid.UUID) (*CompleteResult, error) {
	sessionRepo := s.repomanager.Sessions(s.db)

	session, err := sessionRepo.GetByUploadID(ctx, uploadID)
	if err != nil {
		return nil, err
	}
	if session.IsExpired() {
		return nil, common.ErrSessionExpired
	}
	if !session.IsComplete() {
		return nil, fmt.Errorf("%w: %d of %d chunks uploaded", common.ErrChunkMissing, session.UploadedChunks, session.TotalChunks)
	}

	assembled, err := s.chunks.Assemble(ctx, uploadID, session.TotalChunks)
	if err != nil {
		return nil, err
	}
	if int64(len(assembled)) != session.TotalSize {
		return nil, fmt.Errorf("%w: assembled %d bytes, declared %d", common.ErrValidation, len(assembled), session.TotalSize)
	}

	fileID := uuid.New()
	relativePath, err := s.blobs.Store(ctx, fileID, assembled)
	if err != nil {
		return nil, fmt.Errorf("failed to store file: %w", err)
	}

	file := &models.File{
		FileID:            fileID,
		OriginalSize:      session.TotalSize,
		StoredSize:        session.TotalSize,
		MimeType:          session.MimeType,
		FilePath:          relativePath,
		EncryptedFilename: []byte(session.Filename),
		CreatedAt:         time.Now(),
		ExpiresAt:         expiryFromHours(session.ExpiresInHours),
		MaxDownloads:      session.MaxDownloads,
	}

	if err := s.repomanager.Files(s.db).Create(ctx, file); err != nil {
		if delErr := s.blobs.Delete(ctx, relativePath); delErr != nil {
			s.logger.Warn(ctx, "failed to remove blob after create failure", "file_id", fileID, "error", delErr)
		}
		return nil, fmt.Errorf("failed to create file record: %w", err)
	}

	if _, err := sessionRepo.DeleteByUploadID(ctx, uploadID); err != nil {
		s.logger.Warn(ctx, "failed to delete completed session", "upload_id", uploadID, "error", err)
	}
	if err := s.chunks.Cleanup(uploadID); err != nil {
		s.logger.Warn(ctx, "failed to cleanup chunks", "upload_id", uploadID, "error", err)
	}

	s.metrics.UploadsTotal.Inc()
	s.metrics.UploadBytesTotal.Add(float64(session.TotalSize))
	s.logger.Info(ctx, "chunked upload completed", "upload_id", uploadID, "file_id", fileID, "size", session.TotalSize)

	return &CompleteResult{FileID: fileID, Size: session.TotalSize}, nil
}

func expiryFromHours(hours *int32) *time.Time {
	if hours == nil || *hours <= 0 {
		return nil
	}
	t := time.Now().Add(time.Duration(*hours) * time.Hour)
	return &t
}
