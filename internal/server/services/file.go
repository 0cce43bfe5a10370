package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/sharedrop/internal/common"
	"github.com/dmitrijs2005/sharedrop/internal/cryptox"
	"github.com/dmitrijs2005/sharedrop/internal/logging"
	"github.com/dmitrijs2005/sharedrop/internal/server/metrics"
	"github.com/dmitrijs2005/sharedrop/internal/server/models"
	"github.com/dmitrijs2005/sharedrop/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/sharedrop/internal/server/storage"
	"github.com/google/uuid"
)

// FileService serves, inspects and deletes completed files.
type FileService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	blobs       storage.BlobStore
	logger      logging.Logger
	metrics     *metrics.ServerMetrics
}

func NewFileService(db *sql.DB, repomanager repomanager.RepositoryManager,
	blobs storage.BlobStore, logger logging.Logger, m *metrics.ServerMetrics) *FileService {
	return &FileService{
		db:          db,
		repomanager: repomanager,
		blobs:       blobs,
		logger:      logger,
		metrics:     m,
	}
}

// DownloadResult is a served file with its resolved plaintext filename.
type DownloadResult struct {
	Filename string
	MimeType string
	Data     []byte
}

// Download resolves the record, enforces the access policy, decrypts if the
// file is encrypted, and bumps the download counter exactly once on success.
//
// encodedKey must be empty for plaintext files and present for encrypted
// ones. Decrypt failures are reported as a single common.ErrInvalidKey so a
// wrong key and tampered data are indistinguishable.
func (s *FileService) Download(ctx context.Context, fileID uuid.UUID, encodedKey string) (*DownloadResult, error) {
	fileRepo := s.repomanager.Files(s.db)

	file, err := fileRepo.GetByFileID(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if file.IsExpired() {
		return nil, common.ErrFileExpired
	}
	if file.IsDownloadLimitReached() {
		return nil, common.ErrDownloadLimitReached
	}

	blob, err := s.blobs.Retrieve(ctx, file.FilePath)
	if err != nil {
		return nil, err
	}

	var data []byte
	var filename string

	switch content := file.Content().(type) {
	case models.PlainContent:
		if encodedKey != "" {
			return nil, common.ErrKeyNotAllowed
		}
		data = blob
		filename = content.Filename

	case models.EncryptedContent:
		if encodedKey == "" {
			return nil, fmt.Errorf("%w: encryption key required", common.ErrValidation)
		}
		key, err := cryptox.ParseKey(encodedKey)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrValidation, err)
		}
		defer key.Wipe()

		data, err = cryptox.Decrypt(blob, content.Nonce, key)
		if err != nil {
			return nil, common.ErrInvalidKey
		}
		name, err := cryptox.Decrypt(content.EncryptedFilename, content.FilenameNonce, key)
		if err != nil {
			return nil, common.ErrInvalidKey
		}
		filename = string(name)
	}

	if err := fileRepo.IncrementDownloadCount(ctx, fileID); err != nil {
		return nil, fmt.Errorf("failed to increment download count: %w", err)
	}

	s.metrics.DownloadsTotal.Inc()
	s.metrics.DownloadBytesTotal.Add(float64(len(data)))
	s.logger.Info(ctx, "file downloaded", "file_id", fileID, "size", len(data))

	return &DownloadResult{
		Filename: filename,
		MimeType: file.MimeType,
		Data:     data,
	}, nil
}

// DownloadWithPassphrase re-derives the key a passphrase upload was sealed
// under and downloads with it.
func (s *FileService) DownloadWithPassphrase(ctx context.Context, fileID uuid.UUID, passphrase string) (*DownloadResult, error) {
	key := cryptox.DeriveKey([]byte(passphrase), fileID[:])
	defer key.Wipe()
	return s.Download(ctx, fileID, key.Encode())
}

// FileInfo describes a file without serving its bytes. Filename is resolved
// only when the file is plaintext or a valid key is supplied.
type FileInfo struct {
	FileID               uuid.UUID
	Filename             string
	MimeType             string
	OriginalSize         int64
	Encrypted            bool
	CreatedAt            time.Time
	ExpiresAt            *time.Time
	DownloadCount        int32
	MaxDownloads         *int32
	Expired              bool
	DownloadLimitReached bool
}

// Info resolves metadata without reading the blob and without bumping the
// download counter. An expired or exhausted file is still described, with
// the corresponding flags set.
func (s *FileService) Info(ctx context.Context, fileID uuid.UUID, encodedKey string) (*FileInfo, error) {
	file, err := s.repomanager.Files(s.db).GetByFileID(ctx, fileID)
	if err != nil {
		return nil, err
	}

	info := &FileInfo{
		FileID:               file.FileID,
		MimeType:             file.MimeType,
		OriginalSize:         file.OriginalSize,
		CreatedAt:            file.CreatedAt,
		ExpiresAt:            file.ExpiresAt,
		DownloadCount:        file.DownloadCount,
		MaxDownloads:         file.MaxDownloads,
		Expired:              file.IsExpired(),
		DownloadLimitReached: file.IsDownloadLimitReached(),
	}

	switch content := file.Content().(type) {
	case models.PlainContent:
		if encodedKey != "" {
			return nil, common.ErrKeyNotAllowed
		}
		info.Filename = content.Filename

	case models.EncryptedContent:
		info.Encrypted = true
		if encodedKey == "" {
			return info, nil
		}
		key, err := cryptox.ParseKey(encodedKey)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrValidation, err)
		}
		defer key.Wipe()

		name, err := cryptox.Decrypt(content.EncryptedFilename, content.FilenameNonce, key)
		if err != nil {
			return nil, common.ErrInvalidKey
		}
		info.Filename = string(name)
	}

	return info, nil
}

// Delete removes the blob best-effort first and then the record, reporting
// whether the file existed.
func (s *FileService) Delete(ctx context.Context, fileID uuid.UUID) (bool, error) {
	fileRepo := s.repomanager.Files(s.db)

	file, err := fileRepo.GetByFileID(ctx, fileID)
	if err != nil {
		if errors.Is(err, common.ErrFileNotFound) {
			return false, nil
		}
		return false, err
	}

	if err := s.blobs.Delete(ctx, file.FilePath); err != nil {
		s.logger.Warn(ctx, "failed to delete blob", "file_id", fileID, "error", err)
	}

	existed, err := fileRepo.DeleteByFileID(ctx, fileID)
	if err != nil {
		return false, err
	}

	s.logger.Info(ctx, "file deleted", "file_id", fileID)
	return existed, nil
}
