package storage

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/sharedrop/internal/common"
	"github.com/google/uuid"
)

// fileExt marks blobs owned by the file store.
const fileExt = ".enc"

// FileStorage stores final file blobs under a two-level directory structure
// derived from the file id, e.g. 55/0e/550e8400-....enc. Spreading files
// across up to 65536 directories bounds per-directory entry counts.
type FileStorage struct {
	root string
}

// NewFileStorage creates a file storage over the given root directory.
func NewFileStorage(root string) *FileStorage {
	return &FileStorage{root: root}
}

// Init creates the storage root if it does not exist.
func (s *FileStorage) Init() error {
	if err := os.MkdirAll(s.root, 0o770); err != nil {
		return fmt.Errorf("mkdir %s: %w", s.root, err)
	}
	return nil
}

// FilePath derives the blob path for a file id, relative to the root.
// The first four hex characters of the id select the two directory levels.
func (s *FileStorage) FilePath(fileID uuid.UUID) string {
	return filepath.FromSlash(shardedBlobPath(fileID))
}

// Store writes data to the derived path, creating parent directories as
// needed, and returns the path relative to the storage root.
func (s *FileStorage) Store(ctx context.Context, fileID uuid.UUID, data []byte) (string, error) {
	relative := s.FilePath(fileID)
	full := filepath.Join(s.root, relative)

	if err := os.MkdirAll(filepath.Dir(full), 0o770); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(full, data, 0o660); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	return relative, nil
}

// Retrieve reads the blob at root+relativePath. A missing blob is reported as
// common.ErrFileNotFound, distinct from other I/O failures.
func (s *FileStorage) Retrieve(ctx context.Context, relativePath string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.root, relativePath))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, common.ErrFileNotFound
		}
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return data, nil
}

// Delete removes the blob, tolerating one that is already absent, and then
// removes any parent directories left empty, stopping at the storage root.
func (s *FileStorage) Delete(ctx context.Context, relativePath string) error {
	full := filepath.Join(s.root, relativePath)

	if err := os.Remove(full); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to delete file: %w", err)
	}

	s.cleanupEmptyDirs(filepath.Dir(full))
	return nil
}

// cleanupEmptyDirs walks upward removing empty directories. os.Remove fails
// on a non-empty directory, which ends the walk; that race with concurrent
// writers elsewhere in the tree is benign and the failure is swallowed.
func (s *FileStorage) cleanupEmptyDirs(dir string) {
	root := filepath.Clean(s.root)
	for {
		dir = filepath.Clean(dir)
		if dir == root || !strings.HasPrefix(dir, root+string(os.PathSeparator)) {
			return
		}
		if err := os.Remove(dir); err != nil {
			return
		}
		dir = filepath.Dir(dir)
	}
}

// Stats walks the tree counting blobs with the store's extension and summing
// their sizes.
func (s *FileStorage) Stats() (*Stats, error) {
	stats := &Stats{}

	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() || filepath.Ext(path) != fileExt {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		stats.TotalFiles++
		stats.TotalSize += info.Size()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to calculate storage stats: %w", err)
	}
	return stats, nil
}
