package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/sharedrop/internal/common"
	"github.com/google/uuid"
)

const chunkPrefix = "chunk_"

// ChunkStorage holds in-flight upload chunks under a per-session directory.
// Chunk files are named by zero-padded index so a lexical sort of the
// directory yields assembly order.
type ChunkStorage struct {
	chunksRoot string
}

// NewChunkStorage creates a chunk storage under storageRoot/chunks.
func NewChunkStorage(storageRoot string) *ChunkStorage {
	return &ChunkStorage{chunksRoot: filepath.Join(storageRoot, "chunks")}
}

// Init creates the chunks root if it does not exist.
func (s *ChunkStorage) Init() error {
	if err := os.MkdirAll(s.chunksRoot, 0o770); err != nil {
		return fmt.Errorf("mkdir %s: %w", s.chunksRoot, err)
	}
	return nil
}

func (s *ChunkStorage) uploadDir(uploadID uuid.UUID) string {
	return filepath.Join(s.chunksRoot, uploadID.String())
}

func (s *ChunkStorage) chunkPath(uploadID uuid.UUID, number int32) string {
	return filepath.Join(s.uploadDir(uploadID), fmt.Sprintf("%s%06d", chunkPrefix, number))
}

// Store writes one chunk, creating the session directory if absent.
// Callers decide idempotence before calling: Store is never invoked for an
// index that already exists on disk.
func (s *ChunkStorage) Store(ctx context.Context, uploadID uuid.UUID, number int32, data []byte) error {
	path := s.chunkPath(uploadID, number)

	if err := os.MkdirAll(filepath.Dir(path), 0o770); err != nil {
		return fmt.Errorf("failed to create upload directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o660); err != nil {
		return fmt.Errorf("failed to write chunk: %w", err)
	}
	return nil
}

// Exists reports whether the chunk at number is already on disk.
func (s *ChunkStorage) Exists(uploadID uuid.UUID, number int32) bool {
	_, err := os.Stat(s.chunkPath(uploadID, number))
	return err == nil
}

// Size returns the byte length of a stored chunk, or common.ErrChunkMissing.
func (s *ChunkStorage) Size(uploadID uuid.UUID, number int32) (int64, error) {
	info, err := os.Stat(s.chunkPath(uploadID, number))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, fmt.Errorf("%w: chunk %d", common.ErrChunkMissing, number)
		}
		return 0, fmt.Errorf("failed to stat chunk: %w", err)
	}
	return info.Size(), nil
}

// ListPresent returns the chunk numbers present on disk, sorted ascending.
// Entries that do not parse as chunk files are ignored.
func (s *ChunkStorage) ListPresent(uploadID uuid.UUID) ([]int32, error) {
	entries, err := os.ReadDir(s.uploadDir(uploadID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read upload directory: %w", err)
	}

	var numbers []int32
	for _, entry := range entries {
		suffix, ok := strings.CutPrefix(entry.Name(), chunkPrefix)
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(suffix, 10, 32)
		if err != nil {
			continue
		}
		numbers = append(numbers, int32(n))
	}
	sort.Slice(numbers, func(i, j int) bool { return numbers[i] < numbers[j] })
	return numbers, nil
}

// Assemble reads chunks 0..totalChunks strictly in index order and
// concatenates them. A missing index aborts with common.ErrChunkMissing
// identifying the chunk. Callers pre-validate total size against configured
// maxima; Assemble itself imposes no cap.
func (s *ChunkStorage) Assemble(ctx context.Context, uploadID uuid.UUID, totalChunks int32) ([]byte, error) {
	var assembled []byte

	for number := int32(0); number < totalChunks; number++ {
		data, err := os.ReadFile(s.chunkPath(uploadID, number))
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("%w: chunk %d of upload %s", common.ErrChunkMissing, number, uploadID)
			}
			return nil, fmt.Errorf("failed to read chunk %d: %w", number, err)
		}
		assembled = append(assembled, data...)
	}
	return assembled, nil
}

// Cleanup removes the session's entire chunk directory, tolerating one that
// is already gone.
func (s *ChunkStorage) Cleanup(uploadID uuid.UUID) error {
	if err := os.RemoveAll(s.uploadDir(uploadID)); err != nil {
		return fmt.Errorf("failed to cleanup upload chunks: %w", err)
	}
	return nil
}

// SweepStale deletes session directories whose modification time is older
// than maxAge and returns how many were removed. This is a coarse backstop
// against sessions whose metadata was lost; it never consults the metadata
// store. A chunk directory's mtime only moves forward as chunks arrive, so
// a stale mtime is a safe (late) bound on the session's age.
func (s *ChunkStorage) SweepStale(ctx context.Context, maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(s.chunksRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read chunks directory: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.RemoveAll(filepath.Join(s.chunksRoot, entry.Name())); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}
