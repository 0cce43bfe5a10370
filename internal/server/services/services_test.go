package services

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/dmitrijs2005/sharedrop/internal/dbx"
	"github.com/dmitrijs2005/sharedrop/internal/logging"
	sc "github.com/dmitrijs2005/sharedrop/internal/server/config"
	"github.com/dmitrijs2005/sharedrop/internal/server/metrics"
	"github.com/dmitrijs2005/sharedrop/internal/server/repositories/files"
	"github.com/dmitrijs2005/sharedrop/internal/server/repositories/sessions"
	"github.com/dmitrijs2005/sharedrop/internal/server/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

// memoryRepoManager vends the in-memory repositories regardless of the
// handle passed in, so services can run without a database.
type memoryRepoManager struct {
	files    *files.MemoryRepository
	sessions *sessions.MemoryRepository
}

func (m *memoryRepoManager) RunMigrations(ctx context.Context, db *sql.DB) error { return nil }
func (m *memoryRepoManager) Files(db dbx.DBTX) files.Repository                  { return m.files }
func (m *memoryRepoManager) Sessions(db dbx.DBTX) sessions.Repository            { return m.sessions }

type testEnv struct {
	root       string
	files      *files.MemoryRepository
	sessions   *sessions.MemoryRepository
	fileStore  *storage.FileStorage
	chunkStore *storage.ChunkStorage
	cfg        *sc.Config

	upload  *UploadService
	filesvc *FileService
	cleanup *CleanupService
}

func newTestMetrics(t *testing.T) *metrics.ServerMetrics {
	t.Helper()
	old := metrics.Registry
	metrics.Registry = prometheus.NewRegistry()
	t.Cleanup(func() { metrics.Registry = old })
	return metrics.InitMetrics()
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	root := t.TempDir()
	fileStore := storage.NewFileStorage(root)
	require.NoError(t, fileStore.Init())
	chunkStore := storage.NewChunkStorage(root)
	require.NoError(t, chunkStore.Init())

	cfg := &sc.Config{
		MaxFileSize:      1 << 20,
		DefaultChunkSize: 4,
		MaxChunkSize:     64,
		SessionTTL:       time.Hour,
		ChunkMaxAge:      2 * time.Hour,
		SweepInterval:    time.Minute,
	}

	rm := &memoryRepoManager{
		files:    files.NewMemoryRepository(),
		sessions: sessions.NewMemoryRepository(),
	}
	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	m := newTestMetrics(t)

	return &testEnv{
		root:       root,
		files:      rm.files,
		sessions:   rm.sessions,
		fileStore:  fileStore,
		chunkStore: chunkStore,
		cfg:        cfg,
		upload:     NewUploadService(nil, rm, cfg, fileStore, chunkStore, logger, m),
		filesvc:    NewFileService(nil, rm, fileStore, logger, m),
		cleanup:    NewCleanupService(nil, rm, cfg, fileStore, chunkStore, fileStore, logger, m),
	}
}

func int32ptr(v int32) *int32 { return &v }

func timeptr(v time.Time) *time.Time { return &v }
