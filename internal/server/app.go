// Package server wires together the configuration, database, storage
// backends and services, and runs the background sweeper until shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/sharedrop/internal/logging"
	"github.com/dmitrijs2005/sharedrop/internal/server/config"
	"github.com/dmitrijs2005/sharedrop/internal/server/metrics"
	"github.com/dmitrijs2005/sharedrop/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/sharedrop/internal/server/services"
	"github.com/dmitrijs2005/sharedrop/internal/server/storage"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type App struct {
	config  *config.Config
	logger  logging.Logger
	db      *sql.DB
	upload  *services.UploadService
	files   *services.FileService
	cleanup *services.CleanupService
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	chunks := storage.NewChunkStorage(cfg.StorageDir)
	if err := chunks.Init(); err != nil {
		return nil, err
	}

	// Final blobs go to the configured backend; chunks always stay local.
	var blobs storage.BlobStore
	var fileStore *storage.FileStorage
	switch cfg.StorageBackend {
	case config.BackendS3:
		blobs, err = storage.NewS3Storage(ctx, storage.S3Options{
			RootUser:     cfg.S3RootUser,
			RootPassword: cfg.S3RootPassword,
			Bucket:       cfg.S3Bucket,
			Region:       cfg.S3Region,
			BaseEndpoint: cfg.S3BaseEndpoint,
		})
		if err != nil {
			return nil, err
		}
	default:
		fileStore = storage.NewFileStorage(cfg.StorageDir)
		if err := fileStore.Init(); err != nil {
			return nil, err
		}
		blobs = fileStore
	}

	m := metrics.InitMetrics()

	return &App{
		config:  cfg,
		logger:  logger,
		db:      db,
		upload:  services.NewUploadService(db, rm, cfg, blobs, chunks, logger, m),
		files:   services.NewFileService(db, rm, blobs, logger, m),
		cleanup: services.NewCleanupService(db, rm, cfg, blobs, chunks, fileStore, logger, m),
	}, nil
}

// Uploads exposes the upload service to the transport layer.
func (app *App) Uploads() *services.UploadService { return app.upload }

// Files exposes the file service to the transport layer.
func (app *App) Files() *services.FileService { return app.files }

// Cleanup exposes the cleanup service, mainly for on-demand sweeps.
func (app *App) Cleanup() *services.CleanupService { return app.cleanup }

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// Run starts the background sweeper and blocks until a termination signal or
// context cancellation.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.cleanup.Run(ctx)
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "failed to close db", "error", err)
	}
}
