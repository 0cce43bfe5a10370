package sessions

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/sharedrop/internal/common"
	"github.com/dmitrijs2005/sharedrop/internal/server/models"
	"github.com/google/uuid"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func sessionRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"upload_id", "filename", "mime_type", "total_size", "total_chunks",
		"uploaded_chunks", "chunk_size", "expires_in_hours", "max_downloads",
		"created_at", "expires_at",
	})
}

func TestCreate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	uploadID := uuid.New()
	now := time.Now()

	mock.ExpectExec(`(?s)^\s*INSERT\s+INTO\s+upload_sessions\b`).
		WithArgs(uploadID, "big.iso", sqlmock.AnyArg(), int64(12<<20), int32(3),
			int32(0), int64(5<<20), sqlmock.AnyArg(), sqlmock.AnyArg(), now, now.Add(time.Hour)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.Create(context.Background(), &models.UploadSession{
		UploadID:    uploadID,
		Filename:    "big.iso",
		TotalSize:   12 << 20,
		TotalChunks: 3,
		ChunkSize:   5 << 20,
		CreatedAt:   now,
		ExpiresAt:   now.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetByUploadID_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	uploadID := uuid.New()
	now := time.Now()

	mock.ExpectQuery(`(?s)^SELECT\s+.*FROM\s+upload_sessions\s+WHERE\s+upload_id\s*=\s*\$1$`).
		WithArgs(uploadID).
		WillReturnRows(sessionRows().AddRow(
			uploadID, "big.iso", nil, int64(12<<20), int32(3),
			int32(2), int64(5<<20), int32(24), nil, now, now.Add(time.Hour)))

	session, err := repo.GetByUploadID(context.Background(), uploadID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session.UploadedChunks != 2 || session.TotalChunks != 3 {
		t.Fatalf("bad counters: %+v", session)
	}
	if session.ExpiresInHours == nil || *session.ExpiresInHours != 24 {
		t.Fatalf("bad expires_in_hours: %v", session.ExpiresInHours)
	}
	if session.MaxDownloads != nil {
		t.Fatalf("want nil max_downloads")
	}
}

func TestGetByUploadID_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	uploadID := uuid.New()
	mock.ExpectQuery(`(?s)^SELECT\s+.*FROM\s+upload_sessions\b`).
		WithArgs(uploadID).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByUploadID(context.Background(), uploadID)
	if !errors.Is(err, common.ErrSessionNotFound) {
		t.Fatalf("want ErrSessionNotFound, got %v", err)
	}
}

func TestIncrementUploadedChunks_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	uploadID := uuid.New()
	mock.ExpectQuery(`(?s)^\s*UPDATE\s+upload_sessions\s+SET\s+uploaded_chunks\s*=\s*uploaded_chunks\s*\+\s*1\s+WHERE\s+upload_id\s*=\s*\$1\s+RETURNING\s+uploaded_chunks;?$`).
		WithArgs(uploadID).
		WillReturnRows(sqlmock.NewRows([]string{"uploaded_chunks"}).AddRow(int32(3)))

	uploaded, err := repo.IncrementUploadedChunks(context.Background(), uploadID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if uploaded != 3 {
		t.Fatalf("want 3, got %d", uploaded)
	}
}

func TestIncrementUploadedChunks_Missing(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	uploadID := uuid.New()
	mock.ExpectQuery(`(?s)^\s*UPDATE\s+upload_sessions\b`).
		WithArgs(uploadID).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.IncrementUploadedChunks(context.Background(), uploadID)
	if !errors.Is(err, common.ErrSessionNotFound) {
		t.Fatalf("want ErrSessionNotFound, got %v", err)
	}
}

func TestDeleteByUploadID(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	uploadID := uuid.New()
	mock.ExpectExec(`^DELETE\s+FROM\s+upload_sessions\s+WHERE\s+upload_id\s*=\s*\$1$`).
		WithArgs(uploadID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	existed, err := repo.DeleteByUploadID(context.Background(), uploadID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !existed {
		t.Fatalf("want existed=true")
	}
}

func TestDeleteExpired(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectExec(`^DELETE\s+FROM\s+upload_sessions\s+WHERE\s+expires_at\s*<\s*\$1$`).
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := repo.DeleteExpired(context.Background(), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Fatalf("want 2 deleted, got %d", n)
	}
}

// MemoryRepository must not lose concurrent increments for one session.
func TestMemoryRepository_ConcurrentIncrements(t *testing.T) {
	repo := NewMemoryRepository()
	uploadID := uuid.New()

	err := repo.Create(context.Background(), &models.UploadSession{
		UploadID:    uploadID,
		TotalChunks: 100,
		ExpiresAt:   time.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.IncrementUploadedChunks(context.Background(), uploadID); err != nil {
				t.Errorf("increment: %v", err)
			}
		}()
	}
	wg.Wait()

	session, err := repo.GetByUploadID(context.Background(), uploadID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if session.UploadedChunks != 100 {
		t.Fatalf("lost updates: want 100, got %d", session.UploadedChunks)
	}
}
