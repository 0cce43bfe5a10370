package files

import (
	"context"
	"database/sql"
	"errors"
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

func fileRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"file_id", "original_size", "stored_size", "mime_type", "file_path",
		"nonce", "encrypted_filename", "filename_nonce", "created_at",
		"expires_at", "download_count", "max_downloads",
	})
}

func TestCreate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	fileID := uuid.New()
	now := time.Now()

	mock.ExpectExec(`(?s)^\s*INSERT\s+INTO\s+files\b`).
		WithArgs(fileID, int64(100), int64(116), sqlmock.AnyArg(), "55/0e/x.enc",
			[]byte("n"), []byte("ef"), []byte("fn"), now, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.Create(context.Background(), &models.File{
		FileID:            fileID,
		OriginalSize:      100,
		StoredSize:        116,
		FilePath:          "55/0e/x.enc",
		Nonce:             []byte("n"),
		EncryptedFilename: []byte("ef"),
		FilenameNonce:     []byte("fn"),
		CreatedAt:         now,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreate_PlaintextRecordSendsEmptyNonces(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	fileID := uuid.New()
	now := time.Now()

	// A plaintext record carries nil nonce slices; the NOT NULL bytea columns
	// must receive empty values, never SQL NULL.
	mock.ExpectExec(`(?s)^\s*INSERT\s+INTO\s+files\b`).
		WithArgs(fileID, int64(12), int64(12), sqlmock.AnyArg(), "55/0e/p.enc",
			[]byte{}, []byte("data.bin"), []byte{}, now, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.Create(context.Background(), &models.File{
		FileID:            fileID,
		OriginalSize:      12,
		StoredSize:        12,
		FilePath:          "55/0e/p.enc",
		Nonce:             nil,
		EncryptedFilename: []byte("data.bin"),
		FilenameNonce:     nil,
		CreatedAt:         now,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetByFileID_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	fileID := uuid.New()
	now := time.Now()
	expires := now.Add(time.Hour)

	mock.ExpectQuery(`(?s)^SELECT\s+.*FROM\s+files\s+WHERE\s+file_id\s*=\s*\$1$`).
		WithArgs(fileID).
		WillReturnRows(fileRows().AddRow(
			fileID, int64(100), int64(116), "text/plain", "55/0e/x.enc",
			[]byte("n"), []byte("ef"), []byte("fn"), now, expires, int32(2), int32(5)))

	file, err := repo.GetByFileID(context.Background(), fileID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if file.MimeType != "text/plain" {
		t.Fatalf("want mime text/plain, got %q", file.MimeType)
	}
	if file.ExpiresAt == nil || !file.ExpiresAt.Equal(expires) {
		t.Fatalf("bad expires_at: %v", file.ExpiresAt)
	}
	if file.MaxDownloads == nil || *file.MaxDownloads != 5 {
		t.Fatalf("bad max_downloads: %v", file.MaxDownloads)
	}
}

func TestGetByFileID_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	fileID := uuid.New()
	mock.ExpectQuery(`(?s)^SELECT\s+.*FROM\s+files\b`).
		WithArgs(fileID).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByFileID(context.Background(), fileID)
	if !errors.Is(err, common.ErrFileNotFound) {
		t.Fatalf("want ErrFileNotFound, got %v", err)
	}
}

func TestIncrementDownloadCount_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	fileID := uuid.New()
	mock.ExpectExec(`^UPDATE\s+files\s+SET\s+download_count\s*=\s*download_count\s*\+\s*1\s+WHERE\s+file_id\s*=\s*\$1$`).
		WithArgs(fileID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.IncrementDownloadCount(context.Background(), fileID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestIncrementDownloadCount_Missing(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	fileID := uuid.New()
	mock.ExpectExec(`^UPDATE\s+files\b`).
		WithArgs(fileID).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.IncrementDownloadCount(context.Background(), fileID)
	if !errors.Is(err, common.ErrFileNotFound) {
		t.Fatalf("want ErrFileNotFound, got %v", err)
	}
}

func TestDeleteByFileID(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	fileID := uuid.New()
	mock.ExpectExec(`^DELETE\s+FROM\s+files\s+WHERE\s+file_id\s*=\s*\$1$`).
		WithArgs(fileID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	existed, err := repo.DeleteByFileID(context.Background(), fileID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !existed {
		t.Fatalf("want existed=true")
	}

	mock.ExpectExec(`^DELETE\s+FROM\s+files\b`).
		WithArgs(fileID).
		WillReturnResult(sqlmock.NewResult(0, 0))

	existed, err = repo.DeleteByFileID(context.Background(), fileID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if existed {
		t.Fatalf("want existed=false")
	}
}

func TestSelectExpired(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	expired := now.Add(-time.Hour)
	fileID := uuid.New()

	mock.ExpectQuery(`(?s)^SELECT\s+.*FROM\s+files\s+WHERE\s+expires_at\s+IS\s+NOT\s+NULL\s+AND\s+expires_at\s*<\s*\$1$`).
		WithArgs(now).
		WillReturnRows(fileRows().AddRow(
			fileID, int64(10), int64(10), nil, "aa/bb/y.enc",
			[]byte{}, []byte("y.txt"), []byte{}, now.Add(-2*time.Hour), expired, int32(0), nil))

	result, err := repo.SelectExpired(context.Background(), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result) != 1 || result[0].FileID != fileID {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result[0].MaxDownloads != nil {
		t.Fatalf("want nil max_downloads")
	}
}

func TestDeleteExpired(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectExec(`^DELETE\s+FROM\s+files\s+WHERE\s+expires_at\s+IS\s+NOT\s+NULL\s+AND\s+expires_at\s*<\s*\$1$`).
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.DeleteExpired(context.Background(), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 3 {
		t.Fatalf("want 3 deleted, got %d", n)
	}
}
