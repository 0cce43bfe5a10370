package files

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/sharedrop/internal/common"
	"github.com/dmitrijs2005/sharedrop/internal/dbx"
	"github.com/dmitrijs2005/sharedrop/internal/server/models"
	"github.com/google/uuid"
)

// PostgresRepository implements Repository over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const fileColumns = `file_id, original_size, stored_size, mime_type, file_path,
		nonce, encrypted_filename, filename_nonce, created_at, expires_at,
		download_count, max_downloads`

func (r *PostgresRepository) Create(ctx context.Context, file *models.File) error {
	query := `
		INSERT INTO files (file_id, original_size, stored_size, mime_type, file_path,
			nonce, encrypted_filename, filename_nonce, created_at, expires_at, max_downloads)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11);
	`
	// The nonce columns are NOT NULL: a plaintext record carries nil slices,
	// which the driver would otherwise send as SQL NULL.
	_, err := r.db.ExecContext(ctx, query,
		file.FileID, file.OriginalSize, file.StoredSize, nullString(file.MimeType),
		file.FilePath, emptyBytes(file.Nonce), emptyBytes(file.EncryptedFilename),
		emptyBytes(file.FilenameNonce),
		file.CreatedAt, nullTime(file.ExpiresAt), nullInt32(file.MaxDownloads))
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByFileID(ctx context.Context, fileID uuid.UUID) (*models.File, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE file_id = $1`

	row := r.db.QueryRowContext(ctx, query, fileID)
	file, err := scanFile(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrFileNotFound
		}
		return nil, fmt.Errorf("failed to select file: %w", err)
	}
	return file, nil
}

// IncrementDownloadCount is a single conditional update so concurrent
// downloads of the same file never lose an increment.
func (r *PostgresRepository) IncrementDownloadCount(ctx context.Context, fileID uuid.UUID) error {
	query := `UPDATE files SET download_count = download_count + 1 WHERE file_id = $1`

	result, err := r.db.ExecContext(ctx, query, fileID)
	if err != nil {
		return fmt.Errorf("failed to increment download count: %w", err)
	}
	ra, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if ra == 0 {
		return common.ErrFileNotFound
	}
	return nil
}

func (r *PostgresRepository) DeleteByFileID(ctx context.Context, fileID uuid.UUID) (bool, error) {
	query := `DELETE FROM files WHERE file_id = $1`

	result, err := r.db.ExecContext(ctx, query, fileID)
	if err != nil {
		return false, fmt.Errorf("failed to delete file: %w", err)
	}
	ra, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected error: %w", err)
	}
	return ra > 0, nil
}

func (r *PostgresRepository) SelectExpired(ctx context.Context, now time.Time) ([]*models.File, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE expires_at IS NOT NULL AND expires_at < $1`

	rows, err := r.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to select expired files: %w", err)
	}
	defer rows.Close()

	var result []*models.File
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, file)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `DELETE FROM files WHERE expires_at IS NOT NULL AND expires_at < $1`

	result, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired files: %w", err)
	}
	ra, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}
	return ra, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFile(row rowScanner) (*models.File, error) {
	var (
		file         models.File
		mimeType     sql.NullString
		expiresAt    sql.NullTime
		maxDownloads sql.NullInt32
	)
	err := row.Scan(&file.FileID, &file.OriginalSize, &file.StoredSize, &mimeType,
		&file.FilePath, &file.Nonce, &file.EncryptedFilename, &file.FilenameNonce,
		&file.CreatedAt, &expiresAt, &file.DownloadCount, &maxDownloads)
	if err != nil {
		return nil, err
	}
	file.MimeType = mimeType.String
	if expiresAt.Valid {
		t := expiresAt.Time
		file.ExpiresAt = &t
	}
	if maxDownloads.Valid {
		v := maxDownloads.Int32
		file.MaxDownloads = &v
	}
	return &file, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// emptyBytes coalesces a nil slice to an empty one so it reaches the driver
// as an empty bytea instead of NULL.
func emptyBytes(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullInt32(v *int32) sql.NullInt32 {
	if v == nil {
		return sql.NullInt32{}
	}
	return sql.NullInt32{Int32: *v, Valid: true}
}
