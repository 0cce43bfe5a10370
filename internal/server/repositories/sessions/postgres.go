package sessions

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

const sessionColumns = `upload_id, filename, mime_type, total_size, total_chunks,
		uploaded_chunks, chunk_size, expires_in_hours, max_downloads, created_at, expires_at`

func (r *PostgresRepository) Create(ctx context.Context, session *models.UploadSession) error {
	query := `
		INSERT INTO upload_sessions (upload_id, filename, mime_type, total_size, total_chunks,
			uploaded_chunks, chunk_size, expires_in_hours, max_downloads, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11);
	`
	_, err := r.db.ExecContext(ctx, query,
		session.UploadID, session.Filename, nullString(session.MimeType),
		session.TotalSize, session.TotalChunks, session.UploadedChunks, session.ChunkSize,
		nullInt32(session.ExpiresInHours), nullInt32(session.MaxDownloads),
		session.CreatedAt, session.ExpiresAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByUploadID(ctx context.Context, uploadID uuid.UUID) (*models.UploadSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM upload_sessions WHERE upload_id = $1`

	row := r.db.QueryRowContext(ctx, query, uploadID)
	session, err := scanSession(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to select upload session: %w", err)
	}
	return session, nil
}

// IncrementUploadedChunks applies the increment inside a single UPDATE so two
// chunks accepted concurrently for the same session both land; the previous
// read-then-write approach is a lost-update hazard.
func (r *PostgresRepository) IncrementUploadedChunks(ctx context.Context, uploadID uuid.UUID) (int32, error) {
	query := `
		UPDATE upload_sessions SET uploaded_chunks = uploaded_chunks + 1
		WHERE upload_id = $1
		RETURNING uploaded_chunks;
	`
	var uploaded int32
	err := r.db.QueryRowContext(ctx, query, uploadID).Scan(&uploaded)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, common.ErrSessionNotFound
		}
		return 0, fmt.Errorf("failed to increment uploaded chunks: %w", err)
	}
	return uploaded, nil
}

func (r *PostgresRepository) DeleteByUploadID(ctx context.Context, uploadID uuid.UUID) (bool, error) {
	query := `DELETE FROM upload_sessions WHERE upload_id = $1`

	result, err := r.db.ExecContext(ctx, query, uploadID)
	if err != nil {
		return false, fmt.Errorf("failed to delete upload session: %w", err)
	}
	ra, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected error: %w", err)
	}
	return ra > 0, nil
}

func (r *PostgresRepository) SelectExpired(ctx context.Context, now time.Time) ([]*models.UploadSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM upload_sessions WHERE expires_at < $1`

	rows, err := r.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to select expired upload sessions: %w", err)
	}
	defer rows.Close()

	var result []*models.UploadSession
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, session)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `DELETE FROM upload_sessions WHERE expires_at < $1`

	result, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired upload sessions: %w", err)
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

func scanSession(row rowScanner) (*models.UploadSession, error) {
	var (
		session        models.UploadSession
		mimeType       sql.NullString
		expiresInHours sql.NullInt32
		maxDownloads   sql.NullInt32
	)
	err := row.Scan(&session.UploadID, &session.Filename, &mimeType,
		&session.TotalSize, &session.TotalChunks, &session.UploadedChunks, &session.ChunkSize,
		&expiresInHours, &maxDownloads, &session.CreatedAt, &session.ExpiresAt)
	if err != nil {
		return nil, err
	}
	session.MimeType = mimeType.String
	if expiresInHours.Valid {
		v := expiresInHours.Int32
		session.ExpiresInHours = &v
	}
	if maxDownloads.Valid {
		v := maxDownloads.Int32
		session.MaxDownloads = &v
	}
	return &session, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt32(v *int32) sql.NullInt32 {
	if v == nil {
		return sql.NullInt32{}
	}
	return sql.NullInt32{Int32: *v, Valid: true}
}
