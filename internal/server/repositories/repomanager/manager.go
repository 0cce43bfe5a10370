package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/sharedrop/internal/dbx"
	"github.com/dmitrijs2005/sharedrop/internal/server/repositories/files"
	"github.com/dmitrijs2005/sharedrop/internal/server/repositories/sessions"
)

// RepositoryManager vends repository implementations and owns schema setup.
type RepositoryManager interface {
	RunMigrations(ctx context.Context, db *sql.DB) error
	Files(db dbx.DBTX) files.Repository
	Sessions(db dbx.DBTX) sessions.Repository
}
