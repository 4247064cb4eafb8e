package repomanager

import (
	"context"
	"database/sql"

	"github.com/ivolkov/taskvault/internal/dbx"
	"github.com/ivolkov/taskvault/internal/server/repositories/tasks"
	"github.com/ivolkov/taskvault/internal/server/repositories/users"
)

// RepositoryManager vends repository implementations bound to a DBTX and
// exposes a schema migration hook.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Tasks(db dbx.DBTX) tasks.Repository
}
