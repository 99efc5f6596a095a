package repomanager

import (
	"context"
	"database/sql"

	"github.com/casanet/remote-server/internal/dbx"
	"github.com/casanet/remote-server/internal/server/repositories/servers"
	"github.com/casanet/remote-server/internal/server/repositories/sessions"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Servers(db dbx.DBTX) servers.Repository
	Sessions(db dbx.DBTX) sessions.Repository
}
