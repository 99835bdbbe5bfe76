package repomanager

import (
	"context"
	"database/sql"

	"github.com/ipsvault/ips/internal/dbx"
	"github.com/ipsvault/ips/internal/server/repositories/checkresults"
	"github.com/ipsvault/ips/internal/server/repositories/refreshtokens"
	"github.com/ipsvault/ips/internal/server/repositories/resources"
	"github.com/ipsvault/ips/internal/server/repositories/tasks"
	"github.com/ipsvault/ips/internal/server/repositories/users"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
	Resources(db dbx.DBTX) resources.Repository
	Tasks(db dbx.DBTX) tasks.Repository
	CheckResults(db dbx.DBTX) checkresults.Repository
}
