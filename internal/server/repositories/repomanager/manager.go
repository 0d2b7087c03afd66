package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/idgate/internal/dbx"
	"github.com/dmitrijs2005/idgate/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/idgate/internal/server/repositories/credentials"
	"github.com/dmitrijs2005/idgate/internal/server/repositories/identities"
	"github.com/dmitrijs2005/idgate/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/idgate/internal/server/repositories/sessions"
)

// RepositoryManager vends repositories bound to a DBTX so the same code runs
// on a pool or inside a transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Accounts(db dbx.DBTX) accounts.Repository
	Sessions(db dbx.DBTX) sessions.Repository
	Credentials(db dbx.DBTX) credentials.Repository
	Identities(db dbx.DBTX) identities.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
}
