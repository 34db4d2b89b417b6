package repomanager

import (
	"context"
	"database/sql"

	"github.com/redinc23/mangu-publishing-site-sub001/internal/dbx"
	"github.com/redinc23/mangu-publishing-site-sub001/internal/server/repositories/entitlements"
	"github.com/redinc23/mangu-publishing-site-sub001/internal/server/repositories/orders"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Orders(db dbx.DBTX) orders.Repository
	Entitlements(db dbx.DBTX) entitlements.Repository
}
