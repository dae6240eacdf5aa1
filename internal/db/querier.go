package db

import (
	"context"
	"database/sql"
)

// Querier runs read-only catalog queries. *sql.DB satisfies it.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}
