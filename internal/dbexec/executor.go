// Package dbexec defines the narrow query surface the relationship fetchers
// run against. Production wires in a live pool; tests substitute fakes.
package dbexec

import (
	"context"
	"database/sql"
)

// Rows is the subset of sql.Rows the scan helpers consume, small enough for
// a fake to feed fetchers canned result sets.
type Rows interface {
	Close() error
	Err() error
	Next() bool
	Scan(dest ...any) error
}

// QueryExecutor issues read-only statements. The subgraph never writes, so
// there is no Exec counterpart.
type QueryExecutor interface {
	QueryContext(ctx context.Context, query string, args ...any) (Rows, error)
}

// StandardExecutor runs statements on a connection pool.
type StandardExecutor struct {
	db *sql.DB
}

// NewStandardExecutor wraps a pool in the QueryExecutor interface.
func NewStandardExecutor(db *sql.DB) *StandardExecutor {
	return &StandardExecutor{db: db}
}

// QueryContext forwards to the pool. A nil handle reports sql.ErrConnDone
// rather than panicking.
func (e *StandardExecutor) QueryContext(ctx context.Context, query string, args ...any) (Rows, error) {
	if e.db != nil {
		return e.db.QueryContext(ctx, query, args...)
	}
	return nil, sql.ErrConnDone
}
