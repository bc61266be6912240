package resolver

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// errAccessDenied stands in for MySQL privilege errors so a response never
// echoes grant details back to the caller.
var errAccessDenied = errors.New("access denied")

// errNoLoaders reports a resolver invoked outside a batching request scope.
var errNoLoaders = errors.New("no batch loaders in request context")

// Server error codes raised when the session user lacks a grant.
const (
	mysqlErrDBAccessDenied     = 1044 // schema grant missing
	mysqlErrTableAccessDenied  = 1142 // SELECT denied on a table
	mysqlErrColumnAccessDenied = 1143 // SELECT denied on a column
)

// normalizeQueryError swaps privilege failures for errAccessDenied and hands
// everything else back untouched. Every key of a failed batch observes the
// same normalized error.
func normalizeQueryError(err error) error {
	var driverErr *mysql.MySQLError
	if errors.As(err, &driverErr) && deniedByGrants(driverErr.Number) {
		return errAccessDenied
	}
	return err
}

func deniedByGrants(code uint16) bool {
	switch code {
	case mysqlErrDBAccessDenied, mysqlErrTableAccessDenied, mysqlErrColumnAccessDenied:
		return true
	}
	return false
}
