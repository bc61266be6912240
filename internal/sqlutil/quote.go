// Package sqlutil holds small helpers for composing MySQL statements.
package sqlutil

import "strings"

// QuoteIdentifier wraps a table or column name in backticks, doubling any
// backtick inside it.
func QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}
