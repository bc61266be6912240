// Package planner builds the parameterized SQL statements the relationship
// batch loaders execute. Every plan is a single read-only SELECT whose
// predicate is either set membership on one key column or tuple membership
// on a composite key.
package planner

// SQLQuery is one executable SELECT, the statement text plus the values
// bound to its placeholders.
type SQLQuery struct {
	Args []interface{}
	SQL  string
}

// KeyTuple represents an ordered composite batch key used in tuple plans.
type KeyTuple struct {
	Values []interface{}
}
