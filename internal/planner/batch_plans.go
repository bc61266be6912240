package planner

import (
	"fmt"
	"strings"

	"ispyb-graphql/internal/sqlutil"

	sq "github.com/Masterminds/squirrel"
)

// PlanRelationshipBatch builds the SQL for a batched relationship lookup:
// one SELECT returning every row whose key column matches any of the
// collected keys, ordered by the given column so grouped results are
// deterministic.
func PlanRelationshipBatch(table string, columns []string, keyColumn string, keys []interface{}, orderColumn string) (SQLQuery, error) {
	switch {
	case len(keys) == 0:
		return SQLQuery{}, nil
	case len(columns) == 0:
		return SQLQuery{}, fmt.Errorf("relationship batch requires at least one column")
	case keyColumn == "":
		return SQLQuery{}, fmt.Errorf("relationship batch requires a key column")
	}

	builder := sq.Select(quotedColumnNames(columns)...).
		From(sqlutil.QuoteIdentifier(table)).
		Where(sq.Eq{sqlutil.QuoteIdentifier(keyColumn): keys})
	return finishSelect(builder, orderColumn)
}

// PlanCompositeKeyBatch builds the SQL for a batched lookup keyed on a
// composite column tuple. The predicate matches exactly the requested
// tuples, never the cross product of their per-column values.
func PlanCompositeKeyBatch(table string, columns []string, keyColumns []string, tuples []KeyTuple, orderColumn string) (SQLQuery, error) {
	switch {
	case len(tuples) == 0:
		return SQLQuery{}, nil
	case len(columns) == 0:
		return SQLQuery{}, fmt.Errorf("composite-key batch requires at least one column")
	case len(keyColumns) == 0:
		return SQLQuery{}, fmt.Errorf("composite-key batch requires at least one key column")
	}

	whereSQL, whereArgs, err := tupleMembership(quotedColumnNames(keyColumns), tuples)
	if err != nil {
		return SQLQuery{}, err
	}

	builder := sq.Select(quotedColumnNames(columns)...).
		From(sqlutil.QuoteIdentifier(table)).
		Where(sq.Expr(whereSQL, whereArgs...))
	return finishSelect(builder, orderColumn)
}

// finishSelect applies the optional deterministic ordering and renders the
// builder with MySQL-style placeholders.
func finishSelect(builder sq.SelectBuilder, orderColumn string) (SQLQuery, error) {
	if orderColumn != "" {
		builder = builder.OrderBy(sqlutil.QuoteIdentifier(orderColumn))
	}
	stmt, args, err := builder.PlaceholderFormat(sq.Question).ToSql()
	if err != nil {
		return SQLQuery{}, err
	}
	return SQLQuery{Args: args, SQL: stmt}, nil
}

// tupleMembership renders an IN predicate over the key columns. One column
// gets a plain membership list; several get row-value syntax so only the
// exact combinations match.
func tupleMembership(quotedColumns []string, tuples []KeyTuple) (string, []interface{}, error) {
	arity := len(quotedColumns)
	if arity == 0 {
		return "", nil, fmt.Errorf("tuple membership needs at least one column")
	}

	args := make([]interface{}, 0, len(tuples)*arity)
	for _, tuple := range tuples {
		if len(tuple.Values) != arity {
			return "", nil, fmt.Errorf("tuple width mismatch: expected %d, got %d", arity, len(tuple.Values))
		}
		args = append(args, tuple.Values...)
	}

	if arity == 1 {
		return fmt.Sprintf("%s IN (%s)", quotedColumns[0], sq.Placeholders(len(tuples))), args, nil
	}

	row := "(" + sq.Placeholders(arity) + ")"
	rows := make([]string, len(tuples))
	for i := range rows {
		rows[i] = row
	}
	return fmt.Sprintf("(%s) IN (%s)", strings.Join(quotedColumns, ", "), strings.Join(rows, ", ")), args, nil
}

func quotedColumnNames(columns []string) []string {
	quoted := make([]string, 0, len(columns))
	for _, col := range columns {
		quoted = append(quoted, sqlutil.QuoteIdentifier(col))
	}
	return quoted
}
