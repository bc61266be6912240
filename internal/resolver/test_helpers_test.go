package resolver

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"ispyb-graphql/internal/dbexec"
)

// fakeRows feeds canned result sets to the scan helpers, popping one row
// per Next call.
type fakeRows struct {
	pending [][]any
	cur     []any
	err     error
}

func (r *fakeRows) Next() bool {
	if len(r.pending) == 0 {
		r.cur = nil
		return false
	}
	r.cur, r.pending = r.pending[0], r.pending[1:]
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	switch {
	case r.cur == nil:
		return errors.New("Scan with no current row")
	case len(r.cur) != len(dest):
		return fmt.Errorf("row width %d does not match %d destinations", len(r.cur), len(dest))
	}
	for i, value := range r.cur {
		if err := driverAssign(dest[i], value); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeRows) Err() error { return r.err }

func (r *fakeRows) Close() error { return nil }

// driverAssign mimics driver conversion for the destination shapes the
// row scanners use: value fields, pointer fields, and bool flags fed from
// tinyint columns.
func driverAssign(dest any, value any) error {
	ptr := reflect.ValueOf(dest)
	if ptr.Kind() != reflect.Ptr {
		return fmt.Errorf("destination %T is not a pointer", dest)
	}

	elem := ptr.Elem()
	if value == nil {
		elem.Set(reflect.Zero(elem.Type()))
		return nil
	}
	if elem.Kind() == reflect.Ptr {
		if elem.IsNil() {
			elem.Set(reflect.New(elem.Type().Elem()))
		}
		return driverAssign(elem.Interface(), value)
	}
	if elem.Kind() == reflect.Bool {
		// Drivers hand tinyint(1) back as int64.
		switch v := value.(type) {
		case bool:
			elem.SetBool(v)
		case int64:
			elem.SetBool(v != 0)
		default:
			return fmt.Errorf("cannot store %T into bool", value)
		}
		return nil
	}

	vv := reflect.ValueOf(value)
	if vv.Type().AssignableTo(elem.Type()) {
		elem.Set(vv)
		return nil
	}
	if vv.Type().ConvertibleTo(elem.Type()) {
		elem.Set(vv.Convert(elem.Type()))
		return nil
	}
	return fmt.Errorf("cannot store %T into %T", value, dest)
}

// fakeExecutor records every statement and serves each queued response in
// turn. Calls past the queue get an empty result set.
type fakeExecutor struct {
	responses [][][]any
	rowsErr   error
	queryErr  error
	calls     int
	queries   []string
	args      [][]any
}

func (e *fakeExecutor) QueryContext(_ context.Context, query string, args ...any) (dbexec.Rows, error) {
	call := e.calls
	e.calls++
	e.queries = append(e.queries, query)
	e.args = append(e.args, args)
	if e.queryErr != nil {
		return nil, e.queryErr
	}
	next := &fakeRows{err: e.rowsErr}
	if call < len(e.responses) {
		next.pending = e.responses[call]
	}
	return next, nil
}
