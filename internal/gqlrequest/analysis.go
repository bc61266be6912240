// Package gqlrequest decodes and analyzes GraphQL requests once, ahead of
// execution, so logging, metrics and tracing all read the same derived
// metadata from the context instead of re-parsing the document.
package gqlrequest

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/graphql-go/graphql/language/ast"
	"github.com/graphql-go/graphql/language/parser"
	"github.com/graphql-go/graphql/language/source"
)

// Analysis holds everything derived from one request document: the parsed
// AST, the selected operation, shape counters and the operation hash.
type Analysis struct {
	// RequestedOperationName echoes the envelope's operationName before
	// any selection rule runs.
	RequestedOperationName string
	Envelope               Envelope

	// Fragments indexes every named fragment in Document so the walkers
	// can expand spreads without rescanning definitions.
	Document  *ast.Document
	Operation *ast.OperationDefinition
	Fragments map[string]*ast.FragmentDefinition

	OperationType string
	OperationName string

	// Shape counters for the selected operation.
	FieldCount     int
	VariableCount  int
	SelectionDepth int

	// EntityResolution is true when the operation selects _entities, i.e.
	// the router is resolving representations against this subgraph.
	// ServiceSDL is true when it asks for _service { sdl }.
	EntityResolution bool
	ServiceSDL       bool

	OperationHash      string
	CanonicalOperation string

	// One failure slot per pipeline stage. Err surfaces the first.
	DecodeError     error
	ParseError      error
	CanonicalizeErr error
	SelectionError  error
}

// Err returns the first failure hit while decoding or analyzing, or nil.
// A non-nil Err never blocks execution; the handler parses independently.
func (a *Analysis) Err() error {
	if a == nil {
		return nil
	}
	switch {
	case a.DecodeError != nil:
		return a.DecodeError
	case a.ParseError != nil:
		return a.ParseError
	case a.SelectionError != nil:
		return a.SelectionError
	default:
		return a.CanonicalizeErr
	}
}

// AnalyzeRequest decodes the request and analyzes whatever it carried. A
// decode failure still yields an Analysis so callers get the envelope data.
func AnalyzeRequest(r *http.Request) *Analysis {
	env, err := DecodeEnvelope(r)
	a := AnalyzeEnvelope(env)
	a.DecodeError = err
	return a
}

// AnalyzeEnvelope parses the document in env and derives the metadata the
// observability layers consume. Failures are recorded on the returned
// Analysis rather than aborting, leaving later fields at their zero values.
func AnalyzeEnvelope(env Envelope) *Analysis {
	a := &Analysis{
		Envelope:               env,
		Fragments:              map[string]*ast.FragmentDefinition{},
		RequestedOperationName: env.OperationName,
	}
	if strings.TrimSpace(env.Query) == "" {
		return a
	}

	src := source.NewSource(&source.Source{Body: []byte(env.Query), Name: "graphql"})
	doc, err := parser.Parse(parser.ParseParams{Source: src})
	if err != nil {
		a.ParseError = err
		return a
	}
	a.Document = doc
	a.Fragments = fragmentIndex(doc)

	op, err := pickOperation(doc, env.OperationName)
	if err == nil && op == nil {
		err = fmt.Errorf("no operation selected")
	}
	if err != nil {
		a.SelectionError = err
		return a
	}
	a.Operation = op

	a.OperationType = string(op.Operation)
	a.OperationName = effectiveOperationName(op)
	a.VariableCount = len(op.VariableDefinitions)
	a.FieldCount, a.SelectionDepth = measureSelections(op, a.Fragments)
	a.EntityResolution, a.ServiceSDL = rootFederationFields(op, a.Fragments)

	canonical, hash, err := canonicalizeAndHash(op, a.Fragments)
	if err != nil {
		a.CanonicalizeErr = err
		return a
	}
	a.CanonicalOperation = canonical
	a.OperationHash = hash
	return a
}

func fragmentIndex(doc *ast.Document) map[string]*ast.FragmentDefinition {
	index := map[string]*ast.FragmentDefinition{}
	if doc == nil {
		return index
	}
	for _, def := range doc.Definitions {
		if fragment, ok := def.(*ast.FragmentDefinition); ok && fragment != nil && fragment.Name != nil && fragment.Name.Value != "" {
			index[fragment.Name.Value] = fragment
		}
	}
	return index
}

// pickOperation applies the operation selection rules from GraphQL over
// HTTP: a requested name must match a named operation, and an unnamed
// request is only unambiguous when the document holds exactly one.
func pickOperation(doc *ast.Document, requested string) (*ast.OperationDefinition, error) {
	if doc == nil {
		return nil, fmt.Errorf("document is nil")
	}

	var ops []*ast.OperationDefinition
	for _, def := range doc.Definitions {
		if op, ok := def.(*ast.OperationDefinition); ok && op != nil {
			ops = append(ops, op)
		}
	}

	switch {
	case requested != "":
		for _, op := range ops {
			if op.Name != nil && op.Name.Value == requested {
				return op, nil
			}
		}
		return nil, fmt.Errorf("unknown operation named %q", requested)
	case len(ops) == 1:
		return ops[0], nil
	case len(ops) == 0:
		return nil, fmt.Errorf("request does not include an operation")
	default:
		return nil, fmt.Errorf("operationName is required when request has multiple operations")
	}
}

// selectionStats accumulates field count and selection depth across one
// operation. A named fragment contributes once no matter how many spreads
// reference it, and the expanded set also terminates fragment cycles.
type selectionStats struct {
	fragments map[string]*ast.FragmentDefinition
	expanded  map[string]bool
	fields    int
	depth     int
}

func measureSelections(op *ast.OperationDefinition, fragments map[string]*ast.FragmentDefinition) (fields, depth int) {
	stats := &selectionStats{fragments: fragments, expanded: map[string]bool{}}
	stats.walk(op.SelectionSet, 1)
	return stats.fields, stats.depth
}

func (s *selectionStats) walk(set *ast.SelectionSet, level int) {
	if set == nil {
		return
	}
	if level > s.depth {
		s.depth = level
	}
	for _, selection := range set.Selections {
		switch sel := selection.(type) {
		case *ast.Field:
			s.fields++
			s.walk(sel.SelectionSet, level+1)
		case *ast.InlineFragment:
			s.walk(sel.SelectionSet, level)
		case *ast.FragmentSpread:
			if sel.Name == nil || sel.Name.Value == "" || s.expanded[sel.Name.Value] {
				continue
			}
			s.expanded[sel.Name.Value] = true
			if fragment := s.fragments[sel.Name.Value]; fragment != nil {
				s.walk(fragment.SelectionSet, level)
			}
		}
	}
}

// rootFederationFields reports whether the operation selects _entities or
// _service at the top level. Fragments spread at the root are followed;
// nothing below a concrete field is, since a nested field with one of those
// names belongs to some other type.
func rootFederationFields(op *ast.OperationDefinition, fragments map[string]*ast.FragmentDefinition) (entities, service bool) {
	followed := map[string]bool{}
	pending := []*ast.SelectionSet{op.SelectionSet}
	for len(pending) > 0 {
		set := pending[0]
		pending = pending[1:]
		if set == nil {
			continue
		}
		for _, selection := range set.Selections {
			switch sel := selection.(type) {
			case *ast.Field:
				if sel.Name == nil {
					continue
				}
				entities = entities || sel.Name.Value == "_entities"
				service = service || sel.Name.Value == "_service"
			case *ast.InlineFragment:
				pending = append(pending, sel.SelectionSet)
			case *ast.FragmentSpread:
				if sel.Name == nil || sel.Name.Value == "" || followed[sel.Name.Value] {
					continue
				}
				followed[sel.Name.Value] = true
				if fragment := fragments[sel.Name.Value]; fragment != nil {
					pending = append(pending, fragment.SelectionSet)
				}
			}
		}
	}
	return entities, service
}
