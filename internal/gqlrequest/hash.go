package gqlrequest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"maps"
	"slices"

	"github.com/graphql-go/graphql/language/ast"
	"github.com/graphql-go/graphql/language/printer"
)

const anonymousOperationName = "<anonymous>"

// canonicalizeAndHash reprints the selected operation plus every fragment
// it can reach, fragments in name order, and hashes the text together with
// the operation name. Formatting, comments and fragment ordering all wash
// out, so the hash identifies an operation across differently formatted
// copies of the same query.
func canonicalizeAndHash(op *ast.OperationDefinition, fragments map[string]*ast.FragmentDefinition) (string, string, error) {
	if op == nil {
		return "", "", fmt.Errorf("no operation to canonicalize")
	}

	defs := []ast.Node{op}
	for _, name := range reachableFragments(op.SelectionSet, fragments) {
		fragment := fragments[name]
		if fragment == nil {
			return "", "", fmt.Errorf("fragment %q not found", name)
		}
		defs = append(defs, fragment)
	}

	printed, ok := printer.Print(ast.NewDocument(&ast.Document{Definitions: defs})).(string)
	if !ok {
		return "", "", fmt.Errorf("printer returned a non-string document")
	}
	return printed, framedSHA256(printed, effectiveOperationName(op)), nil
}

// reachableFragments returns the sorted names of every fragment the
// selection tree spreads, directly or through other fragments. The seen set
// doubles as the cycle guard.
func reachableFragments(root *ast.SelectionSet, fragments map[string]*ast.FragmentDefinition) []string {
	if root == nil || len(fragments) == 0 {
		return nil
	}

	seen := map[string]bool{}
	pending := []*ast.SelectionSet{root}
	for len(pending) > 0 {
		set := pending[len(pending)-1]
		pending = pending[:len(pending)-1]
		if set == nil {
			continue
		}
		for _, selection := range set.Selections {
			switch sel := selection.(type) {
			case *ast.Field:
				pending = append(pending, sel.SelectionSet)
			case *ast.InlineFragment:
				pending = append(pending, sel.SelectionSet)
			case *ast.FragmentSpread:
				if sel.Name == nil || sel.Name.Value == "" || seen[sel.Name.Value] {
					continue
				}
				seen[sel.Name.Value] = true
				if fragment := fragments[sel.Name.Value]; fragment != nil {
					pending = append(pending, fragment.SelectionSet)
				}
			}
		}
	}

	return slices.Sorted(maps.Keys(seen))
}

func effectiveOperationName(op *ast.OperationDefinition) string {
	if op != nil && op.Name != nil && op.Name.Value != "" {
		return op.Name.Value
	}
	return anonymousOperationName
}

// framedSHA256 length-frames each part before hashing so that ("ab","c")
// and ("a","bc") cannot collide.
func framedSHA256(parts ...string) string {
	digest := sha256.New()
	for _, part := range parts {
		_, _ = fmt.Fprintf(digest, "%d:%s|", len(part), part)
	}
	return hex.EncodeToString(digest.Sum(nil))
}
