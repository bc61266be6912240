package schema

import (
	"fmt"
	"strconv"

	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/language/ast"

	"ispyb-graphql/internal/ispyb"
	"ispyb-graphql/internal/resolver"
)

// addFederationFields wires the router-facing machinery onto the query root.
// These fields are served but never exported in the SDL; the router composes
// them itself.
func addFederationFields(fields graphql.Fields, datasetsType *graphql.Object) {
	entityType := newEntityUnion(datasetsType)
	anyType := newAnyScalar()

	fields["_entities"] = &graphql.Field{
		Type:        graphql.NewNonNull(graphql.NewList(entityType)),
		Description: "Resolves entity representations supplied by the federation router.",
		Args: graphql.FieldConfigArgument{
			"representations": &graphql.ArgumentConfig{
				Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(anyType))),
			},
		},
		Resolve: resolveEntities,
	}
	fields["_service"] = &graphql.Field{
		Type: graphql.NewNonNull(newServiceType()),
		Resolve: func(p graphql.ResolveParams) (interface{}, error) {
			return map[string]interface{}{"sdl": FederationSDL}, nil
		},
	}
}

// resolveEntities maps each representation to its own thunk, so one bad
// reference errors element-wise while the rest of the list resolves. The
// stubs the thunks return carry only the key; nested fields resolve through
// the request's loaders afterwards.
func resolveEntities(p graphql.ResolveParams) (interface{}, error) {
	raw, ok := p.Args["representations"].([]interface{})
	if !ok {
		return nil, fmt.Errorf("representations must be a list")
	}

	entities := make([]interface{}, len(raw))
	for i, item := range raw {
		index := i
		representation, isMap := item.(map[string]interface{})
		entities[i] = func() (interface{}, error) {
			if !isMap {
				return nil, fmt.Errorf("malformed representation at index %d", index)
			}
			typeName, _ := representation["__typename"].(string)
			if typeName == "" {
				return nil, fmt.Errorf("representation at index %d is missing __typename", index)
			}
			return resolver.ResolveEntityReference(typeName, representation)
		}
	}
	return entities, nil
}

// newEntityUnion lists the types resolvable by reference. DataProcessing is
// keyed but declared unresolvable, so Datasets is the only member.
func newEntityUnion(datasetsType *graphql.Object) *graphql.Union {
	return graphql.NewUnion(graphql.UnionConfig{
		Name:        "_Entity",
		Description: "Entities resolvable by reference through _entities.",
		Types:       []*graphql.Object{datasetsType},
		ResolveType: func(p graphql.ResolveTypeParams) *graphql.Object {
			if _, ok := p.Value.(*ispyb.Datasets); ok {
				return datasetsType
			}
			return nil
		},
	})
}

func newServiceType() *graphql.Object {
	return graphql.NewObject(graphql.ObjectConfig{
		Name: "_Service",
		Fields: graphql.Fields{
			"sdl": &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
		},
	})
}

// newAnyScalar passes representations through untouched: a __typename plus
// the entity's key fields, shaped by the router.
func newAnyScalar() *graphql.Scalar {
	return graphql.NewScalar(graphql.ScalarConfig{
		Name:        "_Any",
		Description: "A federation entity representation.",
		Serialize: func(value interface{}) interface{} {
			return value
		},
		ParseValue: func(value interface{}) interface{} {
			return value
		},
		ParseLiteral: parseAnyLiteral,
	})
}

func parseAnyLiteral(valueAST ast.Value) interface{} {
	switch v := valueAST.(type) {
	case *ast.ObjectValue:
		out := make(map[string]interface{}, len(v.Fields))
		for _, field := range v.Fields {
			out[field.Name.Value] = parseAnyLiteral(field.Value)
		}
		return out
	case *ast.ListValue:
		out := make([]interface{}, len(v.Values))
		for i, item := range v.Values {
			out[i] = parseAnyLiteral(item)
		}
		return out
	case *ast.StringValue:
		return v.Value
	case *ast.EnumValue:
		return v.Value
	case *ast.BooleanValue:
		return v.Value
	case *ast.IntValue:
		n, err := strconv.Atoi(v.Value)
		if err != nil {
			return nil
		}
		return n
	case *ast.FloatValue:
		f, err := strconv.ParseFloat(v.Value, 64)
		if err != nil {
			return nil
		}
		return f
	default:
		return nil
	}
}
