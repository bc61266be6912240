//go:build integration
// +build integration

package integration

import (
	"context"
	"testing"

	"ispyb-graphql/internal/dbexec"
	"ispyb-graphql/internal/resolver"
	"ispyb-graphql/internal/schema"
	"ispyb-graphql/internal/testutil/ispybdb"

	"github.com/graphql-go/graphql"
	"github.com/stretchr/testify/require"
)

const (
	schemaFixture = "../fixtures/ispyb_schema.sql"
	seedFixture   = "../fixtures/processed_data_seed.sql"
)

// seededDB provisions a fresh database and loads the processed-data
// fixtures. Skipped in short mode and when ISPYB_TEST_DSN is unset.
func seededDB(t *testing.T) *ispybdb.TestDB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	tdb := ispybdb.New(t)
	tdb.LoadSchema(t, schemaFixture)
	tdb.LoadFixtures(t, seedFixture)
	return tdb
}

func seededResolver(t *testing.T) *resolver.Resolver {
	t.Helper()
	return resolver.NewResolver(dbexec.NewStandardExecutor(seededDB(t).DB), nil)
}

// execute runs one request the way the server does: a fresh loader registry
// in the context, then a single graphql.Do.
func execute(t *testing.T, r *resolver.Resolver, request string, variables map[string]interface{}) *graphql.Result {
	t.Helper()
	return executeWith(t, r, r.NewLoaders(), request, variables)
}

// executeWith reuses an explicit loader registry, for tests that inspect
// loader stats or cross-request caching.
func executeWith(t *testing.T, r *resolver.Resolver, loaders *resolver.Loaders, request string, variables map[string]interface{}) *graphql.Result {
	t.Helper()

	s, err := schema.Build(r)
	require.NoError(t, err)

	return graphql.Do(graphql.Params{
		Schema:         s,
		RequestString:  request,
		VariableValues: variables,
		Context:        resolver.WithLoaders(context.Background(), loaders),
	})
}

func datasetRep(id int) map[string]interface{} {
	return map[string]interface{}{"__typename": "Datasets", "id": id}
}

func representationsOf(ids ...int) map[string]interface{} {
	reps := make([]interface{}, 0, len(ids))
	for _, id := range ids {
		reps = append(reps, datasetRep(id))
	}
	return map[string]interface{}{"representations": reps}
}

// entityList digs the _entities payload out of a result.
func entityList(t *testing.T, result *graphql.Result) []interface{} {
	t.Helper()

	require.Empty(t, result.Errors, "query should not return errors")
	data, ok := result.Data.(map[string]interface{})
	require.True(t, ok, "result data should be an object, got %T", result.Data)
	entities, ok := data["_entities"].([]interface{})
	require.True(t, ok, "expected _entities list, got %T", data["_entities"])
	return entities
}

func entityAt(t *testing.T, entities []interface{}, idx int) map[string]interface{} {
	t.Helper()

	require.Greater(t, len(entities), idx)
	entity, ok := entities[idx].(map[string]interface{})
	require.True(t, ok, "entity %d should be an object, got %T", idx, entities[idx])
	return entity
}
