package schema

import (
	"strings"
	"testing"

	"github.com/graphql-go/graphql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ispyb-graphql/internal/ispyb"
	"ispyb-graphql/internal/resolver"
)

var domainTypeNames = []string{
	"AutoProc",
	"AutoProcIntegration",
	"AutoProcProgram",
	"AutoProcScaling",
	"AutoProcScalingStatistics",
	"DataProcessing",
	"Datasets",
	"ProcessingJob",
	"ProcessingJobParameter",
}

func buildSchema(t *testing.T) graphql.Schema {
	t.Helper()

	s, err := Build(resolver.NewResolver(nil, nil))
	require.NoError(t, err)
	return s
}

func objectType(t *testing.T, s graphql.Schema, name string) *graphql.Object {
	t.Helper()

	obj, ok := s.TypeMap()[name].(*graphql.Object)
	require.True(t, ok, "expected object type %q", name)
	return obj
}

func assertNullableListOfNonNull(t *testing.T, typ graphql.Type, elemName string) {
	t.Helper()

	list, ok := typ.(*graphql.List)
	require.True(t, ok, "expected nullable List, got %T", typ)
	nonNull, ok := list.OfType.(*graphql.NonNull)
	require.True(t, ok, "expected inner NonNull, got %T", list.OfType)
	obj, ok := nonNull.OfType.(*graphql.Object)
	require.True(t, ok, "expected Object element, got %T", nonNull.OfType)
	assert.Equal(t, elemName, obj.Name())
}

func TestBuildAssemblesDomainTypes(t *testing.T) {
	s := buildSchema(t)

	for _, name := range domainTypeNames {
		assert.Contains(t, s.TypeMap(), name)
	}

	datasets := objectType(t, s, "Datasets")
	fields := datasets.Fields()
	assertNullableListOfNonNull(t, fields["processedData"].Type, "DataProcessing")
	assertNullableListOfNonNull(t, fields["processingJobs"].Type, "ProcessingJob")
	assertNullableListOfNonNull(t, fields["autoProcIntegration"].Type, "AutoProcIntegration")

	id, ok := fields["id"].Type.(*graphql.NonNull)
	require.True(t, ok)
	assert.Equal(t, graphql.Int, id.OfType)
}

func TestRelationshipFieldsAreNullable(t *testing.T) {
	s := buildSchema(t)

	program := objectType(t, s, "AutoProcProgram")
	_, nonNull := program.Fields()["autoProc"].Type.(*graphql.NonNull)
	assert.False(t, nonNull, "a failed batch must null only its own field")

	processing := objectType(t, s, "DataProcessing")
	_, nonNull = processing.Fields()["downloadUrl"].Type.(*graphql.NonNull)
	assert.False(t, nonNull, "a signing failure must null only downloadUrl")
}

func TestStatisticsArgumentDefaultsToOverall(t *testing.T) {
	s := buildSchema(t)

	scaling := objectType(t, s, "AutoProcScaling")
	statistics := scaling.Fields()["statistics"]
	require.NotNil(t, statistics)

	require.Len(t, statistics.Args, 1)
	arg := statistics.Args[0]
	assert.Equal(t, "statisticsType", arg.Name())
	assert.Equal(t, ispyb.StatisticsTypeOverall, arg.DefaultValue)
}

func TestStatisticsTypeEnumMapsStoredLiterals(t *testing.T) {
	s := buildSchema(t)

	enum, ok := s.TypeMap()["StatisticsType"].(*graphql.Enum)
	require.True(t, ok)

	want := map[string]ispyb.StatisticsType{
		"OVERALL":     ispyb.StatisticsTypeOverall,
		"INNER_SHELL": ispyb.StatisticsTypeInnerShell,
		"OUTER_SHELL": ispyb.StatisticsTypeOuterShell,
	}
	values := enum.Values()
	require.Len(t, values, len(want))
	for _, value := range values {
		stored, ok := want[value.Name]
		require.True(t, ok, "unexpected enum value %q", value.Name)
		assert.Equal(t, stored, value.Value)
	}
}

func TestQueryRootCarriesFederationMachinery(t *testing.T) {
	s := buildSchema(t)

	query := objectType(t, s, "Query")
	fields := query.Fields()
	require.Contains(t, fields, "query")
	require.Contains(t, fields, "_entities")
	require.Contains(t, fields, "_service")

	entities := fields["_entities"]
	require.Len(t, entities.Args, 1)
	assert.Equal(t, "representations", entities.Args[0].Name())
	assert.Equal(t, "[_Any!]!", entities.Args[0].Type.String())

	union, ok := s.TypeMap()["_Entity"].(*graphql.Union)
	require.True(t, ok)
	require.Len(t, union.Types(), 1)
	assert.Equal(t, "Datasets", union.Types()[0].Name())
}

func TestFederationSDL(t *testing.T) {
	assert.Contains(t, FederationSDL, `type Datasets @key(fields: "id")`)
	assert.Contains(t, FederationSDL, `type DataProcessing @key(fields: "id", resolvable: false)`)
	assert.Contains(t, FederationSDL, "enum StatisticsType")
	assert.Contains(t, FederationSDL, "statistics(statisticsType: StatisticsType = OVERALL)")

	assert.NotContains(t, FederationSDL, "_entities", "federation machinery is composed by the router")
	assert.NotContains(t, FederationSDL, "_service")
	assert.NotContains(t, FederationSDL, "_Any")
}

func TestSDLListsEveryServedField(t *testing.T) {
	s := buildSchema(t)

	for _, name := range domainTypeNames {
		obj := objectType(t, s, name)
		for fieldName, field := range obj.Fields() {
			declared := fieldName + ":"
			if len(field.Args) > 0 {
				declared = fieldName + "("
			}
			assert.Contains(t, FederationSDL, declared, "type %s field %s missing from SDL", name, fieldName)
		}
	}
}

func TestWriteSDL(t *testing.T) {
	var out strings.Builder
	require.NoError(t, WriteSDL(&out))
	assert.Equal(t, FederationSDL, out.String())
}
