package resolver

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ispyb-graphql/internal/ispyb"
)

func TestResolveEntityReferenceDatasets(t *testing.T) {
	tests := []struct {
		name string
		id   interface{}
		want uint32
	}{
		{name: "json number", id: float64(42), want: 42},
		{name: "int", id: int(7), want: 7},
		{name: "int64", id: int64(9), want: 9},
		{name: "uint32", id: uint32(3), want: 3},
		{name: "max id", id: float64(math.MaxUint32), want: math.MaxUint32},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			entity, err := ResolveEntityReference("Datasets", map[string]interface{}{
				"__typename": "Datasets",
				"id":         tc.id,
			})
			require.NoError(t, err)
			assert.Equal(t, &ispyb.Datasets{ID: tc.want}, entity, "the stub carries only the key")
		})
	}
}

func TestResolveEntityReferenceUnknownType(t *testing.T) {
	_, err := ResolveEntityReference("BeamlineSetup", map[string]interface{}{"id": float64(1)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `cannot resolve entity type "BeamlineSetup"`)
}

func TestResolveEntityReferenceRejectsBadIDs(t *testing.T) {
	tests := []struct {
		name           string
		representation map[string]interface{}
	}{
		{name: "missing id", representation: map[string]interface{}{"__typename": "Datasets"}},
		{name: "string id", representation: map[string]interface{}{"id": "42"}},
		{name: "negative", representation: map[string]interface{}{"id": float64(-1)}},
		{name: "fractional", representation: map[string]interface{}{"id": float64(41.5)}},
		{name: "overflow", representation: map[string]interface{}{"id": float64(math.MaxUint32) + 1}},
		{name: "null id", representation: map[string]interface{}{"id": nil}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ResolveEntityReference("Datasets", tc.representation)
			assert.Error(t, err)
		})
	}
}
