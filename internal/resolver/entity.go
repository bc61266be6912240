package resolver

import (
	"errors"
	"fmt"
	"math"

	"ispyb-graphql/internal/ispyb"
)

// ResolveEntityReference maps a federation representation onto a stub
// entity carrying only its key. The router already owns the full parent
// record; relationship fields fill in the rest, so no store access happens
// here and a failure affects only the one representation.
func ResolveEntityReference(typeName string, representation map[string]interface{}) (interface{}, error) {
	switch typeName {
	case "Datasets":
		id, err := datasetIDFromRepresentation(representation)
		if err != nil {
			return nil, err
		}
		return &ispyb.Datasets{ID: id}, nil
	default:
		return nil, fmt.Errorf("cannot resolve entity type %q", typeName)
	}
}

func datasetIDFromRepresentation(representation map[string]interface{}) (uint32, error) {
	raw, ok := representation["id"]
	if !ok {
		return 0, errors.New("Datasets representation missing id")
	}

	switch v := raw.(type) {
	case float64:
		// JSON numbers decode as float64.
		if v < 0 || v > math.MaxUint32 || v != math.Trunc(v) {
			return 0, fmt.Errorf("invalid Datasets id %v", raw)
		}
		return uint32(v), nil
	case int:
		if v < 0 || int64(v) > math.MaxUint32 {
			return 0, fmt.Errorf("invalid Datasets id %v", raw)
		}
		return uint32(v), nil
	case int64:
		if v < 0 || v > math.MaxUint32 {
			return 0, fmt.Errorf("invalid Datasets id %v", raw)
		}
		return uint32(v), nil
	case uint32:
		return v, nil
	default:
		return 0, fmt.Errorf("invalid Datasets id of type %T", raw)
	}
}
