//go:build integration
// +build integration

package integration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// statisticsByScaling runs one entity query for data collection 1001 and
// returns each scaling's result object keyed by autoProcScalingId.
func statisticsByScaling(t *testing.T, selection string) map[int]map[string]interface{} {
	t.Helper()

	r := seededResolver(t)
	result := execute(t, r, `
		query($representations: [_Any!]!) {
			_entities(representations: $representations) {
				... on Datasets {
					autoProcIntegration {
						autoProcProgram {
							autoProc {
								scaling {
									autoProcScalingId
									`+selection+`
								}
							}
						}
					}
				}
			}
		}`, representationsOf(1001))

	entities := entityList(t, result)
	require.Len(t, entities, 1)

	scalings := make(map[int]map[string]interface{})
	integrations := entityAt(t, entities, 0)["autoProcIntegration"].([]interface{})
	for _, raw := range integrations {
		programs := raw.(map[string]interface{})["autoProcProgram"].([]interface{})
		for _, p := range programs {
			scaling, ok := p.(map[string]interface{})["autoProc"].(map[string]interface{})["scaling"].(map[string]interface{})
			require.True(t, ok, "expected scaling object")
			scalings[scaling["autoProcScalingId"].(int)] = scaling
		}
	}
	require.Len(t, scalings, 2, "collection 1001 should reach scalings 701 and 702")
	return scalings
}

func TestStatisticsShellSelectionIsExact(t *testing.T) {
	scalings := statisticsByScaling(t, `statistics(statisticsType: INNER_SHELL) { scalingStatisticsType ccHalf }`)

	inner, ok := scalings[701]["statistics"].(map[string]interface{})
	require.True(t, ok, "expected inner shell statistics for scaling 701, got %T", scalings[701]["statistics"])
	assert.Equal(t, "INNER_SHELL", inner["scalingStatisticsType"])
	assert.InDelta(t, 0.998, inner["ccHalf"], 1e-3)

	// Scaling 702 only has an overall row. An inner shell request must not
	// fall back to it.
	assert.Nil(t, scalings[702]["statistics"])
}

func TestStatisticsDefaultsToOverallAndFirstRowWins(t *testing.T) {
	scalings := statisticsByScaling(t, `
		statistics { nTotalObservations ccAnomalous }
		outer: statistics(statisticsType: OUTER_SHELL) { ccHalf }`)

	// Scaling 701 has a duplicate overall row with nothing but ccHalf set.
	// The older row wins, so the populated columns come back.
	overall, ok := scalings[701]["statistics"].(map[string]interface{})
	require.True(t, ok, "expected overall statistics for scaling 701")
	assert.Equal(t, 123456, overall["nTotalObservations"])
	assert.InDelta(t, 0.62, overall["ccAnomalous"], 1e-3)

	outer, ok := scalings[701]["outer"].(map[string]interface{})
	require.True(t, ok, "expected outer shell statistics for scaling 701")
	assert.InDelta(t, 0.512, outer["ccHalf"], 1e-3)

	second, ok := scalings[702]["statistics"].(map[string]interface{})
	require.True(t, ok, "expected overall statistics for scaling 702")
	assert.Equal(t, 98765, second["nTotalObservations"])
	assert.Nil(t, scalings[702]["outer"])
}
