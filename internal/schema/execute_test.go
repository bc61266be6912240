package schema

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/graphql-go/graphql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ispyb-graphql/internal/dbexec"
	"ispyb-graphql/internal/ispyb"
	"ispyb-graphql/internal/resolver"
)

// The statements the planner emits for each loader kind, spelled out so a
// change to the generated SQL fails loudly here.
const (
	processingJobsBatchSQL = "SELECT `processingJobId`, `dataCollectionId`, `displayName`, `automatic` FROM `ProcessingJob` WHERE `dataCollectionId` IN (?,?) ORDER BY `processingJobId`"
	jobParametersBatchSQL  = "SELECT `processingJobParameterId`, `processingJobId`, `parameterKey`, `parameterValue` FROM `ProcessingJobParameter` WHERE `processingJobId` IN (?,?) ORDER BY `processingJobParameterId`"
	processedDataSingleSQL = "SELECT `dataCollectionFileAttachmentId`, `dataCollectionId`, `fileFullPath`, `fileName` FROM `DataCollectionFileAttachment` WHERE `dataCollectionId` IN (?) ORDER BY `dataCollectionFileAttachmentId`"
	processingJobSingleSQL = "SELECT `processingJobId`, `dataCollectionId`, `displayName`, `automatic` FROM `ProcessingJob` WHERE `dataCollectionId` IN (?) ORDER BY `processingJobId`"
	integrationSingleSQL   = "SELECT `autoProcIntegrationId`, `dataCollectionId`, `autoProcProgramId`, `refinedXBeam`, `refinedYBeam` FROM `AutoProcIntegration` WHERE `dataCollectionId` IN (?) ORDER BY `autoProcIntegrationId`"
	programSingleSQL       = "SELECT `autoProcProgramId`, `processingPrograms`, `processingStatus`, `processingMessage`, `processingJobId` FROM `AutoProcProgram` WHERE `autoProcProgramId` IN (?) ORDER BY `autoProcProgramId`"
	autoProcSingleSQL      = "SELECT `autoProcId`, `autoProcProgramId`, `spaceGroup`, `refinedCell_a`, `refinedCell_b`, `refinedCell_c`, `refinedCell_alpha`, `refinedCell_beta`, `refinedCell_gamma` FROM `AutoProc` WHERE `autoProcProgramId` IN (?) ORDER BY `autoProcId`"
	scalingSingleSQL       = "SELECT `autoProcScalingId`, `autoProcId` FROM `AutoProcScaling` WHERE `autoProcId` IN (?) ORDER BY `autoProcScalingId`"
	statisticsSingleSQL    = "SELECT `autoProcScalingStatisticsId`, `autoProcScalingId`, `scalingStatisticsType`, `ccHalf`, `ccAnomalous`, `nTotalObservations`, `nTotalUniqueObservations`, `resolutionLimitLow`, `resolutionLimitHigh`, `rMeasAllIPlusIMinus`, `anomalousCompleteness`, `anomalousMultiplicity`, `rMerge`, `completeness`, `multiplicity`, `meanIOverSigI`, `resioversigi2` FROM `AutoProcScalingStatistics` WHERE (`autoProcScalingId`, `scalingStatisticsType`) IN ((?,?)) ORDER BY `autoProcScalingStatisticsId`"
)

// openMock wires up a sqlmock pool that matches statements by regexp and
// closes it with the test.
func openMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, mock
}

// expectBatch pins one loader statement together with its IN-list arguments
// and the rows it should produce.
func expectBatch(mock sqlmock.Sqlmock, stmt string, rows *sqlmock.Rows, args ...driver.Value) {
	q := mock.ExpectQuery(regexp.QuoteMeta(stmt))
	if len(args) > 0 {
		q = q.WithArgs(args...)
	}
	q.WillReturnRows(rows)
}

// executeRequest runs one request the way the server does: a fresh loader
// registry injected into the context, then a single graphql.Do.
func executeRequest(t *testing.T, r *resolver.Resolver, request string, variables map[string]interface{}) *graphql.Result {
	t.Helper()

	s, err := Build(r)
	require.NoError(t, err)

	ctx := resolver.WithLoaders(context.Background(), r.NewLoaders())
	return graphql.Do(graphql.Params{
		Schema:         s,
		RequestString:  request,
		VariableValues: variables,
		Context:        ctx,
	})
}

func datasetRepresentation(id int) map[string]interface{} {
	return map[string]interface{}{"__typename": "Datasets", "id": id}
}

func TestEntitiesShareBatchesAcrossRepresentations(t *testing.T) {
	db, mock := openMock(t)

	// Two representations, two relationship depths, two statements total.
	// Jobs for both datasets coalesce before any parameter key is queued,
	// and the parameter batch then spans both datasets' jobs.
	expectBatch(mock, processingJobsBatchSQL,
		sqlmock.NewRows(ispyb.ProcessingJobColumns).
			AddRow(21, 7, "fast_dp", 1).
			AddRow(22, 9, "xia2 dials", 0),
		7, 9)
	expectBatch(mock, jobParametersBatchSQL,
		sqlmock.NewRows(ispyb.ProcessingJobParameterColumns).
			AddRow(31, 21, "spacegroup", "P1").
			AddRow(32, 22, "resolution", "1.8"),
		21, 22)

	r := resolver.NewResolver(dbexec.NewStandardExecutor(db), nil)
	result := executeRequest(t, r, `
		query($representations: [_Any!]!) {
			_entities(representations: $representations) {
				... on Datasets {
					id
					processingJobs {
						displayName
						parameters {
							parameterKey
						}
					}
				}
			}
		}`, map[string]interface{}{
		"representations": []interface{}{datasetRepresentation(7), datasetRepresentation(9)},
	})

	require.Empty(t, result.Errors)
	assert.Equal(t, map[string]interface{}{
		"_entities": []interface{}{
			map[string]interface{}{
				"id": 7,
				"processingJobs": []interface{}{
					map[string]interface{}{
						"displayName": "fast_dp",
						"parameters": []interface{}{
							map[string]interface{}{"parameterKey": "spacegroup"},
						},
					},
				},
			},
			map[string]interface{}{
				"id": 9,
				"processingJobs": []interface{}{
					map[string]interface{}{
						"displayName": "xia2 dials",
						"parameters": []interface{}{
							map[string]interface{}{"parameterKey": "resolution"},
						},
					},
				},
			},
		},
	}, result.Data)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAutoProcChainExecutesOneBatchPerLevel(t *testing.T) {
	db, mock := openMock(t)

	expectBatch(mock, integrationSingleSQL,
		sqlmock.NewRows(ispyb.AutoProcIntegrationColumns).
			AddRow(301, 7, 55, 0.1, 0.2),
		7)
	expectBatch(mock, programSingleSQL,
		sqlmock.NewRows(ispyb.AutoProcProgramColumns).
			AddRow(55, "xia2 dials", 1, "processing successful", 21),
		55)
	expectBatch(mock, autoProcSingleSQL,
		sqlmock.NewRows(ispyb.AutoProcColumns).
			AddRow(401, 55, "P 1 2 1", 68.3, 126.2, 263.7, 90.0, 90.0, 90.0),
		55)
	expectBatch(mock, scalingSingleSQL,
		sqlmock.NewRows(ispyb.AutoProcScalingColumns).
			AddRow(501, 401),
		401)
	expectBatch(mock, statisticsSingleSQL,
		sqlmock.NewRows(ispyb.AutoProcScalingStatisticsColumns).
			AddRow(601, 501, "innerShell", 0.912, nil, nil, nil, nil, nil, nil, nil, nil, nil, nil, nil, nil, nil),
		501, "innerShell")

	r := resolver.NewResolver(dbexec.NewStandardExecutor(db), nil)
	result := executeRequest(t, r, `
		query($representations: [_Any!]!) {
			_entities(representations: $representations) {
				... on Datasets {
					autoProcIntegration {
						autoProcProgram {
							autoProc {
								spaceGroup
								scaling {
									statistics(statisticsType: INNER_SHELL) {
										ccHalf
									}
								}
							}
						}
					}
				}
			}
		}`, map[string]interface{}{
		"representations": []interface{}{datasetRepresentation(7)},
	})

	require.Empty(t, result.Errors)
	entities := result.Data.(map[string]interface{})["_entities"].([]interface{})
	require.Len(t, entities, 1)
	integrations := entities[0].(map[string]interface{})["autoProcIntegration"].([]interface{})
	require.Len(t, integrations, 1)
	programs := integrations[0].(map[string]interface{})["autoProcProgram"].([]interface{})
	require.Len(t, programs, 1)
	autoProc := programs[0].(map[string]interface{})["autoProc"].(map[string]interface{})
	assert.Equal(t, "P 1 2 1", autoProc["spaceGroup"])
	statistics := autoProc["scaling"].(map[string]interface{})["statistics"].(map[string]interface{})
	assert.InDelta(t, 0.912, statistics["ccHalf"], 1e-9)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSiblingFieldFailureLeavesOtherFieldsIntact(t *testing.T) {
	db, mock := openMock(t)

	// Sibling fields force their loaders in map iteration order, so the two
	// statements may arrive either way round.
	mock.MatchExpectationsInOrder(false)
	mock.ExpectQuery(regexp.QuoteMeta(processedDataSingleSQL)).
		WithArgs(7).
		WillReturnError(errors.New("connection reset by storage"))
	expectBatch(mock, processingJobSingleSQL,
		sqlmock.NewRows(ispyb.ProcessingJobColumns).
			AddRow(21, 7, "fast_dp", 1),
		7)

	r := resolver.NewResolver(dbexec.NewStandardExecutor(db), nil)
	result := executeRequest(t, r, `
		query($representations: [_Any!]!) {
			_entities(representations: $representations) {
				... on Datasets {
					processedData {
						id
					}
					processingJobs {
						displayName
					}
				}
			}
		}`, map[string]interface{}{
		"representations": []interface{}{datasetRepresentation(7)},
	})

	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].Message, "connection reset by storage")

	entities := result.Data.(map[string]interface{})["_entities"].([]interface{})
	require.Len(t, entities, 1)
	entity := entities[0].(map[string]interface{})
	assert.Nil(t, entity["processedData"], "the failed field nulls out alone")
	jobs := entity["processingJobs"].([]interface{})
	require.Len(t, jobs, 1)
	assert.Equal(t, "fast_dp", jobs[0].(map[string]interface{})["displayName"])

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEntityErrorsAreScopedToTheirElement(t *testing.T) {
	db, mock := openMock(t)

	r := resolver.NewResolver(dbexec.NewStandardExecutor(db), nil)
	result := executeRequest(t, r, `
		query($representations: [_Any!]!) {
			_entities(representations: $representations) {
				... on Datasets {
					id
				}
			}
		}`, map[string]interface{}{
		"representations": []interface{}{
			map[string]interface{}{"__typename": "Datasets"},
			datasetRepresentation(9),
		},
	})

	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].Message, "missing id")

	entities := result.Data.(map[string]interface{})["_entities"].([]interface{})
	require.Len(t, entities, 2)
	assert.Nil(t, entities[0])
	assert.Equal(t, map[string]interface{}{"id": 9}, entities[1])

	// Key-only stubs never touch the store.
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestKeyOnlySelectionNeverQueriesTheStore(t *testing.T) {
	db, mock := openMock(t)

	// The router often resolves references just to re-expose the key. No
	// relationship field is selected here, so no statement may reach the pool.
	r := resolver.NewResolver(dbexec.NewStandardExecutor(db), nil)
	result := executeRequest(t, r, `
		query($representations: [_Any!]!) {
			_entities(representations: $representations) {
				__typename
				... on Datasets {
					id
				}
			}
		}`, map[string]interface{}{
		"representations": []interface{}{datasetRepresentation(7), datasetRepresentation(9)},
	})

	require.Empty(t, result.Errors)
	assert.Equal(t, []interface{}{
		map[string]interface{}{"__typename": "Datasets", "id": 7},
		map[string]interface{}{"__typename": "Datasets", "id": 9},
	}, result.Data.(map[string]interface{})["_entities"])

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestServiceFieldServesSDL(t *testing.T) {
	result := executeRequest(t, resolver.NewResolver(nil, nil), `{ _service { sdl } }`, nil)

	require.Empty(t, result.Errors)
	service := result.Data.(map[string]interface{})["_service"].(map[string]interface{})
	assert.Equal(t, FederationSDL, service["sdl"])
}

func TestPlaceholderQueryField(t *testing.T) {
	result := executeRequest(t, resolver.NewResolver(nil, nil), `{ query }`, nil)

	require.Empty(t, result.Errors)
	assert.Equal(t, map[string]interface{}{"query": ""}, result.Data)
}
