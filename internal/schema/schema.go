// Package schema builds the executable GraphQL schema for the processed-data
// subgraph: the fixed domain types, the placeholder query root, and the
// federation fields the router drives (_entities, _service).
package schema

import (
	"github.com/graphql-go/graphql"

	"ispyb-graphql/internal/ispyb"
	"ispyb-graphql/internal/resolver"
)

// Build assembles the executable schema. Relationship fields resolve through
// r so every request shares its loader registry; leaf columns resolve from
// the row structs directly.
func Build(r *resolver.Resolver) (graphql.Schema, error) {
	statisticsTypeEnum := newStatisticsTypeEnum()

	statisticsType := graphql.NewObject(graphql.ObjectConfig{
		Name:        "AutoProcScalingStatistics",
		Description: "Scaling statistics for one shell of an automatic processing run.",
		Fields: graphql.Fields{
			"autoProcScalingStatisticsId": &graphql.Field{Type: graphql.NewNonNull(graphql.Int)},
			"autoProcScalingId":           &graphql.Field{Type: graphql.Int},
			"scalingStatisticsType": &graphql.Field{
				Type: statisticsTypeEnum,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					row, ok := p.Source.(*ispyb.AutoProcScalingStatistics)
					if !ok || row.ScalingStatisticsType == nil {
						return nil, nil
					}
					return *row.ScalingStatisticsType, nil
				},
			},
			"ccHalf":                   &graphql.Field{Type: graphql.Float},
			"ccAnomalous":              &graphql.Field{Type: graphql.Float},
			"nTotalObservations":       &graphql.Field{Type: graphql.Int},
			"nTotalUniqueObservations": &graphql.Field{Type: graphql.Int},
			"resolutionLimitLow":       &graphql.Field{Type: graphql.Float},
			"resolutionLimitHigh":      &graphql.Field{Type: graphql.Float},
			"rMeasAllIPlusIMinus":      &graphql.Field{Type: graphql.Float},
			"anomalousCompleteness":    &graphql.Field{Type: graphql.Float},
			"anomalousMultiplicity":    &graphql.Field{Type: graphql.Float},
			"rMerge":                   &graphql.Field{Type: graphql.Float},
			"completeness":             &graphql.Field{Type: graphql.Float},
			"multiplicity":             &graphql.Field{Type: graphql.Float},
			"meanIOverSigI":            &graphql.Field{Type: graphql.Float},
			"resioversigi2":            &graphql.Field{Type: graphql.Float},
		},
	})

	scalingType := graphql.NewObject(graphql.ObjectConfig{
		Name:        "AutoProcScaling",
		Description: "Scaling of an automatic processing run.",
		Fields: graphql.Fields{
			"autoProcScalingId": &graphql.Field{Type: graphql.NewNonNull(graphql.Int)},
			"autoProcId":        &graphql.Field{Type: graphql.Int},
			"statistics": &graphql.Field{
				Type:        statisticsType,
				Description: "Statistics for the requested shell of this scaling.",
				Args: graphql.FieldConfigArgument{
					"statisticsType": &graphql.ArgumentConfig{
						Type:         statisticsTypeEnum,
						DefaultValue: ispyb.StatisticsTypeOverall,
					},
				},
				Resolve: r.ResolveStatistics,
			},
		},
	})

	autoProcType := graphql.NewObject(graphql.ObjectConfig{
		Name:        "AutoProc",
		Description: "Refined cell of an automatic processing run.",
		Fields: graphql.Fields{
			"autoProcId":        &graphql.Field{Type: graphql.NewNonNull(graphql.Int)},
			"autoProcProgramId": &graphql.Field{Type: graphql.Int},
			"spaceGroup":        &graphql.Field{Type: graphql.String},
			"refinedCellA":      &graphql.Field{Type: graphql.Float},
			"refinedCellB":      &graphql.Field{Type: graphql.Float},
			"refinedCellC":      &graphql.Field{Type: graphql.Float},
			"refinedCellAlpha":  &graphql.Field{Type: graphql.Float},
			"refinedCellBeta":   &graphql.Field{Type: graphql.Float},
			"refinedCellGamma":  &graphql.Field{Type: graphql.Float},
			"scaling": &graphql.Field{
				Type:    scalingType,
				Resolve: r.ResolveScaling,
			},
		},
	})

	autoProcProgramType := graphql.NewObject(graphql.ObjectConfig{
		Name:        "AutoProcProgram",
		Description: "A program run that processed data automatically.",
		Fields: graphql.Fields{
			"autoProcProgramId":  &graphql.Field{Type: graphql.NewNonNull(graphql.Int)},
			"processingPrograms": &graphql.Field{Type: graphql.String},
			"processingStatus":   &graphql.Field{Type: graphql.Boolean},
			"processingMessage":  &graphql.Field{Type: graphql.String},
			"processingJobId":    &graphql.Field{Type: graphql.Int},
			"autoProc": &graphql.Field{
				Type:    autoProcType,
				Resolve: r.ResolveAutoProc,
			},
		},
	})

	autoProcIntegrationType := graphql.NewObject(graphql.ObjectConfig{
		Name:        "AutoProcIntegration",
		Description: "An automatic processing integration of a data collection.",
		Fields: graphql.Fields{
			"autoProcIntegrationId": &graphql.Field{Type: graphql.NewNonNull(graphql.Int)},
			"dataCollectionId":      &graphql.Field{Type: graphql.Int},
			"autoProcProgramId":     &graphql.Field{Type: graphql.Int},
			"refinedXBeam":          &graphql.Field{Type: graphql.Float},
			"refinedYBeam":          &graphql.Field{Type: graphql.Float},
			"autoProcProgram": &graphql.Field{
				Type:    graphql.NewList(graphql.NewNonNull(autoProcProgramType)),
				Resolve: r.ResolveAutoProcPrograms,
			},
		},
	})

	parameterType := graphql.NewObject(graphql.ObjectConfig{
		Name:        "ProcessingJobParameter",
		Description: "A key/value parameter of a processing job.",
		Fields: graphql.Fields{
			"processingJobParameterId": &graphql.Field{Type: graphql.NewNonNull(graphql.Int)},
			"processingJobId":          &graphql.Field{Type: graphql.Int},
			"parameterKey":             &graphql.Field{Type: graphql.String},
			"parameterValue":           &graphql.Field{Type: graphql.String},
		},
	})

	processingJobType := graphql.NewObject(graphql.ObjectConfig{
		Name:        "ProcessingJob",
		Description: "A processing job run against a data collection.",
		Fields: graphql.Fields{
			"processingJobId":  &graphql.Field{Type: graphql.NewNonNull(graphql.Int)},
			"dataCollectionId": &graphql.Field{Type: graphql.Int},
			"displayName":      &graphql.Field{Type: graphql.String},
			"automatic":        &graphql.Field{Type: graphql.Boolean},
			"parameters": &graphql.Field{
				Type:    graphql.NewList(graphql.NewNonNull(parameterType)),
				Resolve: r.ResolveProcessingJobParameters,
			},
		},
	})

	dataProcessingType := graphql.NewObject(graphql.ObjectConfig{
		Name:        "DataProcessing",
		Description: "A processed image file stored in the object store.",
		Fields: graphql.Fields{
			"id": &graphql.Field{
				Type:        graphql.NewNonNull(graphql.Int),
				Description: "An opaque unique identifier for the collected file attachment.",
			},
			"downloadUrl": &graphql.Field{
				Type:        graphql.String,
				Description: "A time-limited download link for the processed file.",
				Resolve:     r.ResolveDownloadURL,
			},
		},
	})

	datasetsType := graphql.NewObject(graphql.ObjectConfig{
		Name:        "Datasets",
		Description: "A data collection extended with its processing results.",
		Fields: graphql.Fields{
			"id": &graphql.Field{
				Type:        graphql.NewNonNull(graphql.Int),
				Description: "An opaque unique identifier for the data collection.",
			},
			"processedData": &graphql.Field{
				Type:        graphql.NewList(graphql.NewNonNull(dataProcessingType)),
				Description: "Processed files attached to this data collection.",
				Resolve:     r.ResolveProcessedData,
			},
			"processingJobs": &graphql.Field{
				Type:        graphql.NewList(graphql.NewNonNull(processingJobType)),
				Description: "Processing jobs run against this data collection.",
				Resolve:     r.ResolveProcessingJobs,
			},
			"autoProcIntegration": &graphql.Field{
				Type:        graphql.NewList(graphql.NewNonNull(autoProcIntegrationType)),
				Description: "Automatic processing integrations of this data collection.",
				Resolve:     r.ResolveAutoProcIntegrations,
			},
		},
	})

	queryFields := graphql.Fields{
		"query": &graphql.Field{
			Type: graphql.NewNonNull(graphql.String),
			Resolve: func(p graphql.ResolveParams) (interface{}, error) {
				return "", nil
			},
		},
	}
	addFederationFields(queryFields, datasetsType)

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: graphql.NewObject(graphql.ObjectConfig{
			Name:   "Query",
			Fields: queryFields,
		}),
	})
}

// The enum values carry the stored column literals so argument coercion
// delivers typed values straight to the statistics loader key.
func newStatisticsTypeEnum() *graphql.Enum {
	return graphql.NewEnum(graphql.EnumConfig{
		Name:        "StatisticsType",
		Description: "Shell variant of a scaling statistics row.",
		Values: graphql.EnumValueConfigMap{
			"OVERALL":     &graphql.EnumValueConfig{Value: ispyb.StatisticsTypeOverall},
			"INNER_SHELL": &graphql.EnumValueConfig{Value: ispyb.StatisticsTypeInnerShell},
			"OUTER_SHELL": &graphql.EnumValueConfig{Value: ispyb.StatisticsTypeOuterShell},
		},
	})
}
