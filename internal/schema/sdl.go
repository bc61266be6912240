package schema

import (
	"fmt"
	"io"
)

// FederationSDL is the subgraph schema handed to the federation router for
// composition. It carries the domain surface only; the _entities and
// _service machinery is implied by the federation spec. Field sets here and
// in Build must stay aligned.
const FederationSDL = `extend schema @link(url: "https://specs.apollo.dev/federation/v2.3", import: ["@key"])

type AutoProc {
	autoProcId: Int!
	autoProcProgramId: Int
	spaceGroup: String
	refinedCellA: Float
	refinedCellB: Float
	refinedCellC: Float
	refinedCellAlpha: Float
	refinedCellBeta: Float
	refinedCellGamma: Float
	scaling: AutoProcScaling
}

type AutoProcIntegration {
	autoProcIntegrationId: Int!
	dataCollectionId: Int
	autoProcProgramId: Int
	refinedXBeam: Float
	refinedYBeam: Float
	autoProcProgram: [AutoProcProgram!]
}

type AutoProcProgram {
	autoProcProgramId: Int!
	processingPrograms: String
	processingStatus: Boolean
	processingMessage: String
	processingJobId: Int
	autoProc: AutoProc
}

type AutoProcScaling {
	autoProcScalingId: Int!
	autoProcId: Int
	statistics(statisticsType: StatisticsType = OVERALL): AutoProcScalingStatistics
}

type AutoProcScalingStatistics {
	autoProcScalingStatisticsId: Int!
	autoProcScalingId: Int
	scalingStatisticsType: StatisticsType
	ccHalf: Float
	ccAnomalous: Float
	nTotalObservations: Int
	nTotalUniqueObservations: Int
	resolutionLimitLow: Float
	resolutionLimitHigh: Float
	rMeasAllIPlusIMinus: Float
	anomalousCompleteness: Float
	anomalousMultiplicity: Float
	rMerge: Float
	completeness: Float
	multiplicity: Float
	meanIOverSigI: Float
	resioversigi2: Float
}

type DataProcessing @key(fields: "id", resolvable: false) {
	id: Int!
	downloadUrl: String
}

type Datasets @key(fields: "id") {
	id: Int!
	processedData: [DataProcessing!]
	processingJobs: [ProcessingJob!]
	autoProcIntegration: [AutoProcIntegration!]
}

type ProcessingJob {
	processingJobId: Int!
	dataCollectionId: Int
	displayName: String
	automatic: Boolean
	parameters: [ProcessingJobParameter!]
}

type ProcessingJobParameter {
	processingJobParameterId: Int!
	processingJobId: Int
	parameterKey: String
	parameterValue: String
}

type Query {
	query: String!
}

enum StatisticsType {
	OVERALL
	INNER_SHELL
	OUTER_SHELL
}
`

// WriteSDL writes the federation SDL to w.
func WriteSDL(w io.Writer) error {
	if _, err := io.WriteString(w, FederationSDL); err != nil {
		return fmt.Errorf("failed to write schema: %w", err)
	}
	return nil
}
