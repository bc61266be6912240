// Package ispyb holds the row types and table metadata for the slice of the
// ISPyB schema this service reads: processed-file attachments, processing
// jobs, and the auto-processing chain down to scaling statistics.
package ispyb

// Table names.
const (
	TableDataCollectionFileAttachment = "DataCollectionFileAttachment"
	TableProcessingJob                = "ProcessingJob"
	TableProcessingJobParameter       = "ProcessingJobParameter"
	TableAutoProcIntegration          = "AutoProcIntegration"
	TableAutoProcProgram              = "AutoProcProgram"
	TableAutoProc                     = "AutoProc"
	TableAutoProcScaling              = "AutoProcScaling"
	TableAutoProcScalingStatistics    = "AutoProcScalingStatistics"
)

// Foreign-key and discriminant columns used by the batch predicates.
const (
	ColumnDataCollectionID      = "dataCollectionId"
	ColumnProcessingJobID       = "processingJobId"
	ColumnAutoProcProgramID     = "autoProcProgramId"
	ColumnAutoProcID            = "autoProcId"
	ColumnAutoProcScalingID     = "autoProcScalingId"
	ColumnScalingStatisticsType = "scalingStatisticsType"
)

// Primary-key columns used for deterministic batch ordering.
const (
	ColumnDataCollectionFileAttachmentID = "dataCollectionFileAttachmentId"
	ColumnProcessingJobParameterID       = "processingJobParameterId"
	ColumnAutoProcIntegrationID          = "autoProcIntegrationId"
	ColumnAutoProcScalingStatisticsID    = "autoProcScalingStatisticsId"
)

// Column lists in scan order. Each list must stay aligned with the Scan calls
// in scan.go.
var (
	DataProcessingColumns = []string{
		"dataCollectionFileAttachmentId",
		"dataCollectionId",
		"fileFullPath",
		"fileName",
	}

	ProcessingJobColumns = []string{
		"processingJobId",
		"dataCollectionId",
		"displayName",
		"automatic",
	}

	ProcessingJobParameterColumns = []string{
		"processingJobParameterId",
		"processingJobId",
		"parameterKey",
		"parameterValue",
	}

	AutoProcIntegrationColumns = []string{
		"autoProcIntegrationId",
		"dataCollectionId",
		"autoProcProgramId",
		"refinedXBeam",
		"refinedYBeam",
	}

	AutoProcProgramColumns = []string{
		"autoProcProgramId",
		"processingPrograms",
		"processingStatus",
		"processingMessage",
		"processingJobId",
	}

	AutoProcColumns = []string{
		"autoProcId",
		"autoProcProgramId",
		"spaceGroup",
		"refinedCell_a",
		"refinedCell_b",
		"refinedCell_c",
		"refinedCell_alpha",
		"refinedCell_beta",
		"refinedCell_gamma",
	}

	AutoProcScalingColumns = []string{
		"autoProcScalingId",
		"autoProcId",
	}

	AutoProcScalingStatisticsColumns = []string{
		"autoProcScalingStatisticsId",
		"autoProcScalingId",
		"scalingStatisticsType",
		"ccHalf",
		"ccAnomalous",
		"nTotalObservations",
		"nTotalUniqueObservations",
		"resolutionLimitLow",
		"resolutionLimitHigh",
		"rMeasAllIPlusIMinus",
		"anomalousCompleteness",
		"anomalousMultiplicity",
		"rMerge",
		"completeness",
		"multiplicity",
		"meanIOverSigI",
		"resioversigi2",
	}
)
