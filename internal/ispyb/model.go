package ispyb

import (
	"path"
	"strings"
)

// Datasets is the federated data-collection entity. References arrive from
// the gateway carrying only the id; everything below it is loaded lazily.
type Datasets struct {
	ID uint32 `json:"id"`
}

// DataProcessing is one processed-file attachment of a data collection.
// The file path columns stay internal; they exist to derive the object key.
type DataProcessing struct {
	ID               uint32  `json:"id"`
	DataCollectionID *uint32 `json:"dataCollectionId"`
	FileFullPath     string  `json:"fileFullPath"`
	FileName         string  `json:"fileName"`
}

// ObjectKey derives the object-store key for the processed file: the stored
// path joined with the stored file name, with a single leading separator
// stripped so the key is relative.
func (d *DataProcessing) ObjectKey() string {
	return strings.TrimPrefix(path.Join(d.FileFullPath, d.FileName), "/")
}

type ProcessingJob struct {
	ProcessingJobID  uint32  `json:"processingJobId"`
	DataCollectionID *uint32 `json:"dataCollectionId"`
	DisplayName      *string `json:"displayName"`
	Automatic        *bool   `json:"automatic"`
}

type ProcessingJobParameter struct {
	ProcessingJobParameterID uint32  `json:"processingJobParameterId"`
	ProcessingJobID          *uint32 `json:"processingJobId"`
	ParameterKey             *string `json:"parameterKey"`
	ParameterValue           *string `json:"parameterValue"`
}

type AutoProcIntegration struct {
	AutoProcIntegrationID uint32   `json:"autoProcIntegrationId"`
	DataCollectionID      *uint32  `json:"dataCollectionId"`
	AutoProcProgramID     *uint32  `json:"autoProcProgramId"`
	RefinedXBeam          *float64 `json:"refinedXBeam"`
	RefinedYBeam          *float64 `json:"refinedYBeam"`
}

type AutoProcProgram struct {
	AutoProcProgramID  uint32  `json:"autoProcProgramId"`
	ProcessingPrograms *string `json:"processingPrograms"`
	ProcessingStatus   *bool   `json:"processingStatus"`
	ProcessingMessage  *string `json:"processingMessage"`
	ProcessingJobID    *uint32 `json:"processingJobId"`
}

type AutoProc struct {
	AutoProcID        uint32   `json:"autoProcId"`
	AutoProcProgramID *uint32  `json:"autoProcProgramId"`
	SpaceGroup        *string  `json:"spaceGroup"`
	RefinedCellA      *float64 `json:"refinedCellA"`
	RefinedCellB      *float64 `json:"refinedCellB"`
	RefinedCellC      *float64 `json:"refinedCellC"`
	RefinedCellAlpha  *float64 `json:"refinedCellAlpha"`
	RefinedCellBeta   *float64 `json:"refinedCellBeta"`
	RefinedCellGamma  *float64 `json:"refinedCellGamma"`
}

type AutoProcScaling struct {
	AutoProcScalingID uint32  `json:"autoProcScalingId"`
	AutoProcID        *uint32 `json:"autoProcId"`
}

type AutoProcScalingStatistics struct {
	AutoProcScalingStatisticsID uint32          `json:"autoProcScalingStatisticsId"`
	AutoProcScalingID           *uint32         `json:"autoProcScalingId"`
	ScalingStatisticsType       *StatisticsType `json:"scalingStatisticsType"`
	CCHalf                      *float64        `json:"ccHalf"`
	CCAnomalous                 *float64        `json:"ccAnomalous"`
	NTotalObservations          *int64          `json:"nTotalObservations"`
	NTotalUniqueObservations    *int64          `json:"nTotalUniqueObservations"`
	ResolutionLimitLow          *float64        `json:"resolutionLimitLow"`
	ResolutionLimitHigh         *float64        `json:"resolutionLimitHigh"`
	RMeasAllIPlusIMinus         *float64        `json:"rMeasAllIPlusIMinus"`
	AnomalousCompleteness       *float64        `json:"anomalousCompleteness"`
	AnomalousMultiplicity       *float64        `json:"anomalousMultiplicity"`
	RMerge                      *float64        `json:"rMerge"`
	Completeness                *float64        `json:"completeness"`
	Multiplicity                *float64        `json:"multiplicity"`
	MeanIOverSigI               *float64        `json:"meanIOverSigI"`
	Resioversigi2               *float64        `json:"resioversigi2"`
}
