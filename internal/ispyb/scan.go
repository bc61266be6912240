package ispyb

import (
	"fmt"

	"ispyb-graphql/internal/dbexec"
)

// The scan functions drain a result set whose columns match the package's
// column lists, in order. Callers own closing the rows.

func ScanDataProcessing(rows dbexec.Rows) ([]*DataProcessing, error) {
	var out []*DataProcessing
	for rows.Next() {
		var d DataProcessing
		// NULL path columns coalesce to "" so the object key rule still has
		// something to join.
		var fullPath, fileName *string
		if err := rows.Scan(&d.ID, &d.DataCollectionID, &fullPath, &fileName); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", TableDataCollectionFileAttachment, err)
		}
		if fullPath != nil {
			d.FileFullPath = *fullPath
		}
		if fileName != nil {
			d.FileName = *fileName
		}
		out = append(out, &d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func ScanProcessingJobs(rows dbexec.Rows) ([]*ProcessingJob, error) {
	var out []*ProcessingJob
	for rows.Next() {
		var j ProcessingJob
		if err := rows.Scan(&j.ProcessingJobID, &j.DataCollectionID, &j.DisplayName, &j.Automatic); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", TableProcessingJob, err)
		}
		out = append(out, &j)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func ScanProcessingJobParameters(rows dbexec.Rows) ([]*ProcessingJobParameter, error) {
	var out []*ProcessingJobParameter
	for rows.Next() {
		var p ProcessingJobParameter
		if err := rows.Scan(&p.ProcessingJobParameterID, &p.ProcessingJobID, &p.ParameterKey, &p.ParameterValue); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", TableProcessingJobParameter, err)
		}
		out = append(out, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func ScanAutoProcIntegrations(rows dbexec.Rows) ([]*AutoProcIntegration, error) {
	var out []*AutoProcIntegration
	for rows.Next() {
		var i AutoProcIntegration
		if err := rows.Scan(&i.AutoProcIntegrationID, &i.DataCollectionID, &i.AutoProcProgramID, &i.RefinedXBeam, &i.RefinedYBeam); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", TableAutoProcIntegration, err)
		}
		out = append(out, &i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func ScanAutoProcPrograms(rows dbexec.Rows) ([]*AutoProcProgram, error) {
	var out []*AutoProcProgram
	for rows.Next() {
		var p AutoProcProgram
		if err := rows.Scan(&p.AutoProcProgramID, &p.ProcessingPrograms, &p.ProcessingStatus, &p.ProcessingMessage, &p.ProcessingJobID); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", TableAutoProcProgram, err)
		}
		out = append(out, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func ScanAutoProcs(rows dbexec.Rows) ([]*AutoProc, error) {
	var out []*AutoProc
	for rows.Next() {
		var a AutoProc
		if err := rows.Scan(
			&a.AutoProcID, &a.AutoProcProgramID, &a.SpaceGroup,
			&a.RefinedCellA, &a.RefinedCellB, &a.RefinedCellC,
			&a.RefinedCellAlpha, &a.RefinedCellBeta, &a.RefinedCellGamma,
		); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", TableAutoProc, err)
		}
		out = append(out, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func ScanAutoProcScalings(rows dbexec.Rows) ([]*AutoProcScaling, error) {
	var out []*AutoProcScaling
	for rows.Next() {
		var s AutoProcScaling
		if err := rows.Scan(&s.AutoProcScalingID, &s.AutoProcID); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", TableAutoProcScaling, err)
		}
		out = append(out, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func ScanAutoProcScalingStatistics(rows dbexec.Rows) ([]*AutoProcScalingStatistics, error) {
	var out []*AutoProcScalingStatistics
	for rows.Next() {
		var s AutoProcScalingStatistics
		if err := rows.Scan(
			&s.AutoProcScalingStatisticsID, &s.AutoProcScalingID, &s.ScalingStatisticsType,
			&s.CCHalf, &s.CCAnomalous,
			&s.NTotalObservations, &s.NTotalUniqueObservations,
			&s.ResolutionLimitLow, &s.ResolutionLimitHigh,
			&s.RMeasAllIPlusIMinus, &s.AnomalousCompleteness, &s.AnomalousMultiplicity,
			&s.RMerge, &s.Completeness, &s.Multiplicity,
			&s.MeanIOverSigI, &s.Resioversigi2,
		); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", TableAutoProcScalingStatistics, err)
		}
		out = append(out, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
