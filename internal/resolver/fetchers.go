package resolver

import (
	"context"

	"ispyb-graphql/internal/ispyb"
	"ispyb-graphql/internal/planner"
)

// Each fetcher resolves one loader kind: a single planned SELECT over the
// collected keys, typed scanning, then grouping on the exact child-side key
// column. Rows keep store order within a group. Keys that match no row are
// simply absent from the returned map.

func (r *Resolver) fetchProcessedData(ctx context.Context, keys []uint32) (map[uint32][]*ispyb.DataProcessing, error) {
	plan, err := planner.PlanRelationshipBatch(
		ispyb.TableDataCollectionFileAttachment,
		ispyb.DataProcessingColumns,
		ispyb.ColumnDataCollectionID,
		batchKeys(keys),
		ispyb.ColumnDataCollectionFileAttachmentID,
	)
	if err != nil {
		return nil, err
	}

	ctx, span := startBatchSpan(ctx, relationProcessedData, len(keys))
	recordBatchStart(ctx, relationProcessedData, len(keys))

	rows, err := r.executor.QueryContext(ctx, plan.SQL, plan.Args...)
	if err != nil {
		finishBatchSpan(span, 0, err)
		return nil, normalizeQueryError(err)
	}
	defer rows.Close()

	attachments, err := ispyb.ScanDataProcessing(rows)
	finishBatchSpan(span, len(attachments), err)
	if err != nil {
		return nil, normalizeQueryError(err)
	}
	recordBatchRows(ctx, relationProcessedData, len(attachments))

	grouped := make(map[uint32][]*ispyb.DataProcessing, len(keys))
	for _, attachment := range attachments {
		if attachment.DataCollectionID == nil {
			continue
		}
		grouped[*attachment.DataCollectionID] = append(grouped[*attachment.DataCollectionID], attachment)
	}
	return grouped, nil
}

func (r *Resolver) fetchProcessingJobs(ctx context.Context, keys []uint32) (map[uint32][]*ispyb.ProcessingJob, error) {
	plan, err := planner.PlanRelationshipBatch(
		ispyb.TableProcessingJob,
		ispyb.ProcessingJobColumns,
		ispyb.ColumnDataCollectionID,
		batchKeys(keys),
		ispyb.ColumnProcessingJobID,
	)
	if err != nil {
		return nil, err
	}

	ctx, span := startBatchSpan(ctx, relationProcessingJobs, len(keys))
	recordBatchStart(ctx, relationProcessingJobs, len(keys))

	rows, err := r.executor.QueryContext(ctx, plan.SQL, plan.Args...)
	if err != nil {
		finishBatchSpan(span, 0, err)
		return nil, normalizeQueryError(err)
	}
	defer rows.Close()

	jobs, err := ispyb.ScanProcessingJobs(rows)
	finishBatchSpan(span, len(jobs), err)
	if err != nil {
		return nil, normalizeQueryError(err)
	}
	recordBatchRows(ctx, relationProcessingJobs, len(jobs))

	grouped := make(map[uint32][]*ispyb.ProcessingJob, len(keys))
	for _, job := range jobs {
		if job.DataCollectionID == nil {
			continue
		}
		grouped[*job.DataCollectionID] = append(grouped[*job.DataCollectionID], job)
	}
	return grouped, nil
}

func (r *Resolver) fetchProcessingJobParameters(ctx context.Context, keys []uint32) (map[uint32][]*ispyb.ProcessingJobParameter, error) {
	plan, err := planner.PlanRelationshipBatch(
		ispyb.TableProcessingJobParameter,
		ispyb.ProcessingJobParameterColumns,
		ispyb.ColumnProcessingJobID,
		batchKeys(keys),
		ispyb.ColumnProcessingJobParameterID,
	)
	if err != nil {
		return nil, err
	}

	ctx, span := startBatchSpan(ctx, relationJobParameters, len(keys))
	recordBatchStart(ctx, relationJobParameters, len(keys))

	rows, err := r.executor.QueryContext(ctx, plan.SQL, plan.Args...)
	if err != nil {
		finishBatchSpan(span, 0, err)
		return nil, normalizeQueryError(err)
	}
	defer rows.Close()

	parameters, err := ispyb.ScanProcessingJobParameters(rows)
	finishBatchSpan(span, len(parameters), err)
	if err != nil {
		return nil, normalizeQueryError(err)
	}
	recordBatchRows(ctx, relationJobParameters, len(parameters))

	grouped := make(map[uint32][]*ispyb.ProcessingJobParameter, len(keys))
	for _, parameter := range parameters {
		if parameter.ProcessingJobID == nil {
			continue
		}
		grouped[*parameter.ProcessingJobID] = append(grouped[*parameter.ProcessingJobID], parameter)
	}
	return grouped, nil
}

func (r *Resolver) fetchAutoProcIntegrations(ctx context.Context, keys []uint32) (map[uint32][]*ispyb.AutoProcIntegration, error) {
	plan, err := planner.PlanRelationshipBatch(
		ispyb.TableAutoProcIntegration,
		ispyb.AutoProcIntegrationColumns,
		ispyb.ColumnDataCollectionID,
		batchKeys(keys),
		ispyb.ColumnAutoProcIntegrationID,
	)
	if err != nil {
		return nil, err
	}

	ctx, span := startBatchSpan(ctx, relationAutoProcIntegration, len(keys))
	recordBatchStart(ctx, relationAutoProcIntegration, len(keys))

	rows, err := r.executor.QueryContext(ctx, plan.SQL, plan.Args...)
	if err != nil {
		finishBatchSpan(span, 0, err)
		return nil, normalizeQueryError(err)
	}
	defer rows.Close()

	integrations, err := ispyb.ScanAutoProcIntegrations(rows)
	finishBatchSpan(span, len(integrations), err)
	if err != nil {
		return nil, normalizeQueryError(err)
	}
	recordBatchRows(ctx, relationAutoProcIntegration, len(integrations))

	grouped := make(map[uint32][]*ispyb.AutoProcIntegration, len(keys))
	for _, integration := range integrations {
		if integration.DataCollectionID == nil {
			continue
		}
		grouped[*integration.DataCollectionID] = append(grouped[*integration.DataCollectionID], integration)
	}
	return grouped, nil
}

func (r *Resolver) fetchAutoProcPrograms(ctx context.Context, keys []uint32) (map[uint32][]*ispyb.AutoProcProgram, error) {
	plan, err := planner.PlanRelationshipBatch(
		ispyb.TableAutoProcProgram,
		ispyb.AutoProcProgramColumns,
		ispyb.ColumnAutoProcProgramID,
		batchKeys(keys),
		ispyb.ColumnAutoProcProgramID,
	)
	if err != nil {
		return nil, err
	}

	ctx, span := startBatchSpan(ctx, relationAutoProcProgram, len(keys))
	recordBatchStart(ctx, relationAutoProcProgram, len(keys))

	rows, err := r.executor.QueryContext(ctx, plan.SQL, plan.Args...)
	if err != nil {
		finishBatchSpan(span, 0, err)
		return nil, normalizeQueryError(err)
	}
	defer rows.Close()

	programs, err := ispyb.ScanAutoProcPrograms(rows)
	finishBatchSpan(span, len(programs), err)
	if err != nil {
		return nil, normalizeQueryError(err)
	}
	recordBatchRows(ctx, relationAutoProcProgram, len(programs))

	grouped := make(map[uint32][]*ispyb.AutoProcProgram, len(keys))
	for _, program := range programs {
		grouped[program.AutoProcProgramID] = append(grouped[program.AutoProcProgramID], program)
	}
	return grouped, nil
}

func (r *Resolver) fetchAutoProcs(ctx context.Context, keys []uint32) (map[uint32]*ispyb.AutoProc, error) {
	plan, err := planner.PlanRelationshipBatch(
		ispyb.TableAutoProc,
		ispyb.AutoProcColumns,
		ispyb.ColumnAutoProcProgramID,
		batchKeys(keys),
		ispyb.ColumnAutoProcID,
	)
	if err != nil {
		return nil, err
	}

	ctx, span := startBatchSpan(ctx, relationAutoProc, len(keys))
	recordBatchStart(ctx, relationAutoProc, len(keys))

	rows, err := r.executor.QueryContext(ctx, plan.SQL, plan.Args...)
	if err != nil {
		finishBatchSpan(span, 0, err)
		return nil, normalizeQueryError(err)
	}
	defer rows.Close()

	autoProcs, err := ispyb.ScanAutoProcs(rows)
	finishBatchSpan(span, len(autoProcs), err)
	if err != nil {
		return nil, normalizeQueryError(err)
	}
	recordBatchRows(ctx, relationAutoProc, len(autoProcs))

	// First row in store order wins when a program has several refinements.
	grouped := make(map[uint32]*ispyb.AutoProc, len(keys))
	for _, autoProc := range autoProcs {
		if autoProc.AutoProcProgramID == nil {
			continue
		}
		if _, exists := grouped[*autoProc.AutoProcProgramID]; !exists {
			grouped[*autoProc.AutoProcProgramID] = autoProc
		}
	}
	return grouped, nil
}

func (r *Resolver) fetchAutoProcScalings(ctx context.Context, keys []uint32) (map[uint32]*ispyb.AutoProcScaling, error) {
	plan, err := planner.PlanRelationshipBatch(
		ispyb.TableAutoProcScaling,
		ispyb.AutoProcScalingColumns,
		ispyb.ColumnAutoProcID,
		batchKeys(keys),
		ispyb.ColumnAutoProcScalingID,
	)
	if err != nil {
		return nil, err
	}

	ctx, span := startBatchSpan(ctx, relationScaling, len(keys))
	recordBatchStart(ctx, relationScaling, len(keys))

	rows, err := r.executor.QueryContext(ctx, plan.SQL, plan.Args...)
	if err != nil {
		finishBatchSpan(span, 0, err)
		return nil, normalizeQueryError(err)
	}
	defer rows.Close()

	scalings, err := ispyb.ScanAutoProcScalings(rows)
	finishBatchSpan(span, len(scalings), err)
	if err != nil {
		return nil, normalizeQueryError(err)
	}
	recordBatchRows(ctx, relationScaling, len(scalings))

	grouped := make(map[uint32]*ispyb.AutoProcScaling, len(keys))
	for _, scaling := range scalings {
		if scaling.AutoProcID == nil {
			continue
		}
		if _, exists := grouped[*scaling.AutoProcID]; !exists {
			grouped[*scaling.AutoProcID] = scaling
		}
	}
	return grouped, nil
}

func (r *Resolver) fetchScalingStatistics(ctx context.Context, keys []ispyb.ScalingStatisticsKey) (map[ispyb.ScalingStatisticsKey]*ispyb.AutoProcScalingStatistics, error) {
	tuples := make([]planner.KeyTuple, len(keys))
	for i, key := range keys {
		tuples[i] = planner.KeyTuple{Values: []interface{}{key.AutoProcScalingID, string(key.StatisticsType)}}
	}

	plan, err := planner.PlanCompositeKeyBatch(
		ispyb.TableAutoProcScalingStatistics,
		ispyb.AutoProcScalingStatisticsColumns,
		[]string{ispyb.ColumnAutoProcScalingID, ispyb.ColumnScalingStatisticsType},
		tuples,
		ispyb.ColumnAutoProcScalingStatisticsID,
	)
	if err != nil {
		return nil, err
	}

	ctx, span := startBatchSpan(ctx, relationStatistics, len(keys))
	recordBatchStart(ctx, relationStatistics, len(keys))

	rows, err := r.executor.QueryContext(ctx, plan.SQL, plan.Args...)
	if err != nil {
		finishBatchSpan(span, 0, err)
		return nil, normalizeQueryError(err)
	}
	defer rows.Close()

	statistics, err := ispyb.ScanAutoProcScalingStatistics(rows)
	finishBatchSpan(span, len(statistics), err)
	if err != nil {
		return nil, normalizeQueryError(err)
	}
	recordBatchRows(ctx, relationStatistics, len(statistics))

	// Group on the row's own (scaling id, type) pair. The comparison is
	// case-sensitive even where the store collation is not, so a row whose
	// stored type differs in casing never satisfies a requested pair.
	grouped := make(map[ispyb.ScalingStatisticsKey]*ispyb.AutoProcScalingStatistics, len(keys))
	for _, row := range statistics {
		if row.AutoProcScalingID == nil || row.ScalingStatisticsType == nil {
			continue
		}
		key := ispyb.ScalingStatisticsKey{
			AutoProcScalingID: *row.AutoProcScalingID,
			StatisticsType:    *row.ScalingStatisticsType,
		}
		if _, exists := grouped[key]; !exists {
			grouped[key] = row
		}
	}
	return grouped, nil
}

func batchKeys(keys []uint32) []interface{} {
	values := make([]interface{}, len(keys))
	for i, key := range keys {
		values[i] = key
	}
	return values
}

func recordBatchStart(ctx context.Context, relation string, keyCount int) {
	metrics := graphQLMetricsFromContext(ctx)
	if metrics == nil {
		return
	}
	metrics.RecordBatchParentCount(ctx, int64(keyCount), relation)
	if keyCount > 1 {
		metrics.RecordBatchQueriesSaved(ctx, int64(keyCount-1), relation)
	}
}

func recordBatchRows(ctx context.Context, relation string, rowCount int) {
	metrics := graphQLMetricsFromContext(ctx)
	if metrics == nil {
		return
	}
	metrics.RecordBatchResultRows(ctx, int64(rowCount), relation)
}
