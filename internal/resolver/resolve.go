package resolver

import (
	"context"
	"fmt"

	"github.com/graphql-go/graphql"

	"ispyb-graphql/internal/ispyb"
)

// Relationship resolvers return deferred thunks instead of values. The
// executor walks the whole selection set before forcing any of them, so
// every row at one depth registers its key with the shared loader before
// the first force triggers the batch.

// ResolveProcessedData resolves Datasets.processedData.
func (r *Resolver) ResolveProcessedData(p graphql.ResolveParams) (interface{}, error) {
	dataset, ok := p.Source.(*ispyb.Datasets)
	if !ok {
		return nil, fmt.Errorf("processedData requires a Datasets source, got %T", p.Source)
	}
	loaders, ok := LoadersFromContext(p.Context)
	if !ok {
		return nil, errNoLoaders
	}

	thunk := loaders.ProcessedData.Load(p.Context, dataset.ID)
	return func() (interface{}, error) {
		attachments, err := thunk()
		if err != nil {
			return nil, err
		}
		if attachments == nil {
			return []*ispyb.DataProcessing{}, nil
		}
		return attachments, nil
	}, nil
}

// ResolveProcessingJobs resolves Datasets.processingJobs.
func (r *Resolver) ResolveProcessingJobs(p graphql.ResolveParams) (interface{}, error) {
	dataset, ok := p.Source.(*ispyb.Datasets)
	if !ok {
		return nil, fmt.Errorf("processingJobs requires a Datasets source, got %T", p.Source)
	}
	loaders, ok := LoadersFromContext(p.Context)
	if !ok {
		return nil, errNoLoaders
	}

	thunk := loaders.ProcessingJobs.Load(p.Context, dataset.ID)
	return func() (interface{}, error) {
		jobs, err := thunk()
		if err != nil {
			return nil, err
		}
		if jobs == nil {
			return []*ispyb.ProcessingJob{}, nil
		}
		return jobs, nil
	}, nil
}

// ResolveProcessingJobParameters resolves ProcessingJob.parameters.
func (r *Resolver) ResolveProcessingJobParameters(p graphql.ResolveParams) (interface{}, error) {
	job, ok := p.Source.(*ispyb.ProcessingJob)
	if !ok {
		return nil, fmt.Errorf("parameters requires a ProcessingJob source, got %T", p.Source)
	}
	loaders, ok := LoadersFromContext(p.Context)
	if !ok {
		return nil, errNoLoaders
	}

	thunk := loaders.ProcessingJobParameters.Load(p.Context, job.ProcessingJobID)
	return func() (interface{}, error) {
		parameters, err := thunk()
		if err != nil {
			return nil, err
		}
		if parameters == nil {
			return []*ispyb.ProcessingJobParameter{}, nil
		}
		return parameters, nil
	}, nil
}

// ResolveAutoProcIntegrations resolves Datasets.autoProcIntegration.
func (r *Resolver) ResolveAutoProcIntegrations(p graphql.ResolveParams) (interface{}, error) {
	dataset, ok := p.Source.(*ispyb.Datasets)
	if !ok {
		return nil, fmt.Errorf("autoProcIntegration requires a Datasets source, got %T", p.Source)
	}
	loaders, ok := LoadersFromContext(p.Context)
	if !ok {
		return nil, errNoLoaders
	}

	thunk := loaders.AutoProcIntegrations.Load(p.Context, dataset.ID)
	return func() (interface{}, error) {
		integrations, err := thunk()
		if err != nil {
			return nil, err
		}
		if integrations == nil {
			return []*ispyb.AutoProcIntegration{}, nil
		}
		return integrations, nil
	}, nil
}

// ResolveAutoProcPrograms resolves AutoProcIntegration.autoProcProgram. An
// integration without a program link yields an empty list without touching
// the store.
func (r *Resolver) ResolveAutoProcPrograms(p graphql.ResolveParams) (interface{}, error) {
	integration, ok := p.Source.(*ispyb.AutoProcIntegration)
	if !ok {
		return nil, fmt.Errorf("autoProcProgram requires an AutoProcIntegration source, got %T", p.Source)
	}
	if integration.AutoProcProgramID == nil {
		return []*ispyb.AutoProcProgram{}, nil
	}
	loaders, ok := LoadersFromContext(p.Context)
	if !ok {
		return nil, errNoLoaders
	}

	thunk := loaders.AutoProcPrograms.Load(p.Context, *integration.AutoProcProgramID)
	return func() (interface{}, error) {
		programs, err := thunk()
		if err != nil {
			return nil, err
		}
		if programs == nil {
			return []*ispyb.AutoProcProgram{}, nil
		}
		return programs, nil
	}, nil
}

// ResolveAutoProc resolves AutoProcProgram.autoProc.
func (r *Resolver) ResolveAutoProc(p graphql.ResolveParams) (interface{}, error) {
	program, ok := p.Source.(*ispyb.AutoProcProgram)
	if !ok {
		return nil, fmt.Errorf("autoProc requires an AutoProcProgram source, got %T", p.Source)
	}
	loaders, ok := LoadersFromContext(p.Context)
	if !ok {
		return nil, errNoLoaders
	}

	thunk := loaders.AutoProcs.Load(p.Context, program.AutoProcProgramID)
	return func() (interface{}, error) {
		autoProc, err := thunk()
		if err != nil {
			return nil, err
		}
		if autoProc == nil {
			return nil, nil
		}
		return autoProc, nil
	}, nil
}

// ResolveScaling resolves AutoProc.scaling.
func (r *Resolver) ResolveScaling(p graphql.ResolveParams) (interface{}, error) {
	autoProc, ok := p.Source.(*ispyb.AutoProc)
	if !ok {
		return nil, fmt.Errorf("scaling requires an AutoProc source, got %T", p.Source)
	}
	loaders, ok := LoadersFromContext(p.Context)
	if !ok {
		return nil, errNoLoaders
	}

	thunk := loaders.AutoProcScalings.Load(p.Context, autoProc.AutoProcID)
	return func() (interface{}, error) {
		scaling, err := thunk()
		if err != nil {
			return nil, err
		}
		if scaling == nil {
			return nil, nil
		}
		return scaling, nil
	}, nil
}

// ResolveStatistics resolves AutoProcScaling.statistics for the requested
// shell. The pair (scaling id, statistics type) is the batch key, so mixed
// shells across one response still coalesce into a single statement.
func (r *Resolver) ResolveStatistics(p graphql.ResolveParams) (interface{}, error) {
	scaling, ok := p.Source.(*ispyb.AutoProcScaling)
	if !ok {
		return nil, fmt.Errorf("statistics requires an AutoProcScaling source, got %T", p.Source)
	}
	loaders, ok := LoadersFromContext(p.Context)
	if !ok {
		return nil, errNoLoaders
	}

	statisticsType := ispyb.StatisticsTypeOverall
	if st, ok := p.Args["statisticsType"].(ispyb.StatisticsType); ok {
		statisticsType = st
	}

	key := ispyb.ScalingStatisticsKey{
		AutoProcScalingID: scaling.AutoProcScalingID,
		StatisticsType:    statisticsType,
	}
	thunk := loaders.ScalingStatistics.Load(p.Context, key)
	return func() (interface{}, error) {
		statistics, err := thunk()
		if err != nil {
			return nil, err
		}
		if statistics == nil {
			return nil, nil
		}
		return statistics, nil
	}, nil
}

// ResolveDownloadURL resolves DataProcessing.downloadUrl by signing a GET
// for the row's object key. Signing runs per row and is never batched or
// cached; a failure errors this field alone.
func (r *Resolver) ResolveDownloadURL(p graphql.ResolveParams) (interface{}, error) {
	attachment, ok := p.Source.(*ispyb.DataProcessing)
	if !ok {
		return nil, fmt.Errorf("downloadUrl requires a DataProcessing source, got %T", p.Source)
	}
	if r.signer == nil {
		return nil, fmt.Errorf("object store not configured")
	}

	url, err := r.signer.SignDownload(p.Context, attachment.ObjectKey())
	if err != nil {
		recordPresignFailure(p.Context)
		return nil, err
	}
	return url, nil
}

func recordPresignFailure(ctx context.Context) {
	metrics := graphQLMetricsFromContext(ctx)
	if metrics == nil {
		return
	}
	metrics.RecordPresignFailure(ctx)
}
