package resolver

import (
	"context"

	"ispyb-graphql/internal/ispyb"
	"ispyb-graphql/internal/loader"
)

// Loaders carries the batch loaders for one request. Every resolver in the
// request tree reads the same instance out of the context, which is what
// lets separate branches of a selection set coalesce into shared batches.
// The registry dies with the request; no loader state outlives it.
type Loaders struct {
	ProcessedData           *loader.Loader[uint32, []*ispyb.DataProcessing]
	ProcessingJobs          *loader.Loader[uint32, []*ispyb.ProcessingJob]
	ProcessingJobParameters *loader.Loader[uint32, []*ispyb.ProcessingJobParameter]
	AutoProcIntegrations    *loader.Loader[uint32, []*ispyb.AutoProcIntegration]
	AutoProcPrograms        *loader.Loader[uint32, []*ispyb.AutoProcProgram]
	AutoProcs               *loader.Loader[uint32, *ispyb.AutoProc]
	AutoProcScalings        *loader.Loader[uint32, *ispyb.AutoProcScaling]
	ScalingStatistics       *loader.Loader[ispyb.ScalingStatisticsKey, *ispyb.AutoProcScalingStatistics]
}

// NewLoaders builds a fresh registry backed by the resolver's executor. One
// registry serves exactly one request.
func (r *Resolver) NewLoaders() *Loaders {
	return &Loaders{
		ProcessedData:           loader.New(r.fetchProcessedData),
		ProcessingJobs:          loader.New(r.fetchProcessingJobs),
		ProcessingJobParameters: loader.New(r.fetchProcessingJobParameters),
		AutoProcIntegrations:    loader.New(r.fetchAutoProcIntegrations),
		AutoProcPrograms:        loader.New(r.fetchAutoProcPrograms),
		AutoProcs:               loader.New(r.fetchAutoProcs),
		AutoProcScalings:        loader.New(r.fetchAutoProcScalings),
		ScalingStatistics:       loader.New(r.fetchScalingStatistics),
	}
}

// Stats sums loader activity across every kind in the registry.
func (l *Loaders) Stats() loader.Stats {
	var total loader.Stats
	for _, stats := range []loader.Stats{
		l.ProcessedData.Stats(),
		l.ProcessingJobs.Stats(),
		l.ProcessingJobParameters.Stats(),
		l.AutoProcIntegrations.Stats(),
		l.AutoProcPrograms.Stats(),
		l.AutoProcs.Stats(),
		l.AutoProcScalings.Stats(),
		l.ScalingStatistics.Stats(),
	} {
		total.CacheHits += stats.CacheHits
		total.CacheMisses += stats.CacheMisses
		total.Batches += stats.Batches
		total.KeysFetched += stats.KeysFetched
	}
	return total
}

type loadersKey struct{}

// WithLoaders injects a request-scoped loader registry for resolvers.
func WithLoaders(ctx context.Context, l *Loaders) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}

	return context.WithValue(ctx, loadersKey{}, l)
}

// LoadersFromContext retrieves the loader registry from context.
func LoadersFromContext(ctx context.Context) (*Loaders, bool) {
	if ctx == nil {
		return nil, false
	}

	l, ok := ctx.Value(loadersKey{}).(*Loaders)
	return l, ok
}
