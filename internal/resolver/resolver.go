// Package resolver executes the processed-data graph against ISPyB. Every
// relationship field resolves through a request-scoped batch loader, so the
// executor's deferred thunks collapse sibling and cousin lookups into one
// statement per relationship instead of one per row.
package resolver

import (
	"context"

	"ispyb-graphql/internal/dbexec"
	"ispyb-graphql/internal/objectstore"
	"ispyb-graphql/internal/observability"
)

// Relation labels used on batch metrics and spans.
const (
	relationProcessedData       = "processedData"
	relationProcessingJobs      = "processingJobs"
	relationJobParameters       = "parameters"
	relationAutoProcIntegration = "autoProcIntegration"
	relationAutoProcProgram     = "autoProcProgram"
	relationAutoProc            = "autoProc"
	relationScaling             = "scaling"
	relationStatistics          = "statistics"
)

// Resolver resolves GraphQL fields against the ISPyB store and the object
// store. It is safe for concurrent use; per-request state lives in the
// Loaders registry, not here.
type Resolver struct {
	executor dbexec.QueryExecutor
	signer   objectstore.URLSigner
}

// NewResolver creates a resolver backed by executor for row data and signer
// for download URLs. signer may be nil when no object store is configured;
// downloadUrl fields then resolve to an error.
func NewResolver(executor dbexec.QueryExecutor, signer objectstore.URLSigner) *Resolver {
	return &Resolver{
		executor: executor,
		signer:   signer,
	}
}

func graphQLMetricsFromContext(ctx context.Context) *observability.GraphQLMetrics {
	return observability.GraphQLMetricsFromContext(ctx)
}
