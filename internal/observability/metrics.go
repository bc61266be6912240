package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "ispyb-graphql"

// GraphQLMetrics holds the domain instruments: request-level outcomes plus
// loader batching activity. Batch instruments carry a relation attribute
// naming the relationship the batch served.
type GraphQLMetrics struct {
	requestDuration metric.Float64Histogram
	requestCounter  metric.Int64Counter
	errorCounter    metric.Int64Counter
	activeRequests  metric.Int64UpDownCounter
	queryDepth      metric.Int64Histogram

	batchKeys       metric.Int64Histogram
	batchRows       metric.Int64Histogram
	cacheHits       metric.Int64Counter
	cacheMisses     metric.Int64Counter
	queriesSaved    metric.Int64Counter
	presignFailures metric.Int64Counter
}

// InitGraphQLMetrics creates the domain instruments on the global meter.
func InitGraphQLMetrics() (*GraphQLMetrics, error) {
	meter := otel.Meter(meterName)

	var errs []error
	counter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
		return c
	}
	histogram := func(name, desc string) metric.Int64Histogram {
		h, err := meter.Int64Histogram(name, metric.WithDescription(desc))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
		return h
	}

	duration, err := meter.Float64Histogram(
		"graphql.request.duration",
		metric.WithUnit("ms"),
		metric.WithDescription("GraphQL request duration in milliseconds"),
	)
	if err != nil {
		errs = append(errs, fmt.Errorf("graphql.request.duration: %w", err))
	}
	active, err := meter.Int64UpDownCounter(
		"graphql.requests.active",
		metric.WithDescription("Number of GraphQL requests in flight"),
	)
	if err != nil {
		errs = append(errs, fmt.Errorf("graphql.requests.active: %w", err))
	}

	instruments := &GraphQLMetrics{
		requestDuration: duration,
		activeRequests:  active,
		requestCounter:  counter("graphql.requests.total", "Total number of GraphQL requests"),
		errorCounter:    counter("graphql.errors.total", "Total number of GraphQL requests carrying errors"),
		queryDepth:      histogram("graphql.query.depth", "Depth of GraphQL queries"),
		batchKeys:       histogram("graphql.loader.batch_keys", "Number of parent keys carried by one loader batch"),
		batchRows:       histogram("graphql.loader.batch_rows", "Number of rows returned by one loader batch"),
		cacheHits:       counter("graphql.loader.cache_hits", "Loader registrations served from cache or an already-pending batch"),
		cacheMisses:     counter("graphql.loader.cache_misses", "Loader registrations that enqueued a new batch key"),
		queriesSaved:    counter("graphql.loader.queries_saved", "Single-key statements avoided by batching"),
		presignFailures: counter("graphql.presign.failures", "Download URL signing failures"),
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return instruments, nil
}

// RecordRequest records one finished GraphQL request.
func (m *GraphQLMetrics) RecordRequest(ctx context.Context, duration time.Duration, hasErrors bool, operationType string) {
	opAttr := attribute.String("operation_type", operationType)
	labeled := metric.WithAttributes(opAttr, attribute.Bool("has_errors", hasErrors))

	m.requestDuration.Record(ctx, float64(duration.Milliseconds()), labeled)
	m.requestCounter.Add(ctx, 1, labeled)
	if hasErrors {
		m.errorCounter.Add(ctx, 1, metric.WithAttributes(opAttr))
	}
}

// RecordQueryDepth records the nesting depth of a query document.
func (m *GraphQLMetrics) RecordQueryDepth(ctx context.Context, depth int64, operationType string) {
	m.queryDepth.Record(ctx, depth, metric.WithAttributes(attribute.String("operation_type", operationType)))
}

func (m *GraphQLMetrics) RecordBatchParentCount(ctx context.Context, count int64, relation string) {
	m.batchKeys.Record(ctx, count, metric.WithAttributes(attribute.String("relation", relation)))
}

func (m *GraphQLMetrics) RecordBatchResultRows(ctx context.Context, count int64, relation string) {
	m.batchRows.Record(ctx, count, metric.WithAttributes(attribute.String("relation", relation)))
}

func (m *GraphQLMetrics) RecordBatchQueriesSaved(ctx context.Context, count int64, relation string) {
	if count <= 0 {
		return
	}
	m.queriesSaved.Add(ctx, count, metric.WithAttributes(attribute.String("relation", relation)))
}

// RecordBatchCacheHits adds the per-request cache hit total. Hits are
// aggregated from loader snapshots at end of request, so there is no
// relation attribute.
func (m *GraphQLMetrics) RecordBatchCacheHits(ctx context.Context, count int64) {
	if count > 0 {
		m.cacheHits.Add(ctx, count)
	}
}

// RecordBatchCacheMisses adds the per-request cache miss total.
func (m *GraphQLMetrics) RecordBatchCacheMisses(ctx context.Context, count int64) {
	if count > 0 {
		m.cacheMisses.Add(ctx, count)
	}
}

// RecordPresignFailure counts a downloadUrl signing failure.
func (m *GraphQLMetrics) RecordPresignFailure(ctx context.Context) {
	m.presignFailures.Add(ctx, 1)
}

// IncrementActiveRequests marks a request as started.
func (m *GraphQLMetrics) IncrementActiveRequests(ctx context.Context) {
	m.activeRequests.Add(ctx, 1)
}

// DecrementActiveRequests marks a request as finished.
func (m *GraphQLMetrics) DecrementActiveRequests(ctx context.Context) {
	m.activeRequests.Add(ctx, -1)
}

// InitMetrics initializes the domain instruments and logs the outcome.
func InitMetrics(logger *slog.Logger) (*GraphQLMetrics, error) {
	instruments, err := InitGraphQLMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize GraphQL metrics: %w", err)
	}

	logger.Info("GraphQL metrics initialized")
	return instruments, nil
}

type metricsKey struct{}

// ContextWithGraphQLMetrics stores the instruments in the request context.
func ContextWithGraphQLMetrics(ctx context.Context, metrics *GraphQLMetrics) context.Context {
	parent := ctx
	if parent == nil {
		parent = context.Background()
	}
	return context.WithValue(parent, metricsKey{}, metrics)
}

// GraphQLMetricsFromContext retrieves the instruments installed by the
// metrics middleware, or nil.
func GraphQLMetricsFromContext(ctx context.Context) *GraphQLMetrics {
	if ctx != nil {
		metrics, _ := ctx.Value(metricsKey{}).(*GraphQLMetrics)
		return metrics
	}
	return nil
}
