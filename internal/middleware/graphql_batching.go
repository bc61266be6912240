package middleware

import (
	"net/http"

	"ispyb-graphql/internal/observability"
	"ispyb-graphql/internal/resolver"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// GraphQLBatchingMiddleware installs a fresh loader registry for each request
// so the resolvers in one execution coalesce their lookups into shared
// batches. When the request finishes it reports the registry's activity to
// the request metrics and the surrounding execution span.
func GraphQLBatchingMiddleware(res *resolver.Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			loaders := res.NewLoaders()
			ctx := resolver.WithLoaders(r.Context(), loaders)

			next.ServeHTTP(w, r.WithContext(ctx))

			// The tracing middleware's span is still open here; its End
			// runs after this handler returns.
			stats := loaders.Stats()
			if metrics := observability.GraphQLMetricsFromContext(ctx); metrics != nil {
				metrics.RecordBatchCacheHits(ctx, stats.CacheHits)
				metrics.RecordBatchCacheMisses(ctx, stats.CacheMisses)
			}

			if span := trace.SpanFromContext(ctx); span.IsRecording() {
				span.SetAttributes(
					attribute.Int64("graphql.execution.cache_hits", stats.CacheHits),
					attribute.Int64("graphql.execution.cache_misses", stats.CacheMisses),
					attribute.Int64("graphql.execution.batches", stats.Batches),
					attribute.Int64("graphql.execution.queries_saved", stats.QueriesSaved()),
				)
				if total := stats.CacheHits + stats.CacheMisses; total > 0 {
					ratio := float64(stats.CacheHits) / float64(total)
					span.SetAttributes(attribute.Float64("graphql.execution.cache_hit_ratio", ratio))
				}
			}
		})
	}
}
