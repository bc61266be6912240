package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"ispyb-graphql/internal/gqlrequest"
	"ispyb-graphql/internal/logging"
	"ispyb-graphql/internal/observability"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// GraphQLTracingMiddleware opens a graphql.execute span around the executor
// and stamps it with the parsed operation's attributes. Requests that never
// parsed into a query pass straight through.
func GraphQLTracingMiddleware() func(http.Handler) http.Handler {
	tracer := otel.Tracer("ispyb-graphql/graphql")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if analysis := gqlrequest.AnalysisFromContext(r.Context()); wantSpan(analysis) {
				ctx, span := tracer.Start(r.Context(), "graphql.execute")
				defer span.End()

				ctx = logWithTraceIDs(ctx, span)
				if span.IsRecording() {
					span.SetAttributes(observability.GraphQLSpanAttributes(analysis)...)
				}
				r = r.WithContext(ctx)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// wantSpan reports whether the request parsed into a query worth a span.
func wantSpan(analysis *gqlrequest.Analysis) bool {
	return analysis != nil && strings.TrimSpace(analysis.Envelope.Query) != ""
}

// logWithTraceIDs rebinds the request logger with the span's ids so log
// lines and traces cross-reference.
func logWithTraceIDs(ctx context.Context, span trace.Span) context.Context {
	spanCtx := span.SpanContext()
	if !spanCtx.IsValid() {
		return ctx
	}
	logger := logging.FromContext(ctx)
	logger = logger.WithFields(
		slog.String("trace_id", spanCtx.TraceID().String()),
		slog.String("span_id", spanCtx.SpanID().String()),
	)
	return logging.WithLogger(ctx, logger)
}
