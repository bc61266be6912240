package observability

import (
	"context"
	"log/slog"

	"ispyb-graphql/internal/gqlrequest"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// GraphQLSpanAttributes builds canonical span attributes from request analysis.
func GraphQLSpanAttributes(analysis *gqlrequest.Analysis) []attribute.KeyValue {
	if analysis == nil {
		return nil
	}

	attrs := make([]attribute.KeyValue, 0, 12)
	str := func(key, value string) {
		if value != "" {
			attrs = append(attrs, attribute.String(key, value))
		}
	}

	str("graphql.operation.requested_name", analysis.RequestedOperationName)
	str("graphql.operation.name", analysis.OperationName)
	str("graphql.operation.type", analysis.OperationType)
	str("graphql.operation.hash", analysis.OperationHash)
	if size := analysis.Envelope.DocumentSizeBytes; size > 0 {
		attrs = append(attrs, attribute.Int("graphql.document.size_bytes", size))
	}
	if analysis.Operation != nil {
		attrs = append(attrs,
			attribute.Int("graphql.query.depth", analysis.SelectionDepth),
			attribute.Int("graphql.query.field_count", analysis.FieldCount),
			attribute.Int("graphql.query.variable_count", analysis.VariableCount),
		)
	}
	if analysis.EntityResolution {
		attrs = append(attrs, attribute.Bool("graphql.federation.entity_resolution", true))
	}
	if analysis.ServiceSDL {
		attrs = append(attrs, attribute.Bool("graphql.federation.service_sdl", true))
	}

	return attrs
}

// GraphQLLogFields builds canonical structured log fields from request analysis.
func GraphQLLogFields(ctx context.Context, analysis *gqlrequest.Analysis) []any {
	fields := make([]any, 0, 8)
	str := func(key, value string) {
		if value != "" {
			fields = append(fields, slog.String(key, value))
		}
	}

	if analysis != nil {
		str("operation_requested_name", analysis.RequestedOperationName)
		str("operation_name", analysis.OperationName)
		str("operation_type", analysis.OperationType)
		str("operation_hash", analysis.OperationHash)
		if analysis.EntityResolution {
			fields = append(fields, slog.Bool("entity_resolution", true))
		}
	}

	if spanCtx := trace.SpanContextFromContext(ctx); spanCtx.IsValid() {
		fields = append(fields, slog.String("trace_id", spanCtx.TraceID().String()))
	}

	return fields
}
