package resolver

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// startBatchSpan opens a span for one loader batch. Relation and key count
// go on at creation time so samplers can see them.
func startBatchSpan(ctx context.Context, relation string, keyCount int) (context.Context, trace.Span) {
	return otel.Tracer("ispyb-graphql/resolver").Start(ctx, "batch."+relation,
		trace.WithAttributes(
			attribute.String("graphql.batch.relation", relation),
			attribute.Int("graphql.batch.key_count", keyCount),
		))
}

func finishBatchSpan(span trace.Span, rowCount int, err error) {
	if span == nil {
		return
	}
	defer span.End()
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
		return
	}
	span.SetAttributes(attribute.Int("graphql.batch.row_count", rowCount))
}
