package middleware

import (
	"log/slog"
	"net/http"

	"ispyb-graphql/internal/gqlrequest"
	"ispyb-graphql/internal/logging"
	"ispyb-graphql/internal/observability"
)

// GraphQLRequestAnalysisMiddleware parses the request envelope once and
// leaves the derived operation metadata on the context, where the metrics,
// tracing, and logging layers all pick it up.
func GraphQLRequestAnalysisMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger := logging.FromContext(r.Context())

			analysis := gqlrequest.AnalyzeRequest(r)
			if err := analysis.Err(); err != nil {
				// Execution parses on its own and reports its own errors;
				// this only explains why the log fields below may be thin.
				logger.Debug("request analysis incomplete", slog.String("error", err.Error()))
			}

			ctx := gqlrequest.WithAnalysis(r.Context(), analysis)
			if fields := observability.GraphQLLogFields(ctx, analysis); len(fields) > 0 {
				ctx = logging.WithLogger(ctx, logger.WithFields(fields...))
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
