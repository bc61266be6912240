package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"ispyb-graphql/internal/gqlrequest"
	"ispyb-graphql/internal/observability"
)

// GraphQLMetricsMiddleware times every executed request and feeds the
// GraphQL instruments. GET traffic (the GraphiQL page) is not measured.
func GraphQLMetricsMiddleware(instruments *observability.GraphQLMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost {
				measureOperation(instruments, next, w, r)
			} else {
				next.ServeHTTP(w, r)
			}
		})
	}
}

// measureOperation runs one executed operation under the instruments and
// scores the outcome from status code and response body.
func measureOperation(instruments *observability.GraphQLMetrics, next http.Handler, w http.ResponseWriter, r *http.Request) {
	ctx := observability.ContextWithGraphQLMetrics(r.Context(), instruments)
	r = r.WithContext(ctx)

	instruments.IncrementActiveRequests(ctx)
	defer instruments.DecrementActiveRequests(ctx)

	// Analysis ran earlier in the chain, so the parsed operation is
	// already on the context.
	opType := "unknown"
	if analysis := gqlrequest.AnalysisFromContext(ctx); analysis != nil && analysis.Operation != nil {
		if parsed := strings.TrimSpace(analysis.OperationType); parsed != "" {
			opType = parsed
		}
		instruments.RecordQueryDepth(ctx, int64(analysis.SelectionDepth), opType)
	}

	capture := &capturingWriter{ResponseWriter: w, status: http.StatusOK}
	started := time.Now()
	next.ServeHTTP(capture, r)

	failed := capture.status >= 400 || bodyCarriesErrors(capture.body.Bytes())
	instruments.RecordRequest(ctx, time.Since(started), failed, opType)
}

// capturingWriter keeps a copy of the response body. GraphQL reports field
// failures in a 200 response, so the errors key is the only failure signal.
type capturingWriter struct {
	http.ResponseWriter
	status int
	wrote  bool
	body   bytes.Buffer
}

func (c *capturingWriter) WriteHeader(status int) {
	if c.wrote {
		return
	}
	c.status = status
	c.wrote = true
	c.ResponseWriter.WriteHeader(status)
}

func (c *capturingWriter) Write(b []byte) (int, error) {
	if !c.wrote {
		c.WriteHeader(http.StatusOK)
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

// bodyCarriesErrors reports whether a response body holds a non-empty
// GraphQL errors list. Anything unparseable counts as error-free; transport
// failures are caught by status code instead.
func bodyCarriesErrors(body []byte) bool {
	var envelope struct {
		Errors []json.RawMessage `json:"errors"`
	}
	if err := json.Unmarshal(bytes.TrimSpace(body), &envelope); err != nil {
		return false
	}
	return len(envelope.Errors) > 0
}
