package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"ispyb-graphql/internal/gqlrequest"
)

// runAnalyzed posts body through the analysis middleware and returns the
// analysis the inner handler saw plus whatever body it could still read.
func runAnalyzed(t *testing.T, body string) (*gqlrequest.Analysis, string) {
	t.Helper()

	var (
		analysis *gqlrequest.Analysis
		reread   string
	)
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		analysis = gqlrequest.AnalysisFromContext(r.Context())
		payload, _ := io.ReadAll(r.Body)
		reread = string(payload)
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	GraphQLRequestAnalysisMiddleware()(inner).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; analysis must never reject a request", rec.Code, http.StatusOK)
	}
	return analysis, reread
}

func TestGraphQLRequestAnalysisMiddleware_AnalyzesEntityQuery(t *testing.T) {
	analysis, reread := runAnalyzed(t, `{"query":"query Entities($representations: [_Any!]!) { _entities(representations: $representations) { ... on Datasets { id } } }","operationName":"Entities","variables":{"representations":[]}}`)

	if analysis == nil {
		t.Fatal("analysis missing from request context")
	}
	if analysis.OperationType != "query" {
		t.Fatalf("operation type = %q, want query", analysis.OperationType)
	}
	if !analysis.EntityResolution {
		t.Fatal("entity resolution went undetected")
	}
	if analysis.OperationHash == "" {
		t.Fatal("operation hash is empty")
	}
	if !strings.Contains(reread, `"operationName":"Entities"`) {
		t.Fatalf("downstream handler read %q, want the rewound body", reread)
	}
}

func TestGraphQLRequestAnalysisMiddleware_MalformedBodyStillServes(t *testing.T) {
	analysis, _ := runAnalyzed(t, `{"query":`)

	if analysis == nil {
		t.Fatal("analysis missing from request context")
	}
	if analysis.Err() == nil {
		t.Fatal("malformed body should leave an analysis error behind")
	}
}
