package gqlrequest

import "context"

type analysisKey struct{}

// WithAnalysis returns a context carrying the request analysis. The analysis
// middleware installs it once; everything downstream reads that copy instead
// of re-parsing the document.
func WithAnalysis(ctx context.Context, analysis *Analysis) context.Context {
	parent := ctx
	if parent == nil {
		parent = context.Background()
	}
	return context.WithValue(parent, analysisKey{}, analysis)
}

// AnalysisFromContext returns the analysis installed by WithAnalysis, or nil
// when the pipeline did not run.
func AnalysisFromContext(ctx context.Context) *Analysis {
	if ctx != nil {
		analysis, _ := ctx.Value(analysisKey{}).(*Analysis)
		return analysis
	}
	return nil
}
