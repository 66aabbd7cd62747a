package mcp

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Resource URIs.
const (
	URIQueryMetrics = "sayln://query_metrics"
	URIIndex        = "sayln://index"
)

// QueryMetricsOutput is the query_metrics resource body.
type QueryMetricsOutput struct {
	Summary             string           `json:"summary"`
	TotalQueries        int64            `json:"total_queries"`
	ZeroResultPct       float64          `json:"zero_result_pct"`
	RepeatPct           float64          `json:"repeat_pct"`
	DegradedCount       int64            `json:"degraded_count"`
	EndpointCounts      map[string]int64 `json:"endpoint_counts"`
	LatencyDistribution map[string]int64 `json:"latency_distribution"`
	TopTerms            []QueryTermCount `json:"top_terms"`
	ZeroResultQueries   []string         `json:"zero_result_queries"`
}

// QueryTermCount represents a term and its frequency.
type QueryTermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// IndexOutput is the index resource body.
type IndexOutput struct {
	Index    string `json:"index"`
	Segments int    `json:"segments"`
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
}

func jsonResource(uri string, v any) (*mcp.ReadResourceResult, error) {
	content, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, MapError(err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{URI: uri, MIMEType: "application/json", Text: string(content)}},
	}, nil
}

// registerQueryMetricsResource registers the query_metrics resource.
func (s *Server) registerQueryMetricsResource() {
	s.mcp.AddResource(&mcp.Resource{
		Name:        "query_metrics",
		URI:         URIQueryMetrics,
		Description: "What people search for: counts, latency, top terms and queries that found nothing",
		MIMEType:    "application/json",
	}, func(ctx context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		out, err := s.QueryMetrics()
		if err != nil {
			return nil, err
		}
		return jsonResource(URIQueryMetrics, out)
	})
}

// QueryMetrics builds the query_metrics resource body.
func (s *Server) QueryMetrics() (*QueryMetricsOutput, error) {
	s.mu.RLock()
	metrics := s.metrics
	s.mu.RUnlock()
	if metrics == nil {
		return nil, NewInvalidParamsError("query metrics not available")
	}

	snap := metrics.Snapshot()
	out := &QueryMetricsOutput{
		Summary:             snap.Summary(),
		TotalQueries:        snap.TotalQueries,
		ZeroResultPct:       snap.ZeroResultRate() * 100,
		RepeatPct:           snap.RepeatRate() * 100,
		DegradedCount:       snap.DegradedCount,
		EndpointCounts:      make(map[string]int64, len(snap.EndpointCounts)),
		LatencyDistribution: make(map[string]int64, len(snap.LatencyDistribution)),
		TopTerms:            make([]QueryTermCount, 0, len(snap.TopTerms)),
		ZeroResultQueries:   make([]string, 0, len(snap.ZeroResultQueries)),
	}
	for ep, n := range snap.EndpointCounts {
		out.EndpointCounts[string(ep)] = n
	}
	for b, n := range snap.LatencyDistribution {
		out.LatencyDistribution[string(b)] = n
	}
	for _, tc := range snap.TopTerms {
		out.TopTerms = append(out.TopTerms, QueryTermCount{Term: tc.Term, Count: tc.Count})
	}
	for _, z := range snap.ZeroResultQueries {
		out.ZeroResultQueries = append(out.ZeroResultQueries, z.Query)
	}
	return out, nil
}

// registerIndexResource registers the index resource.
func (s *Server) registerIndexResource() {
	s.mcp.AddResource(&mcp.Resource{
		Name:        "index",
		URI:         URIIndex,
		Description: "Name and size of the transcript index",
		MIMEType:    "application/json",
	}, func(ctx context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		return jsonResource(URIIndex, s.IndexInfo(ctx))
	})
}

// IndexInfo reports the index the engine searches and its segment count.
func (s *Server) IndexInfo(ctx context.Context) IndexOutput {
	out := IndexOutput{Index: s.engine.Config().Index, Status: "unknown"}
	if s.store == nil {
		return out
	}
	n, err := s.store.Count(ctx)
	if err != nil {
		out.Status = "unavailable"
		out.Error = err.Error()
		return out
	}
	out.Segments = n
	out.Status = "ready"
	if n == 0 {
		out.Status = "empty"
	}
	return out
}
