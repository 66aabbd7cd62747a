package search

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/guoyu-zhang/say-like-a-native/internal/store"
)

// Enricher attaches the preceding segment to each hit.
type Enricher struct {
	searcher store.Searcher
	builder  *QueryBuilder
	pool     *Pool
}

// NewEnricher creates an enricher that runs lookups on pool.
func NewEnricher(searcher store.Searcher, builder *QueryBuilder, pool *Pool) *Enricher {
	return &Enricher{searcher: searcher, builder: builder, pool: pool}
}

// Previous returns the segment just before seg. The boolean is false when
// there is none or the lookup failed; failures are logged, not returned.
func (e *Enricher) Previous(ctx context.Context, seg store.Segment) (store.Segment, bool) {
	req := e.builder.Previous(seg)
	resp, err := Run(ctx, e.pool, func(ctx context.Context) (*store.Response, error) {
		return e.searcher.Search(ctx, req)
	})
	if err != nil {
		slog.Debug("previous_lookup_failed",
			slog.String("video_id", seg.VideoID),
			slog.Float64("start_time", seg.StartTime),
			slog.String("error", err.Error()))
		return store.Segment{}, false
	}
	if len(resp.Hits) == 0 {
		return store.Segment{}, false
	}

	prev := resp.Hits[0].Segment
	if prev.VideoID != seg.VideoID || prev.StartTime >= seg.StartTime {
		slog.Debug("previous_lookup_mismatch",
			slog.String("video_id", seg.VideoID),
			slog.String("got_video_id", prev.VideoID),
			slog.Float64("start_time", seg.StartTime),
			slog.Float64("got_start_time", prev.StartTime))
		return store.Segment{}, false
	}
	return prev, true
}

// Enrich looks up the previous segment of every hit concurrently and
// returns the results in the order of hits.
func (e *Enricher) Enrich(ctx context.Context, hits []store.Hit) []EnrichedResult {
	results := make([]EnrichedResult, len(hits))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.pool.Size())

	for i, h := range hits {
		results[i] = EnrichedResult{Hit: h}
		g.Go(func() error {
			if prev, ok := e.Previous(gctx, h.Segment); ok {
				results[i].Previous = &prev
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}
