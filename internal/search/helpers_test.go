package search

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/guoyu-zhang/say-like-a-native/internal/store"
)

const testIndex = "test-transcripts"

// fakeSearcher answers with fn and counts calls.
type fakeSearcher struct {
	fn    func(ctx context.Context, req store.Request) (*store.Response, error)
	calls atomic.Int32
}

func (f *fakeSearcher) Search(ctx context.Context, req store.Request) (*store.Response, error) {
	f.calls.Add(1)
	return f.fn(ctx, req)
}

// isPrevious reports whether req is a previous-segment lookup and returns
// the video it targets.
func isPrevious(req store.Request) (string, bool) {
	q, ok := req.Query.(store.BoolQuery)
	if !ok || len(q.Must) > 0 || req.Size != 1 {
		return "", false
	}
	for _, f := range q.Filter {
		if tq, ok := f.(store.TermQuery); ok && tq.Field == store.FieldVideoID {
			return tq.Value, true
		}
	}
	return "", false
}

func testEngineConfig() EngineConfig {
	cfg := DefaultEngineConfig()
	cfg.Index = testIndex
	cfg.SearchTimeout = time.Second
	cfg.AutocompleteTimeout = time.Second
	cfg.EnrichTimeout = time.Second
	return cfg
}

func newTestEngine(t *testing.T, s store.Searcher, mutate ...func(*EngineConfig)) *Engine {
	t.Helper()
	cfg := testEngineConfig()
	for _, m := range mutate {
		m(&cfg)
	}
	e, err := NewEngine(s, cfg)
	require.NoError(t, err)
	return e
}

// newBleveEngine indexes segments into an in-memory store.
func newBleveEngine(t *testing.T, segments []store.Segment, opts ...EngineOption) *Engine {
	t.Helper()
	s, err := store.NewBleveStore("", testIndex)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Index(context.Background(), segments))

	e, err := NewEngine(s, testEngineConfig(), opts...)
	require.NoError(t, err)
	return e
}

func transcriptFixture() []store.Segment {
	return []store.Segment{
		{VideoID: "abc123", LanguageCode: "en", StartTime: 0.5, EndTime: 2.5, Text: "Welcome to the video"},
		{VideoID: "abc123", LanguageCode: "en", StartTime: 2.5, EndTime: 5.5, Text: "This is an example transcript"},
	}
}
