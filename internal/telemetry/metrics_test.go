package telemetry

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryStore is a MetricsStore that accumulates in maps.
type memoryStore struct {
	mu        sync.Mutex
	endpoints map[Endpoint]int64
	latencies map[LatencyBucket]int64
	terms     map[string]int64
	zero      []ZeroResultQuery
	failNext  bool
	closed    bool
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		endpoints: map[Endpoint]int64{},
		latencies: map[LatencyBucket]int64{},
		terms:     map[string]int64{},
	}
}

func (s *memoryStore) SaveEndpointCounts(_ string, counts map[Endpoint]int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext {
		s.failNext = false
		return errors.New("disk full")
	}
	for k, v := range counts {
		s.endpoints[k] += v
	}
	return nil
}

func (s *memoryStore) SaveLatencyCounts(_ string, counts map[LatencyBucket]int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range counts {
		s.latencies[k] += v
	}
	return nil
}

func (s *memoryStore) UpsertTermCounts(terms map[string]int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range terms {
		s.terms[k] += v
	}
	return nil
}

func (s *memoryStore) AddZeroResultQueries(queries []ZeroResultQuery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.zero = append(s.zero, queries...)
	return nil
}

func (s *memoryStore) Close() error {
	s.closed = true
	return nil
}

func TestLatencyToBucket(t *testing.T) {
	tests := []struct {
		latency time.Duration
		want    LatencyBucket
	}{
		{10 * time.Millisecond, BucketUnder50ms},
		{50 * time.Millisecond, BucketUnder200ms},
		{300 * time.Millisecond, BucketUnder1s},
		{2 * time.Second, BucketUnder5s},
		{15 * time.Second, BucketSlow},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LatencyToBucket(tt.latency), tt.latency.String())
	}
}

func TestExtractTerms(t *testing.T) {
	assert.Equal(t, []string{"see", "you", "later"}, ExtractTerms("See you LATER, ok?"))
	assert.Nil(t, ExtractTerms("a to"))
	assert.Equal(t, []string{"vidéo"}, ExtractTerms("la vidéo"))
}

func TestQueryMetrics_Record(t *testing.T) {
	// Given: a memory-only collector
	m := NewQueryMetrics(nil, Config{})
	defer func() { _ = m.Close() }()

	// When: recording a mix of requests
	m.Record(QueryEvent{Endpoint: EndpointSearch, Query: "example phrase", ResultCount: 3, Latency: 20 * time.Millisecond})
	m.Record(QueryEvent{Endpoint: EndpointSearch, Query: "Example   PHRASE", ResultCount: 3, Latency: 30 * time.Millisecond})
	m.Record(QueryEvent{Endpoint: EndpointAutocomplete, Query: "zzqx", ResultCount: 0, Latency: 5 * time.Millisecond})
	m.Record(QueryEvent{Endpoint: EndpointVideoSearch, VideoID: "abc123", Query: "example", Degraded: true, Latency: 15 * time.Second})

	// Then: the snapshot reflects them
	s := m.Snapshot()
	assert.Equal(t, int64(4), s.TotalQueries)
	assert.Equal(t, int64(2), s.EndpointCounts[EndpointSearch])
	assert.Equal(t, int64(1), s.EndpointCounts[EndpointAutocomplete])
	assert.Equal(t, int64(1), s.EndpointCounts[EndpointVideoSearch])
	assert.Equal(t, int64(3), s.LatencyDistribution[BucketUnder50ms])
	assert.Equal(t, int64(1), s.LatencyDistribution[BucketSlow])
	assert.Equal(t, int64(1), s.ZeroResultCount, "degraded requests are not zero-result")
	assert.Equal(t, int64(1), s.DegradedCount)
	assert.Equal(t, int64(1), s.RepeatCount)
	assert.Equal(t, 3, s.UniqueQueries)
	require.Len(t, s.ZeroResultQueries, 1)
	assert.Equal(t, "zzqx", s.ZeroResultQueries[0].Query)
	require.NotEmpty(t, s.TopTerms)
	assert.Equal(t, TermCount{Term: "example", Count: 3}, s.TopTerms[0])
	assert.InDelta(t, 0.25, s.ZeroResultRate(), 1e-9)
	assert.Equal(t, "4 queries, 25.0% zero-result, 25.0% repeated, 1 degraded", s.Summary())
}

func TestQueryMetrics_EmptySummary(t *testing.T) {
	m := NewQueryMetrics(nil, Config{})
	defer func() { _ = m.Close() }()

	assert.Equal(t, "no queries recorded", m.Snapshot().Summary())
	assert.Zero(t, m.Snapshot().RepeatRate())
}

func TestQueryMetrics_FlushSendsDeltas(t *testing.T) {
	// Given: a collector with a store and no background flush
	st := newMemoryStore()
	m := NewQueryMetrics(st, Config{})
	m.Record(QueryEvent{Endpoint: EndpointSearch, Query: "hello world", ResultCount: 1})

	// When: flushing twice with a record in between
	require.NoError(t, m.Flush())
	m.Record(QueryEvent{Endpoint: EndpointSearch, Query: "hello", ResultCount: 0})
	require.NoError(t, m.Flush())

	// Then: the store saw each record once
	assert.Equal(t, int64(2), st.endpoints[EndpointSearch])
	assert.Equal(t, int64(2), st.terms["hello"])
	assert.Equal(t, int64(1), st.terms["world"])
	require.Len(t, st.zero, 1)
	assert.Equal(t, "hello", st.zero[0].Query)

	require.NoError(t, m.Close())
	assert.True(t, st.closed)
}

func TestQueryMetrics_FlushFailureRetainsData(t *testing.T) {
	st := newMemoryStore()
	st.failNext = true
	m := NewQueryMetrics(st, Config{})
	defer func() { _ = m.Close() }()
	m.Record(QueryEvent{Endpoint: EndpointAutocomplete, Query: "see you"})

	assert.Error(t, m.Flush())
	require.NoError(t, m.Flush())

	assert.Equal(t, int64(1), st.endpoints[EndpointAutocomplete])
}

func TestQueryMetrics_BackgroundFlush(t *testing.T) {
	st := newMemoryStore()
	m := NewQueryMetrics(st, Config{FlushInterval: 10 * time.Millisecond})
	defer func() { _ = m.Close() }()

	m.Record(QueryEvent{Endpoint: EndpointSearch, Query: "background"})

	assert.Eventually(t, func() bool {
		st.mu.Lock()
		defer st.mu.Unlock()
		return st.endpoints[EndpointSearch] == 1
	}, time.Second, 5*time.Millisecond)
}

func TestQueryMetrics_RecordAfterCloseIgnored(t *testing.T) {
	m := NewQueryMetrics(nil, Config{})
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	m.Record(QueryEvent{Endpoint: EndpointSearch, Query: "late"})

	assert.Zero(t, m.Snapshot().TotalQueries)
}

func TestQueryMetrics_ConcurrentRecord(t *testing.T) {
	m := NewQueryMetrics(nil, Config{})
	defer func() { _ = m.Close() }()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Record(QueryEvent{Endpoint: EndpointSearch, Query: "parallel query", ResultCount: 1})
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(50), m.Snapshot().TotalQueries)
}
