package telemetry

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/guoyu-zhang/say-like-a-native/internal/store"
)

// Endpoint names an orchestrated operation.
type Endpoint string

const (
	EndpointSearch       Endpoint = "search"
	EndpointAutocomplete Endpoint = "autocomplete"
	EndpointVideoSearch  Endpoint = "video_search"
)

// LatencyBucket is a latency histogram bucket.
type LatencyBucket string

const (
	BucketUnder50ms  LatencyBucket = "lt_50ms"
	BucketUnder200ms LatencyBucket = "lt_200ms"
	BucketUnder1s    LatencyBucket = "lt_1s"
	BucketUnder5s    LatencyBucket = "lt_5s"
	BucketSlow       LatencyBucket = "gte_5s"
)

// LatencyToBucket maps a duration to its bucket.
func LatencyToBucket(d time.Duration) LatencyBucket {
	switch {
	case d < 50*time.Millisecond:
		return BucketUnder50ms
	case d < 200*time.Millisecond:
		return BucketUnder200ms
	case d < time.Second:
		return BucketUnder1s
	case d < 5*time.Second:
		return BucketUnder5s
	default:
		return BucketSlow
	}
}

// QueryEvent is one completed request.
type QueryEvent struct {
	Endpoint    Endpoint
	Query       string
	VideoID     string
	ResultCount int
	Latency     time.Duration
	// Degraded is set when the primary query failed and an empty response
	// with error text was returned.
	Degraded  bool
	Timestamp time.Time
}

// minTermLength filters noise like "a" and "to" out of the top terms.
const minTermLength = 3

// ExtractTerms lowercases query and returns its terms of at least three runes.
func ExtractTerms(query string) []string {
	var terms []string
	for _, t := range store.Terms(query) {
		if utf8.RuneCountInString(t) >= minTermLength {
			terms = append(terms, t)
		}
	}
	return terms
}

// TermCount is a term and how often it was searched.
type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// ZeroResultQuery is a query that matched nothing.
type ZeroResultQuery struct {
	Endpoint  Endpoint  `json:"endpoint"`
	Query     string    `json:"query"`
	Timestamp time.Time `json:"timestamp"`
}

// Snapshot is a point-in-time copy of the collected metrics.
type Snapshot struct {
	EndpointCounts      map[Endpoint]int64      `json:"endpoint_counts"`
	LatencyDistribution map[LatencyBucket]int64 `json:"latency_distribution"`
	TopTerms            []TermCount             `json:"top_terms"`
	ZeroResultQueries   []ZeroResultQuery       `json:"zero_result_queries"`
	TotalQueries        int64                   `json:"total_queries"`
	ZeroResultCount     int64                   `json:"zero_result_count"`
	DegradedCount       int64                   `json:"degraded_count"`
	RepeatCount         int64                   `json:"repeat_count"`
	UniqueQueries       int                     `json:"unique_queries"`
	Since               time.Time               `json:"since"`
}

// ZeroResultRate is the share of queries that returned nothing, in [0,1].
func (s *Snapshot) ZeroResultRate() float64 {
	if s.TotalQueries == 0 {
		return 0
	}
	return float64(s.ZeroResultCount) / float64(s.TotalQueries)
}

// RepeatRate is the share of queries seen before among recent queries.
func (s *Snapshot) RepeatRate() float64 {
	if s.TotalQueries == 0 {
		return 0
	}
	return float64(s.RepeatCount) / float64(s.TotalQueries)
}

// Summary renders a one-line overview for logs and the CLI.
func (s *Snapshot) Summary() string {
	if s.TotalQueries == 0 {
		return "no queries recorded"
	}
	return fmt.Sprintf("%d queries, %.1f%% zero-result, %.1f%% repeated, %d degraded",
		s.TotalQueries, s.ZeroResultRate()*100, s.RepeatRate()*100, s.DegradedCount)
}

// MetricsStore persists flushed aggregates.
type MetricsStore interface {
	SaveEndpointCounts(date string, counts map[Endpoint]int64) error
	SaveLatencyCounts(date string, counts map[LatencyBucket]int64) error
	UpsertTermCounts(terms map[string]int64) error
	AddZeroResultQueries(queries []ZeroResultQuery) error
	Close() error
}

// Config tunes the collector.
type Config struct {
	TopTermsCapacity      int
	ZeroResultsCapacity   int
	RecentQueriesCapacity int
	// FlushInterval is how often aggregates go to the store. Zero disables
	// the background flush.
	FlushInterval time.Duration
}

// DefaultConfig returns the collector defaults.
func DefaultConfig() Config {
	return Config{
		TopTermsCapacity:      200,
		ZeroResultsCapacity:   100,
		RecentQueriesCapacity: 500,
		FlushInterval:         time.Minute,
	}
}

// pending holds what has not been flushed yet.
type pending struct {
	endpoints map[Endpoint]int64
	latencies map[LatencyBucket]int64
	terms     map[string]int64
	zero      []ZeroResultQuery
}

func newPending() pending {
	return pending{
		endpoints: make(map[Endpoint]int64),
		latencies: make(map[LatencyBucket]int64),
		terms:     make(map[string]int64),
	}
}

func (p pending) empty() bool {
	return len(p.endpoints) == 0 && len(p.terms) == 0 && len(p.zero) == 0
}

// merge adds o back into p after a failed flush.
func (p *pending) merge(o pending) {
	for k, v := range o.endpoints {
		p.endpoints[k] += v
	}
	for k, v := range o.latencies {
		p.latencies[k] += v
	}
	for k, v := range o.terms {
		p.terms[k] += v
	}
	p.zero = append(o.zero, p.zero...)
}

// QueryMetrics collects telemetry. Safe for concurrent use.
type QueryMetrics struct {
	mu sync.Mutex

	endpoints     map[Endpoint]int64
	latencies     map[LatencyBucket]int64
	topTerms      *lru.Cache[string, int64]
	zeroResults   *Ring[ZeroResultQuery]
	recentQueries *lru.Cache[string, struct{}]
	total         int64
	zeroCount     int64
	degraded      int64
	repeats       int64
	since         time.Time

	unflushed pending
	store     MetricsStore
	cfg       Config
	stopCh    chan struct{}
	doneCh    chan struct{}
	closed    bool
	now       func() time.Time
}

// NewQueryMetrics creates a collector. A nil store keeps metrics in memory.
func NewQueryMetrics(store MetricsStore, cfg Config) *QueryMetrics {
	def := DefaultConfig()
	if cfg.TopTermsCapacity <= 0 {
		cfg.TopTermsCapacity = def.TopTermsCapacity
	}
	if cfg.ZeroResultsCapacity <= 0 {
		cfg.ZeroResultsCapacity = def.ZeroResultsCapacity
	}
	if cfg.RecentQueriesCapacity <= 0 {
		cfg.RecentQueriesCapacity = def.RecentQueriesCapacity
	}

	topTerms, _ := lru.New[string, int64](cfg.TopTermsCapacity)
	recent, _ := lru.New[string, struct{}](cfg.RecentQueriesCapacity)

	m := &QueryMetrics{
		endpoints:     make(map[Endpoint]int64),
		latencies:     make(map[LatencyBucket]int64),
		topTerms:      topTerms,
		zeroResults:   NewRing[ZeroResultQuery](cfg.ZeroResultsCapacity),
		recentQueries: recent,
		since:         time.Now(),
		unflushed:     newPending(),
		store:         store,
		cfg:           cfg,
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
		now:           time.Now,
	}

	if cfg.FlushInterval > 0 && store != nil {
		go m.flushLoop(cfg.FlushInterval)
	} else {
		close(m.doneCh)
	}
	return m
}

func (m *QueryMetrics) flushLoop(interval time.Duration) {
	defer close(m.doneCh)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := m.Flush(); err != nil {
				slog.Warn("telemetry_flush_failed", slog.String("error", err.Error()))
			}
		case <-m.stopCh:
			return
		}
	}
}

// Record adds one request to the aggregates.
func (m *QueryMetrics) Record(event QueryEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = m.now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}

	m.total++
	m.endpoints[event.Endpoint]++
	m.unflushed.endpoints[event.Endpoint]++

	bucket := LatencyToBucket(event.Latency)
	m.latencies[bucket]++
	m.unflushed.latencies[bucket]++

	for _, term := range ExtractTerms(event.Query) {
		count, _ := m.topTerms.Get(term)
		m.topTerms.Add(term, count+1)
		m.unflushed.terms[term]++
	}

	if event.Degraded {
		m.degraded++
	} else if event.ResultCount == 0 {
		zq := ZeroResultQuery{Endpoint: event.Endpoint, Query: event.Query, Timestamp: event.Timestamp}
		m.zeroCount++
		m.zeroResults.Add(zq)
		m.unflushed.zero = append(m.unflushed.zero, zq)
	}

	key := queryKey(event)
	if _, seen := m.recentQueries.Get(key); seen {
		m.repeats++
	}
	m.recentQueries.Add(key, struct{}{})
}

// queryKey identifies a repeated request: same endpoint, video and
// normalised query text.
func queryKey(e QueryEvent) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(e.Query)), " ")
	sum := sha256.Sum256([]byte(string(e.Endpoint) + "\x00" + e.VideoID + "\x00" + normalized))
	return hex.EncodeToString(sum[:16])
}

// Snapshot copies the current aggregates.
func (m *QueryMetrics) Snapshot() *Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := &Snapshot{
		EndpointCounts:      make(map[Endpoint]int64, len(m.endpoints)),
		LatencyDistribution: make(map[LatencyBucket]int64, len(m.latencies)),
		ZeroResultQueries:   m.zeroResults.Items(),
		TotalQueries:        m.total,
		ZeroResultCount:     m.zeroCount,
		DegradedCount:       m.degraded,
		RepeatCount:         m.repeats,
		UniqueQueries:       m.recentQueries.Len(),
		Since:               m.since,
	}
	for k, v := range m.endpoints {
		s.EndpointCounts[k] = v
	}
	for k, v := range m.latencies {
		s.LatencyDistribution[k] = v
	}
	for _, term := range m.topTerms.Keys() {
		if count, ok := m.topTerms.Peek(term); ok {
			s.TopTerms = append(s.TopTerms, TermCount{Term: term, Count: count})
		}
	}
	sort.SliceStable(s.TopTerms, func(i, j int) bool {
		if s.TopTerms[i].Count != s.TopTerms[j].Count {
			return s.TopTerms[i].Count > s.TopTerms[j].Count
		}
		return s.TopTerms[i].Term < s.TopTerms[j].Term
	})
	return s
}

// Flush writes everything recorded since the previous flush to the store.
// On failure the data is kept for the next attempt.
func (m *QueryMetrics) Flush() error {
	if m.store == nil {
		return nil
	}

	m.mu.Lock()
	batch := m.unflushed
	m.unflushed = newPending()
	m.mu.Unlock()

	if batch.empty() {
		return nil
	}

	date := m.now().Format("2006-01-02")
	err := m.store.SaveEndpointCounts(date, batch.endpoints)
	if err == nil {
		err = m.store.SaveLatencyCounts(date, batch.latencies)
	}
	if err == nil {
		err = m.store.UpsertTermCounts(batch.terms)
	}
	if err == nil {
		err = m.store.AddZeroResultQueries(batch.zero)
	}
	if err != nil {
		m.mu.Lock()
		m.unflushed.merge(batch)
		m.mu.Unlock()
		return fmt.Errorf("flush telemetry: %w", err)
	}
	return nil
}

// Close stops the background flush, flushes once more and closes the store.
func (m *QueryMetrics) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.stopCh)
	<-m.doneCh

	err := m.Flush()
	if m.store != nil {
		if cerr := m.store.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
