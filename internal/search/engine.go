package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	serrors "github.com/guoyu-zhang/say-like-a-native/internal/errors"
	"github.com/guoyu-zhang/say-like-a-native/internal/store"
	"github.com/guoyu-zhang/say-like-a-native/internal/telemetry"
)

// minAutocompleteRunes is the shortest prefix worth sending to the store.
const minAutocompleteRunes = 2

// MissingVideoIDMessage is the error text of a video search without a video.
const MissingVideoIDMessage = "video_id is required"

// Engine runs the search, autocomplete and video search pipelines:
// validate, primary query, deduplicate, enrich, truncate.
type Engine struct {
	searcher store.Searcher
	builder  *QueryBuilder
	pool     *Pool
	enricher *Enricher
	breaker  *serrors.CircuitBreaker
	metrics  *telemetry.QueryMetrics
	config   EngineConfig
}

// EngineOption configures the engine.
type EngineOption func(*Engine)

// WithMetrics records every request in m.
func WithMetrics(m *telemetry.QueryMetrics) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithPool shares an existing worker pool instead of creating one.
func WithPool(p *Pool) EngineOption {
	return func(e *Engine) {
		if p != nil {
			e.pool = p
		}
	}
}

// NewEngine creates an engine over searcher.
func NewEngine(searcher store.Searcher, cfg EngineConfig, opts ...EngineOption) (*Engine, error) {
	if searcher == nil {
		return nil, fmt.Errorf("%w: searcher", ErrNilDependency)
	}

	def := DefaultEngineConfig()
	if cfg.SearchTimeout <= 0 {
		cfg.SearchTimeout = def.SearchTimeout
	}
	if cfg.AutocompleteTimeout <= 0 {
		cfg.AutocompleteTimeout = def.AutocompleteTimeout
	}
	if cfg.EnrichTimeout <= 0 {
		cfg.EnrichTimeout = def.EnrichTimeout
	}
	if cfg.DefaultSize <= 0 {
		cfg.DefaultSize = def.DefaultSize
	}
	if cfg.AutocompleteDefaultSize <= 0 {
		cfg.AutocompleteDefaultSize = def.AutocompleteDefaultSize
	}

	e := &Engine{
		searcher: searcher,
		builder:  NewQueryBuilder(cfg),
		pool:     NewPool(cfg.Workers),
		breaker: serrors.NewCircuitBreaker("store",
			serrors.WithMaxFailures(cfg.CircuitMaxFailures),
			serrors.WithResetTimeout(cfg.CircuitResetTimeout)),
		config: cfg,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.enricher = NewEnricher(searcher, e.builder, e.pool)
	return e, nil
}

// Config returns the effective configuration.
func (e *Engine) Config() EngineConfig {
	return e.config
}

// Builder returns the query builder, for size clamping at the surfaces.
func (e *Engine) Builder() *QueryBuilder {
	return e.builder
}

// primary runs req on the pool behind the circuit breaker. A caller that
// hangs up does not count against the store.
func (e *Engine) primary(ctx context.Context, req store.Request) (*store.Response, error) {
	return serrors.CircuitExecute(e.breaker, func() (*store.Response, error) {
		return Run(ctx, e.pool, func(ctx context.Context) (*store.Response, error) {
			return e.searcher.Search(ctx, req)
		})
	}, func(err error) bool {
		return errors.Is(err, context.Canceled)
	})
}

// enrich runs the lookups under their own budget derived from the request.
func (e *Engine) enrich(ctx context.Context, hits []store.Hit) []EnrichedResult {
	ctx, cancel := context.WithTimeout(ctx, e.config.EnrichTimeout)
	defer cancel()
	return e.enricher.Enrich(ctx, hits)
}

func (e *Engine) record(ev telemetry.QueryEvent) {
	if e.metrics != nil {
		e.metrics.Record(ev)
	}
}

// degrade logs a failed primary query and returns its user-facing text.
func degrade(op, query string, err error) string {
	serr := serrors.FromStoreError(op, err)
	attrs := append([]any{slog.String("op", op), slog.String("query", query)}, serrors.LogAttrs(serr)...)
	slog.Warn("primary_query_failed", attrs...)
	return serrors.UserMessage(serr)
}

// Search finds segments matching q, at most one per video, each with its
// preceding segment. It never fails; faults are reported in Error.
func (e *Engine) Search(ctx context.Context, q string, size int) *SearchResponse {
	start := time.Now()
	resp := &SearchResponse{Query: q, Results: []EnrichedResult{}}
	if strings.TrimSpace(q) == "" {
		return resp
	}
	size = e.builder.ClampSize(size)

	pctx, cancel := context.WithTimeout(ctx, e.config.SearchTimeout)
	primary, err := e.primary(pctx, e.builder.Primary(q, size))
	cancel()
	if err != nil {
		resp.Error = degrade("search", q, err)
		e.record(telemetry.QueryEvent{Endpoint: telemetry.EndpointSearch, Query: q, Latency: time.Since(start), Degraded: true})
		return resp
	}

	unique := DedupByVideo(primary.Hits, size)
	resp.Results = e.enrich(ctx, unique)
	resp.Count = len(resp.Results)

	slog.Debug("search_complete",
		slog.String("query", q),
		slog.Int("hits", len(primary.Hits)),
		slog.Int("results", resp.Count),
		slog.Duration("duration", time.Since(start)))
	e.record(telemetry.QueryEvent{Endpoint: telemetry.EndpointSearch, Query: q, ResultCount: resp.Count, Latency: time.Since(start)})
	return resp
}

// Autocomplete suggests segment texts continuing prefix q. Prefixes shorter
// than two characters return no suggestions without querying the store.
func (e *Engine) Autocomplete(ctx context.Context, q string, size int) *AutocompleteResponse {
	start := time.Now()
	resp := &AutocompleteResponse{Query: q, Suggestions: []Suggestion{}}
	prefix := strings.TrimSpace(q)
	if utf8.RuneCountInString(prefix) < minAutocompleteRunes {
		return resp
	}
	size = e.builder.ClampSize(size)

	pctx, cancel := context.WithTimeout(ctx, e.config.AutocompleteTimeout)
	primary, err := e.primary(pctx, e.builder.Autocomplete(prefix, size))
	cancel()
	if err != nil {
		resp.Error = degrade("autocomplete", q, err)
		e.record(telemetry.QueryEvent{Endpoint: telemetry.EndpointAutocomplete, Query: q, Latency: time.Since(start), Degraded: true})
		return resp
	}

	for _, h := range DedupByText(primary.Hits, size) {
		resp.Suggestions = append(resp.Suggestions, Suggestion{
			Text:      h.Text,
			VideoID:   h.VideoID,
			StartTime: h.StartTime,
			EndTime:   h.EndTime,
			Score:     h.Score,
		})
	}

	slog.Debug("autocomplete_complete",
		slog.String("query", q),
		slog.Int("suggestions", len(resp.Suggestions)),
		slog.Duration("duration", time.Since(start)))
	e.record(telemetry.QueryEvent{Endpoint: telemetry.EndpointAutocomplete, Query: q, ResultCount: len(resp.Suggestions), Latency: time.Since(start)})
	return resp
}

// VideoSearch searches within one video. An empty q lists the video's
// segments from the start. singleResult limits the answer to one hit.
func (e *Engine) VideoSearch(ctx context.Context, videoID, q string, size int, singleResult bool) *VideoSearchResponse {
	start := time.Now()
	videoID = strings.TrimSpace(videoID)
	resp := &VideoSearchResponse{VideoID: videoID, Query: q, Results: []EnrichedResult{}}
	if videoID == "" {
		resp.Error = MissingVideoIDMessage
		return resp
	}
	if singleResult {
		size = 1
	}
	size = e.builder.ClampSize(size)

	pctx, cancel := context.WithTimeout(ctx, e.config.SearchTimeout)
	primary, err := e.primary(pctx, e.builder.Video(videoID, q, size))
	cancel()
	if err != nil {
		resp.Error = degrade("video search", q, err)
		e.record(telemetry.QueryEvent{Endpoint: telemetry.EndpointVideoSearch, VideoID: videoID, Query: q, Latency: time.Since(start), Degraded: true})
		return resp
	}

	hits := primary.Hits
	if len(hits) > size {
		hits = hits[:size]
	}
	resp.Results = e.enrich(ctx, hits)

	slog.Debug("video_search_complete",
		slog.String("video_id", videoID),
		slog.String("query", q),
		slog.Int("results", len(resp.Results)),
		slog.Duration("duration", time.Since(start)))
	e.record(telemetry.QueryEvent{Endpoint: telemetry.EndpointVideoSearch, VideoID: videoID, Query: q, ResultCount: len(resp.Results), Latency: time.Since(start)})
	return resp
}
