package search

import (
	"strings"
	"time"

	"github.com/guoyu-zhang/say-like-a-native/internal/store"
)

// QueryBuilder turns validated request parameters into store requests.
// It does no I/O.
type QueryBuilder struct {
	index           string
	maxSize         int
	fetchMultiplier int
	maxExpansions   int
	storeTimeout    time.Duration
}

// NewQueryBuilder creates a builder from the engine config, filling zero
// values with defaults.
func NewQueryBuilder(cfg EngineConfig) *QueryBuilder {
	b := &QueryBuilder{
		index:           cfg.Index,
		maxSize:         cfg.MaxSize,
		fetchMultiplier: cfg.FetchMultiplier,
		maxExpansions:   cfg.MaxExpansions,
		storeTimeout:    cfg.AutocompleteStoreTimeout,
	}
	if b.maxSize <= 0 {
		b.maxSize = 100
	}
	if b.fetchMultiplier <= 0 {
		b.fetchMultiplier = 3
	}
	if b.maxExpansions <= 0 {
		b.maxExpansions = 10
	}
	return b
}

// ClampSize bounds size to [1, max].
func (b *QueryBuilder) ClampSize(size int) int {
	switch {
	case size < 1:
		return 1
	case size > b.maxSize:
		return b.maxSize
	}
	return size
}

// FetchSize is how many primary hits to request so that size unique videos
// usually survive deduplication.
func (b *QueryBuilder) FetchSize(size int) int {
	size = b.ClampSize(size)
	return max(size*b.fetchMultiplier, size)
}

// Primary matches q against segment text.
func (b *QueryBuilder) Primary(q string, size int) store.Request {
	return store.Request{
		Index: b.index,
		Query: store.MatchQuery{Field: store.FieldText, Text: q},
		Size:  b.FetchSize(size),
	}
}

// Autocomplete treats the last word of prefix as incomplete. Twice the
// requested size is fetched to leave room for duplicate texts.
func (b *QueryBuilder) Autocomplete(prefix string, size int) store.Request {
	return store.Request{
		Index: b.index,
		Query: store.PhrasePrefixQuery{
			Field:         store.FieldText,
			Text:          prefix,
			MaxExpansions: b.maxExpansions,
		},
		Size:    2 * b.ClampSize(size),
		Timeout: b.storeTimeout,
	}
}

// Video restricts the search to one video. Without text it lists the
// video's segments in playback order.
func (b *QueryBuilder) Video(videoID, q string, size int) store.Request {
	filter := []store.Query{store.TermQuery{Field: store.FieldVideoID, Value: videoID}}
	req := store.Request{Index: b.index, Size: b.ClampSize(size)}

	if strings.TrimSpace(q) == "" {
		req.Query = store.BoolQuery{Filter: filter}
		req.Sort = []store.SortField{{Field: store.FieldStartTime}}
		return req
	}
	req.Query = store.BoolQuery{
		Must:   []store.Query{store.MatchQuery{Field: store.FieldText, Text: q}},
		Filter: filter,
	}
	return req
}

// Previous finds the latest segment of the same video (and language, when
// known) that starts strictly before seg.
func (b *QueryBuilder) Previous(seg store.Segment) store.Request {
	filter := []store.Query{store.TermQuery{Field: store.FieldVideoID, Value: seg.VideoID}}
	if seg.LanguageCode != "" {
		filter = append(filter, store.TermQuery{Field: store.FieldLanguageCode, Value: seg.LanguageCode})
	}
	filter = append(filter, store.RangeQuery{Field: store.FieldStartTime, LT: store.Float(seg.StartTime)})

	return store.Request{
		Index: b.index,
		Query: store.BoolQuery{Filter: filter},
		Sort:  []store.SortField{{Field: store.FieldStartTime, Desc: true}},
		Size:  1,
	}
}
