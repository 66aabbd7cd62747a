package search

import (
	"errors"
	"time"

	"github.com/guoyu-zhang/say-like-a-native/internal/config"
	"github.com/guoyu-zhang/say-like-a-native/internal/store"
)

// ErrNilDependency is returned when a required dependency is nil.
var ErrNilDependency = errors.New("nil dependency")

// EnrichedResult is a hit with the segment spoken just before it.
type EnrichedResult struct {
	store.Hit
	// Previous is nil when the hit opens its video or the lookup failed.
	Previous *store.Segment `json:"previous,omitempty"`
}

// SearchResponse answers GET /search. It is always returned, never an error:
// on failure Error is set and Results is empty.
type SearchResponse struct {
	Query   string           `json:"query"`
	Count   int              `json:"count"`
	Results []EnrichedResult `json:"results"`
	Error   string           `json:"error,omitempty"`
}

// Suggestion is one autocomplete candidate.
type Suggestion struct {
	Text      string  `json:"text"`
	VideoID   string  `json:"video_id"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
	Score     float64 `json:"score"`
}

// AutocompleteResponse answers GET /autocomplete.
type AutocompleteResponse struct {
	Query       string       `json:"query"`
	Suggestions []Suggestion `json:"suggestions"`
	Error       string       `json:"error,omitempty"`
}

// VideoSearchResponse answers GET /video-search.
type VideoSearchResponse struct {
	VideoID string           `json:"video_id"`
	Query   string           `json:"query"`
	Results []EnrichedResult `json:"results"`
	Error   string           `json:"error,omitempty"`
}

// EngineConfig configures the engine.
type EngineConfig struct {
	// Index is the store index every request targets.
	Index string

	DefaultSize             int
	MaxSize                 int
	AutocompleteDefaultSize int
	FetchMultiplier         int
	MaxExpansions           int

	// SearchTimeout bounds the primary query of search and video search.
	SearchTimeout time.Duration
	// AutocompleteTimeout bounds the whole autocomplete primary query.
	AutocompleteTimeout time.Duration
	// AutocompleteStoreTimeout is passed to the store as its own budget.
	AutocompleteStoreTimeout time.Duration
	// EnrichTimeout bounds all previous-segment lookups of one request.
	EnrichTimeout time.Duration

	Workers             int
	CircuitMaxFailures  int
	CircuitResetTimeout time.Duration
}

// DefaultEngineConfig returns the production defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfigFrom(config.NewConfig().Search, config.DefaultIndex)
}

// EngineConfigFrom maps the search section of the service config.
func EngineConfigFrom(cfg config.SearchConfig, index string) EngineConfig {
	return EngineConfig{
		Index:                    index,
		DefaultSize:              cfg.DefaultSize,
		MaxSize:                  cfg.MaxSize,
		AutocompleteDefaultSize:  cfg.AutocompleteDefaultSize,
		FetchMultiplier:          cfg.FetchMultiplier,
		MaxExpansions:            cfg.MaxExpansions,
		SearchTimeout:            cfg.SearchTimeout,
		AutocompleteTimeout:      cfg.AutocompleteTimeout,
		AutocompleteStoreTimeout: cfg.AutocompleteStoreTimeout,
		EnrichTimeout:            cfg.EnrichTimeout,
		Workers:                  cfg.Workers,
		CircuitMaxFailures:       cfg.CircuitMaxFailures,
		CircuitResetTimeout:      cfg.CircuitResetTimeout,
	}
}
