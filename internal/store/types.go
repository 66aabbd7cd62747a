// Package store holds transcript segments and answers structured queries
// over them. Three backends share one contract: an embedded Bleve index, an
// embedded SQLite FTS5 database and a remote OpenSearch cluster.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Field names shared by every backend.
const (
	FieldVideoID      = "video_id"
	FieldLanguageCode = "language_code"
	FieldStartTime    = "start_time"
	FieldEndTime      = "end_time"
	FieldText         = "text"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store is closed")

// ErrInvalidSegment marks documents rejected at the store boundary.
var ErrInvalidSegment = errors.New("invalid segment")

// Segment is one timestamped span of a video transcript.
type Segment struct {
	VideoID      string  `json:"video_id"`
	LanguageCode string  `json:"language_code,omitempty"`
	StartTime    float64 `json:"start_time"`
	EndTime      float64 `json:"end_time"`
	Text         string  `json:"text"`
}

// Validate rejects segments no backend may store or return.
func (s Segment) Validate() error {
	switch {
	case s.VideoID == "":
		return fmt.Errorf("%w: missing video_id", ErrInvalidSegment)
	case s.Text == "":
		return fmt.Errorf("%w: empty text", ErrInvalidSegment)
	case s.StartTime < 0 || s.EndTime < 0:
		return fmt.Errorf("%w: negative time", ErrInvalidSegment)
	}
	return nil
}

// DocID is the stable document identifier of a segment. Re-indexing the same
// transcript overwrites rather than duplicates.
func (s Segment) DocID() string {
	if s.LanguageCode == "" {
		return fmt.Sprintf("%s/%.3f", s.VideoID, s.StartTime)
	}
	return fmt.Sprintf("%s/%s/%.3f", s.VideoID, s.LanguageCode, s.StartTime)
}

// Hit is a segment returned by a query with its relevance score.
type Hit struct {
	Segment
	Score float64 `json:"score"`
}

// SortField orders hits by a stored field.
type SortField struct {
	Field string
	Desc  bool
}

// Request is a single query against a named index.
type Request struct {
	Index string
	Query Query
	Sort  []SortField
	Size  int
	// Timeout bounds the store-side execution. Zero means no bound beyond ctx.
	Timeout time.Duration
}

// Response carries the hits in store order.
type Response struct {
	Hits  []Hit
	Total int
	Took  time.Duration
}

// Searcher runs queries.
type Searcher interface {
	Search(ctx context.Context, req Request) (*Response, error)
}

// Indexer writes segments.
type Indexer interface {
	// Index upserts segments by DocID.
	Index(ctx context.Context, segments []Segment) error
	// DeleteVideo removes every segment of a video and returns how many went.
	DeleteVideo(ctx context.Context, videoID string) (int, error)
}

// Store is a complete backend.
type Store interface {
	Searcher
	Indexer
	Count(ctx context.Context) (int, error)
	Close() error
}

// segmentFromFields decodes stored fields into a validated Segment.
func segmentFromFields(fields map[string]any) (Segment, error) {
	var seg Segment
	var ok bool

	if seg.VideoID, ok = fields[FieldVideoID].(string); !ok {
		return seg, fmt.Errorf("%w: missing video_id", ErrInvalidSegment)
	}
	seg.LanguageCode, _ = fields[FieldLanguageCode].(string)
	seg.Text, _ = fields[FieldText].(string)

	var err error
	if seg.StartTime, err = toFloat(fields[FieldStartTime]); err != nil {
		return seg, fmt.Errorf("%w: start_time: %v", ErrInvalidSegment, err)
	}
	if seg.EndTime, err = toFloat(fields[FieldEndTime]); err != nil {
		return seg, fmt.Errorf("%w: end_time: %v", ErrInvalidSegment, err)
	}

	return seg, seg.Validate()
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case interface{ Float64() (float64, error) }:
		return n.Float64()
	case nil:
		return 0, errors.New("missing")
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}
