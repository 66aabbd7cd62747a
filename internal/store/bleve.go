package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"
	"github.com/blevesearch/bleve/v2/search/query"
	index "github.com/blevesearch/bleve_index_api"
)

const (
	// TranscriptAnalyzerName analyzes segment text: unicode word boundaries,
	// apostrophe folding, lowercase. No stop words, so phrases stay intact.
	TranscriptAnalyzerName = "transcript_analyzer"

	// ApostropheFilterName folds typographic apostrophes.
	ApostropheFilterName = "transcript_apostrophe"

	deletePageSize = 1000
)

func init() {
	_ = registry.RegisterTokenFilter(ApostropheFilterName, apostropheFilterConstructor)
}

// BleveStore is the embedded Bleve backend.
type BleveStore struct {
	mu     sync.RWMutex
	index  bleve.Index
	name   string
	path   string
	closed bool
}

var _ Store = (*BleveStore)(nil)

// validateIndexIntegrity checks index_meta.json before opening so that a
// half-written index is cleared instead of failing every open.
func validateIndexIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(filepath.Join(path, "index_meta.json"))
	if err != nil {
		return fmt.Errorf("index_meta.json unreadable: %w", err)
	}
	if len(data) == 0 {
		return fmt.Errorf("index_meta.json is empty")
	}
	var meta map[string]any
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}
	return nil
}

// isCorruptionError reports errors bleve.Open returns for damaged indexes.
func isCorruptionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, bleve.ErrorIndexMetaCorrupt) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "unexpected end of JSON") ||
		strings.Contains(msg, "error parsing mapping JSON") ||
		strings.Contains(msg, "failed to load segment") ||
		strings.Contains(msg, "error opening bolt")
}

// NewBleveStore opens or creates the index at path. An empty path creates an
// in-memory index. A corrupt on-disk index is removed and recreated empty.
func NewBleveStore(path, name string) (*BleveStore, error) {
	indexMapping, err := NewSegmentMapping()
	if err != nil {
		return nil, fmt.Errorf("failed to create index mapping: %w", err)
	}

	var idx bleve.Index
	if path == "" {
		idx, err = bleve.NewMemOnly(indexMapping)
	} else {
		idx, err = openOrRecreate(path, indexMapping)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create/open index: %w", err)
	}

	return &BleveStore{index: idx, name: name, path: path}, nil
}

func openOrRecreate(path string, indexMapping mapping.IndexMapping) (bleve.Index, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	if validErr := validateIndexIntegrity(path); validErr != nil {
		slog.Warn("segment_index_corrupted",
			slog.String("path", path),
			slog.String("error", validErr.Error()))
		if err := os.RemoveAll(path); err != nil {
			return nil, fmt.Errorf("index corrupted at %s and cannot remove: %w", path, err)
		}
		slog.Info("segment_index_cleared", slog.String("path", path), slog.String("reason", "reindex required"))
	}

	idx, err := bleve.Open(path)
	switch {
	case errors.Is(err, bleve.ErrorIndexPathDoesNotExist):
		return bleve.New(path, indexMapping)
	case isCorruptionError(err):
		slog.Warn("segment_index_open_failed",
			slog.String("path", path),
			slog.String("error", err.Error()))
		if rmErr := os.RemoveAll(path); rmErr != nil {
			return nil, fmt.Errorf("index corrupted, cannot clear: %w (original: %v)", rmErr, err)
		}
		return bleve.New(path, indexMapping)
	}
	return idx, err
}

// NewSegmentMapping builds the mapping for transcript segments: keyword ids,
// numeric times, analyzed text with term vectors for phrase matching.
func NewSegmentMapping() (*mapping.IndexMappingImpl, error) {
	indexMapping := bleve.NewIndexMapping()

	err := indexMapping.AddCustomAnalyzer(TranscriptAnalyzerName, map[string]any{
		"type":          custom.Name,
		"tokenizer":     unicode.Name,
		"token_filters": []string{ApostropheFilterName, lowercase.Name},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add custom analyzer: %w", err)
	}
	indexMapping.DefaultAnalyzer = TranscriptAnalyzerName

	keywordField := func() *mapping.FieldMapping {
		fm := bleve.NewKeywordFieldMapping()
		fm.Analyzer = keyword.Name
		return fm
	}

	textField := bleve.NewTextFieldMapping()
	textField.Analyzer = TranscriptAnalyzerName
	textField.IncludeTermVectors = true

	segment := bleve.NewDocumentStaticMapping()
	segment.AddFieldMappingsAt(FieldVideoID, keywordField())
	segment.AddFieldMappingsAt(FieldLanguageCode, keywordField())
	segment.AddFieldMappingsAt(FieldStartTime, bleve.NewNumericFieldMapping())
	segment.AddFieldMappingsAt(FieldEndTime, bleve.NewNumericFieldMapping())
	segment.AddFieldMappingsAt(FieldText, textField)

	indexMapping.DefaultMapping = segment
	return indexMapping, nil
}

// Index upserts segments in one batch.
func (b *BleveStore) Index(ctx context.Context, segments []Segment) error {
	if len(segments) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}

	batch := b.index.NewBatch()
	for _, seg := range segments {
		if err := seg.Validate(); err != nil {
			return fmt.Errorf("segment %s: %w", seg.DocID(), err)
		}
		if err := batch.Index(seg.DocID(), segmentDocument(seg)); err != nil {
			return fmt.Errorf("failed to index segment %s: %w", seg.DocID(), err)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to execute batch: %w", err)
	}
	return nil
}

func segmentDocument(seg Segment) map[string]any {
	doc := map[string]any{
		FieldVideoID:   seg.VideoID,
		FieldStartTime: seg.StartTime,
		FieldEndTime:   seg.EndTime,
		FieldText:      seg.Text,
	}
	if seg.LanguageCode != "" {
		doc[FieldLanguageCode] = seg.LanguageCode
	}
	return doc
}

// DeleteVideo removes every segment of videoID.
func (b *BleveStore) DeleteVideo(ctx context.Context, videoID string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, ErrClosed
	}

	tq := bleve.NewTermQuery(videoID)
	tq.SetField(FieldVideoID)

	deleted := 0
	for {
		req := bleve.NewSearchRequestOptions(tq, deletePageSize, 0, false)
		res, err := b.index.SearchInContext(ctx, req)
		if err != nil {
			return deleted, fmt.Errorf("failed to find segments of %s: %w", videoID, err)
		}
		if len(res.Hits) == 0 {
			return deleted, nil
		}

		batch := b.index.NewBatch()
		for _, hit := range res.Hits {
			batch.Delete(hit.ID)
		}
		if err := b.index.Batch(batch); err != nil {
			return deleted, fmt.Errorf("failed to delete segments of %s: %w", videoID, err)
		}
		deleted += len(res.Hits)
	}
}

// Search translates req into a Bleve search request.
func (b *BleveStore) Search(ctx context.Context, req Request) (*Response, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, ErrClosed
	}
	if req.Index != "" && req.Index != b.name {
		return nil, fmt.Errorf("unknown index %q", req.Index)
	}

	q, err := b.translate(req.Query)
	if err != nil {
		return nil, err
	}
	if q == nil {
		return &Response{}, nil
	}

	size := req.Size
	if size <= 0 {
		size = 10
	}
	sreq := bleve.NewSearchRequestOptions(q, size, 0, false)
	sreq.Fields = []string{FieldVideoID, FieldLanguageCode, FieldStartTime, FieldEndTime, FieldText}
	if len(req.Sort) > 0 {
		order := make([]string, 0, len(req.Sort))
		for _, s := range req.Sort {
			if s.Desc {
				order = append(order, "-"+s.Field)
			} else {
				order = append(order, s.Field)
			}
		}
		sreq.SortBy(order)
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}
	// Bleve only polls ctx every few hundred hits.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res, err := b.index.SearchInContext(ctx, sreq)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	resp := &Response{
		Hits:  make([]Hit, 0, len(res.Hits)),
		Total: int(res.Total),
		Took:  res.Took,
	}
	for _, h := range res.Hits {
		seg, err := segmentFromFields(h.Fields)
		if err != nil {
			slog.Debug("segment_skipped", slog.String("id", h.ID), slog.String("error", err.Error()))
			continue
		}
		resp.Hits = append(resp.Hits, Hit{Segment: seg, Score: h.Score})
	}
	return resp, nil
}

// translate maps a Query onto Bleve's query types. A nil query with a nil
// error means nothing can match.
func (b *BleveStore) translate(q Query) (query.Query, error) {
	switch q := q.(type) {
	case nil, MatchAllQuery:
		return bleve.NewMatchAllQuery(), nil

	case MatchQuery:
		mq := bleve.NewMatchQuery(q.Text)
		mq.SetField(q.Field)
		return mq, nil

	case TermQuery:
		tq := bleve.NewTermQuery(q.Value)
		tq.SetField(q.Field)
		return tq, nil

	case RangeQuery:
		var lo, hi *float64
		var loIncl, hiIncl *bool
		switch {
		case q.GTE != nil:
			lo, loIncl = q.GTE, boolPtr(true)
		case q.GT != nil:
			lo, loIncl = q.GT, boolPtr(false)
		}
		switch {
		case q.LTE != nil:
			hi, hiIncl = q.LTE, boolPtr(true)
		case q.LT != nil:
			hi, hiIncl = q.LT, boolPtr(false)
		}
		rq := bleve.NewNumericRangeInclusiveQuery(lo, hi, loIncl, hiIncl)
		rq.SetField(q.Field)
		return rq, nil

	case PhrasePrefixQuery:
		return b.phrasePrefix(q)

	case BoolQuery:
		clauses := make([]query.Query, 0, len(q.Must)+len(q.Filter))
		for _, sub := range append(append([]Query{}, q.Must...), q.Filter...) {
			t, err := b.translate(sub)
			if err != nil || t == nil {
				return nil, err
			}
			clauses = append(clauses, t)
		}
		if len(clauses) == 0 {
			return bleve.NewMatchAllQuery(), nil
		}
		return bleve.NewConjunctionQuery(clauses...), nil

	default:
		return nil, fmt.Errorf("unsupported query type %T", q)
	}
}

// phrasePrefix analyzes the text with the field's analyzer, expands the last
// token against the term dictionary and builds a multi-phrase query.
func (b *BleveStore) phrasePrefix(q PhrasePrefixQuery) (query.Query, error) {
	analyzer := b.index.Mapping().AnalyzerNamed(TranscriptAnalyzerName)
	if analyzer == nil {
		return nil, fmt.Errorf("analyzer %s not registered", TranscriptAnalyzerName)
	}
	tokens := analyzer.Analyze([]byte(q.Text))
	if len(tokens) == 0 {
		return nil, nil
	}

	last := string(tokens[len(tokens)-1].Term)
	expansions, err := b.expandPrefix(q.Field, last, q.MaxExpansions)
	if err != nil {
		return nil, err
	}
	if len(expansions) == 0 {
		return nil, nil
	}

	terms := make([][]string, len(tokens))
	for i, tok := range tokens[:len(tokens)-1] {
		terms[i] = []string{string(tok.Term)}
	}
	terms[len(tokens)-1] = expansions

	if len(terms) == 1 {
		dq := bleve.NewDisjunctionQuery()
		for _, term := range expansions {
			tq := bleve.NewTermQuery(term)
			tq.SetField(q.Field)
			dq.AddQuery(tq)
		}
		return dq, nil
	}
	return query.NewMultiPhraseQuery(terms, q.Field), nil
}

// expandPrefix lists up to limit dictionary terms of field starting with prefix.
func (b *BleveStore) expandPrefix(field, prefix string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 50
	}
	dict, err := b.index.FieldDictPrefix(field, []byte(prefix))
	if err != nil {
		return nil, fmt.Errorf("failed to read term dictionary: %w", err)
	}
	defer func() { _ = dict.Close() }()

	var terms []string
	var entry *index.DictEntry
	for len(terms) < limit {
		entry, err = dict.Next()
		if err != nil {
			return nil, fmt.Errorf("failed to read term dictionary: %w", err)
		}
		if entry == nil {
			break
		}
		terms = append(terms, entry.Term)
	}
	return terms, nil
}

// Count returns the number of stored segments.
func (b *BleveStore) Count(ctx context.Context) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return 0, ErrClosed
	}
	n, err := b.index.DocCount()
	if err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return int(n), nil
}

// Close closes the index. Safe to call twice.
func (b *BleveStore) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.index.Close()
}

func boolPtr(v bool) *bool {
	return &v
}

func apostropheFilterConstructor(config map[string]any, cache *registry.Cache) (analysis.TokenFilter, error) {
	return apostropheFilter{}, nil
}

// apostropheFilter implements analysis.TokenFilter.
type apostropheFilter struct{}

func (apostropheFilter) Filter(input analysis.TokenStream) analysis.TokenStream {
	for _, token := range input {
		if strings.ContainsAny(string(token.Term), "’‘ʼ") {
			token.Term = []byte(apostropheReplacer.Replace(string(token.Term)))
		}
	}
	return input
}
