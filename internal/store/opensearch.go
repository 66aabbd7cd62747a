package store

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/opensearch-project/opensearch-go/v4"
	"github.com/opensearch-project/opensearch-go/v4/opensearchapi"

	serrors "github.com/guoyu-zhang/say-like-a-native/internal/errors"
	"github.com/guoyu-zhang/say-like-a-native/pkg/version"
)

// OpenSearchConfig configures the OpenSearch backend.
type OpenSearchConfig struct {
	URL         string
	Username    string
	Password    string
	VerifyCerts bool
	// Index is the default index for requests that do not name one.
	Index string
	// Transport overrides the HTTP transport, mainly for tests.
	Transport http.RoundTripper
}

// OpenSearchStore talks to an OpenSearch cluster through opensearch-go.
type OpenSearchStore struct {
	cfg       OpenSearchConfig
	client    *opensearchapi.Client
	transport *http.Transport
}

var _ Store = (*OpenSearchStore)(nil)

// segmentIndexMapping matches the mapping transcripts were originally
// ingested with.
var segmentIndexMapping = map[string]any{
	"settings": map[string]any{"number_of_shards": 1},
	"mappings": map[string]any{
		"properties": map[string]any{
			FieldVideoID:      map[string]any{"type": "keyword"},
			FieldLanguageCode: map[string]any{"type": "keyword"},
			FieldStartTime:    map[string]any{"type": "float"},
			FieldEndTime:      map[string]any{"type": "float"},
			FieldText:         map[string]any{"type": "text"},
		},
	},
}

// NewOpenSearchStore creates a client. It does not contact the cluster; call
// Ping or EnsureIndex for that.
func NewOpenSearchStore(cfg OpenSearchConfig) (*OpenSearchStore, error) {
	u, err := url.Parse(strings.TrimRight(cfg.URL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid opensearch url %q", cfg.URL)
	}

	s := &OpenSearchStore{cfg: cfg}
	rt := cfg.Transport
	if rt == nil {
		// No client-wide timeout: per-call contexts carry the deadlines.
		s.transport = &http.Transport{
			MaxIdleConns:        32,
			MaxIdleConnsPerHost: 32,
			IdleConnTimeout:     90 * time.Second,
			TLSClientConfig:     &tls.Config{InsecureSkipVerify: !cfg.VerifyCerts}, //nolint:gosec // matches cluster setups with self-signed certs
		}
		rt = s.transport
	}

	client, err := opensearchapi.NewClient(opensearchapi.Config{
		Client: opensearch.Config{
			Addresses: []string{u.String()},
			Username:  cfg.Username,
			Password:  cfg.Password,
			Transport: rt,
			Header:    http.Header{"User-Agent": []string{version.UserAgent()}},
			// Retries go through serrors.Retry.
			DisableRetry: true,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create opensearch client: %w", err)
	}
	s.client = client
	return s, nil
}

// StatusError is a non-2xx answer from the cluster.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("opensearch returned %d: %s", e.Code, e.Body)
}

// wrapError turns a client error into a StatusError when the cluster
// answered, keeping transport failures as they are.
func wrapError(resp *opensearch.Response, err error) error {
	if err == nil {
		return nil
	}
	if resp != nil && (resp.StatusCode < 200 || resp.StatusCode >= 300) {
		return &StatusError{Code: resp.StatusCode, Body: err.Error()}
	}
	return err
}

// retryable reports whether an error is worth retrying: transport failures
// and 429/5xx answers.
func retryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code == http.StatusTooManyRequests || se.Code >= 500
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

// Ping checks the cluster is reachable, retrying with backoff.
func (s *OpenSearchStore) Ping(ctx context.Context) error {
	cfg := serrors.DefaultRetryConfig()
	cfg.ShouldRetry = retryable
	return serrors.Retry(ctx, cfg, func() error {
		return wrapError(s.client.Ping(ctx, &opensearchapi.PingReq{}))
	})
}

// EnsureIndex creates the configured index with the segment mapping unless
// it already exists.
func (s *OpenSearchStore) EnsureIndex(ctx context.Context) error {
	resp, err := s.client.Indices.Exists(ctx, opensearchapi.IndicesExistsReq{Indices: []string{s.cfg.Index}})
	if resp != nil && resp.StatusCode == http.StatusOK {
		return nil
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		if err == nil {
			err = fmt.Errorf("unexpected response")
		}
		return fmt.Errorf("failed to check index %s: %w", s.cfg.Index, wrapError(resp, err))
	}

	body, err := json.Marshal(segmentIndexMapping)
	if err != nil {
		return err
	}
	created, err := s.client.Indices.Create(ctx, opensearchapi.IndicesCreateReq{
		Index: s.cfg.Index,
		Body:  bytes.NewReader(body),
	})
	if err != nil {
		var raw *opensearch.Response
		if created != nil {
			raw = created.Inspect().Response
		}
		return fmt.Errorf("failed to create index %s: %w", s.cfg.Index, wrapError(raw, err))
	}
	slog.Info("opensearch_index_created", slog.String("index", s.cfg.Index))
	return nil
}

// BuildSearchBody renders req as an OpenSearch query DSL body.
func BuildSearchBody(req Request) (map[string]any, error) {
	q, err := toDSL(req.Query)
	if err != nil {
		return nil, err
	}
	body := map[string]any{"query": q}
	if req.Size > 0 {
		body["size"] = req.Size
	}
	if req.Timeout > 0 {
		body["timeout"] = fmt.Sprintf("%dms", req.Timeout.Milliseconds())
	}
	if len(req.Sort) > 0 {
		sorts := make([]any, 0, len(req.Sort))
		for _, f := range req.Sort {
			order := "asc"
			if f.Desc {
				order = "desc"
			}
			sorts = append(sorts, map[string]any{f.Field: map[string]any{"order": order}})
		}
		body["sort"] = sorts
	}
	return body, nil
}

func toDSL(q Query) (map[string]any, error) {
	switch q := q.(type) {
	case nil, MatchAllQuery:
		return map[string]any{"match_all": map[string]any{}}, nil
	case MatchQuery:
		return map[string]any{"match": map[string]any{q.Field: q.Text}}, nil
	case TermQuery:
		return map[string]any{"term": map[string]any{q.Field: q.Value}}, nil
	case RangeQuery:
		bounds := map[string]any{}
		for key, v := range map[string]*float64{"gt": q.GT, "gte": q.GTE, "lt": q.LT, "lte": q.LTE} {
			if v != nil {
				bounds[key] = *v
			}
		}
		return map[string]any{"range": map[string]any{q.Field: bounds}}, nil
	case PhrasePrefixQuery:
		inner := map[string]any{"query": q.Text}
		if q.MaxExpansions > 0 {
			inner["max_expansions"] = q.MaxExpansions
		}
		return map[string]any{"match_phrase_prefix": map[string]any{q.Field: inner}}, nil
	case BoolQuery:
		b := map[string]any{}
		for key, clauses := range map[string][]Query{"must": q.Must, "filter": q.Filter} {
			if len(clauses) == 0 {
				continue
			}
			out := make([]any, 0, len(clauses))
			for _, c := range clauses {
				d, err := toDSL(c)
				if err != nil {
					return nil, err
				}
				out = append(out, d)
			}
			b[key] = out
		}
		return map[string]any{"bool": b}, nil
	default:
		return nil, fmt.Errorf("unsupported query type %T", q)
	}
}

// Search posts req to <index>/_search.
func (s *OpenSearchStore) Search(ctx context.Context, req Request) (*Response, error) {
	body, err := BuildSearchBody(req)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	indexName := req.Index
	if indexName == "" {
		indexName = s.cfg.Index
	}

	res, err := s.client.Search(ctx, &opensearchapi.SearchReq{
		Indices: []string{indexName},
		Body:    bytes.NewReader(data),
	})
	if err != nil {
		var raw *opensearch.Response
		if res != nil {
			raw = res.Inspect().Response
		}
		return nil, wrapError(raw, err)
	}

	resp := &Response{
		Hits:  make([]Hit, 0, len(res.Hits.Hits)),
		Total: res.Hits.Total.Value,
		Took:  time.Duration(res.Took) * time.Millisecond,
	}
	for _, h := range res.Hits.Hits {
		var fields map[string]any
		if err := json.Unmarshal(h.Source, &fields); err != nil {
			slog.Debug("segment_skipped", slog.String("id", h.ID), slog.String("error", err.Error()))
			continue
		}
		seg, err := segmentFromFields(fields)
		if err != nil {
			slog.Debug("segment_skipped", slog.String("id", h.ID), slog.String("error", err.Error()))
			continue
		}
		resp.Hits = append(resp.Hits, Hit{Segment: seg, Score: float64(h.Score)})
	}
	return resp, nil
}

// Index upserts segments through the _bulk API, retrying transient failures.
func (s *OpenSearchStore) Index(ctx context.Context, segments []Segment) error {
	if len(segments) == 0 {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, seg := range segments {
		if err := seg.Validate(); err != nil {
			return fmt.Errorf("segment %s: %w", seg.DocID(), err)
		}
		action := map[string]any{"index": map[string]any{"_index": s.cfg.Index, "_id": seg.DocID()}}
		if err := enc.Encode(action); err != nil {
			return err
		}
		if err := enc.Encode(seg); err != nil {
			return err
		}
	}
	payload := buf.Bytes()

	cfg := serrors.DefaultRetryConfig()
	cfg.ShouldRetry = retryable
	res, err := serrors.RetryWithResult(ctx, cfg, func() (*opensearchapi.BulkResp, error) {
		out, err := s.client.Bulk(ctx, opensearchapi.BulkReq{Body: bytes.NewReader(payload)})
		if err != nil {
			var raw *opensearch.Response
			if out != nil {
				raw = out.Inspect().Response
			}
			return nil, wrapError(raw, err)
		}
		return out, nil
	})
	if err != nil {
		return fmt.Errorf("bulk index failed: %w", err)
	}
	if res.Errors {
		for _, item := range res.Items {
			for _, r := range item {
				if r.Error != nil {
					return fmt.Errorf("bulk index failed for %s: %s: %s", r.ID, r.Error.Type, r.Error.Reason)
				}
			}
		}
		return fmt.Errorf("bulk index reported errors")
	}
	return nil
}

// DeleteVideo removes every segment of videoID with _delete_by_query and
// refreshes the index so the removal is visible to the next search.
func (s *OpenSearchStore) DeleteVideo(ctx context.Context, videoID string) (int, error) {
	body, err := json.Marshal(map[string]any{
		"query": map[string]any{"term": map[string]any{FieldVideoID: videoID}},
	})
	if err != nil {
		return 0, err
	}
	refresh := true
	res, err := s.client.Document.DeleteByQuery(ctx, opensearchapi.DocumentDeleteByQueryReq{
		Indices: []string{s.cfg.Index},
		Body:    bytes.NewReader(body),
		Params:  opensearchapi.DocumentDeleteByQueryParams{Refresh: &refresh},
	})
	if err != nil {
		var raw *opensearch.Response
		if res != nil {
			raw = res.Inspect().Response
		}
		return 0, fmt.Errorf("failed to delete segments of %s: %w", videoID, wrapError(raw, err))
	}
	return res.Deleted, nil
}

// Count returns the document count of the configured index.
func (s *OpenSearchStore) Count(ctx context.Context) (int, error) {
	res, err := s.client.Indices.Count(ctx, &opensearchapi.IndicesCountReq{Indices: []string{s.cfg.Index}})
	if err != nil {
		var raw *opensearch.Response
		if res != nil {
			raw = res.Inspect().Response
		}
		return 0, wrapError(raw, err)
	}
	return res.Count, nil
}

// Close releases idle connections.
func (s *OpenSearchStore) Close() error {
	if s.transport != nil {
		s.transport.CloseIdleConnections()
	}
	return nil
}
