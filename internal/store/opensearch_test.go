package store

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	serrors "github.com/guoyu-zhang/say-like-a-native/internal/errors"
)

func newTestOpenSearch(t *testing.T, handler http.HandlerFunc) *OpenSearchStore {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	s, err := NewOpenSearchStore(OpenSearchConfig{URL: srv.URL, Index: testIndex, Username: "admin", Password: "secret"})
	require.NoError(t, err)
	return s
}

func TestNewOpenSearchStore_RejectsBadURL(t *testing.T) {
	_, err := NewOpenSearchStore(OpenSearchConfig{URL: "localhost"})
	assert.Error(t, err)
}

func TestBuildSearchBody_PreviousLookup(t *testing.T) {
	// Given: the request used to find the segment before 2.5s of abc123
	req := Request{
		Query: BoolQuery{Filter: []Query{
			TermQuery{Field: FieldVideoID, Value: "abc123"},
			RangeQuery{Field: FieldStartTime, LT: Float(2.5)},
		}},
		Sort:    []SortField{{Field: FieldStartTime, Desc: true}},
		Size:    1,
		Timeout: 5 * time.Second,
	}

	// When: rendering the DSL
	body, err := BuildSearchBody(req)
	require.NoError(t, err)
	data, err := json.Marshal(body)
	require.NoError(t, err)

	// Then: it matches the hand-written OpenSearch query
	assert.JSONEq(t, `{
		"query": {"bool": {"filter": [
			{"term": {"video_id": "abc123"}},
			{"range": {"start_time": {"lt": 2.5}}}
		]}},
		"sort": [{"start_time": {"order": "desc"}}],
		"size": 1,
		"timeout": "5000ms"
	}`, string(data))
}

func TestBuildSearchBody_Autocomplete(t *testing.T) {
	body, err := BuildSearchBody(Request{
		Query: PhrasePrefixQuery{Field: FieldText, Text: "see you la", MaxExpansions: 10},
		Size:  15,
	})
	require.NoError(t, err)
	data, err := json.Marshal(body)
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"query": {"match_phrase_prefix": {"text": {"query": "see you la", "max_expansions": 10}}},
		"size": 15
	}`, string(data))
}

func TestOpenSearchStore_SearchSkipsInvalidHits(t *testing.T) {
	var gotBody map[string]any
	s := newTestOpenSearch(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/"+testIndex+"/_search", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "admin", user)
		assert.Equal(t, "secret", pass)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		_, _ = w.Write([]byte(`{
			"took": 7,
			"hits": {
				"total": {"value": 42},
				"hits": [
					{"_id": "a", "_score": 3.5, "_source": {"video_id": "abc123", "start_time": 2.5, "end_time": 5.5, "text": "This is an example transcript"}},
					{"_id": "b", "_score": 2.0, "_source": {"video_id": "abc123", "start_time": 2.5, "text": "no end"}},
					{"_id": "c", "_score": 1.0, "_source": {"video_id": "xyz789", "language_code": "en", "start_time": 12, "end_time": 14, "text": "Today we look at an example"}}
				]
			}
		}`))
	})

	resp, err := s.Search(context.Background(), Request{Query: MatchQuery{Field: FieldText, Text: "example"}, Size: 3})

	require.NoError(t, err)
	assert.Equal(t, map[string]any{"match": map[string]any{"text": "example"}}, gotBody["query"])
	assert.Equal(t, 42, resp.Total)
	assert.Equal(t, 7*time.Millisecond, resp.Took)
	require.Len(t, resp.Hits, 2)
	assert.Equal(t, 3.5, resp.Hits[0].Score)
	assert.Equal(t, "en", resp.Hits[1].LanguageCode)
}

func TestOpenSearchStore_SearchStatusError(t *testing.T) {
	s := newTestOpenSearch(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error": {"type": "index_not_found_exception", "reason": "no such index [missing]"}, "status": 404}`))
	})

	_, err := s.Search(context.Background(), Request{Index: "missing", Query: MatchAllQuery{}})

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.Code)
	assert.Contains(t, se.Body, "index_not_found_exception")
	assert.False(t, retryable(err))
}

func TestOpenSearchStore_IndexBulk(t *testing.T) {
	// Given: a cluster that fails the first bulk call with 503
	var calls atomic.Int32
	var mu sync.Mutex
	var lines []string
	s := newTestOpenSearch(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/_bulk", r.URL.Path)
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		mu.Lock()
		defer mu.Unlock()
		lines = nil
		sc := bufio.NewScanner(r.Body)
		for sc.Scan() {
			lines = append(lines, sc.Text())
		}
		_, _ = w.Write([]byte(`{"errors": false, "items": []}`))
	})

	// When: indexing two segments
	err := s.Index(context.Background(), fixtureSegments()[:2])

	// Then: the retry succeeds with action and source lines
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	mu.Lock()
	defer mu.Unlock()
	require.Len(t, lines, 4)
	assert.JSONEq(t, `{"index": {"_index": "`+testIndex+`", "_id": "abc123/en/0.500"}}`, lines[0])
	assert.JSONEq(t, `{"video_id":"abc123","language_code":"en","start_time":0.5,"end_time":2.5,"text":"Welcome to the video"}`, lines[1])
}

func TestOpenSearchStore_PingRetriesUnavailable(t *testing.T) {
	// Given: a cluster that is still starting up
	var calls atomic.Int32
	s := newTestOpenSearch(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	})

	// When: pinging
	err := s.Ping(context.Background())

	// Then: it keeps trying until the cluster answers
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestOpenSearchStore_IndexReportsItemErrors(t *testing.T) {
	s := newTestOpenSearch(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"errors": true, "items": [
			{"index": {"_id": "abc123/en/0.500", "status": 400, "error": {"type": "mapper_parsing_exception", "reason": "bad start_time"}}}
		]}`))
	})

	err := s.Index(context.Background(), fixtureSegments()[:1])

	require.Error(t, err)
	assert.Contains(t, err.Error(), "mapper_parsing_exception")
}

func TestOpenSearchStore_IndexRejectsInvalidSegment(t *testing.T) {
	s := newTestOpenSearch(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Fail(t, "no request expected")
	})

	err := s.Index(context.Background(), []Segment{{VideoID: "v", StartTime: 1, EndTime: 2}})

	assert.ErrorIs(t, err, ErrInvalidSegment)
}

func TestOpenSearchStore_DeleteAndCount(t *testing.T) {
	s := newTestOpenSearch(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/_delete_by_query"):
			assert.Equal(t, "true", r.URL.Query().Get("refresh"))
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, map[string]any{"term": map[string]any{"video_id": "abc123"}}, body["query"])
			_, _ = w.Write([]byte(`{"deleted": 4}`))
		case strings.HasSuffix(r.URL.Path, "/_count"):
			_, _ = w.Write([]byte(`{"count": 2}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	})

	n, err := s.DeleteVideo(context.Background(), "abc123")
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	total, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, total)
}

func TestOpenSearchStore_EnsureIndexCreatesMissing(t *testing.T) {
	// Given: a cluster without the index
	var created atomic.Bool
	s := newTestOpenSearch(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodHead:
			w.WriteHeader(http.StatusNotFound)
		case http.MethodPut:
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Contains(t, body, "mappings")
			created.Store(true)
			_, _ = w.Write([]byte(`{"acknowledged": true}`))
		}
	})

	// When: ensuring the index
	err := s.EnsureIndex(context.Background())

	// Then: it is created with the mapping
	require.NoError(t, err)
	assert.True(t, created.Load())
}

func TestOpenSearchStore_EnsureIndexExisting(t *testing.T) {
	s := newTestOpenSearch(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
	})

	assert.NoError(t, s.EnsureIndex(context.Background()))
}

func TestOpen_OpenSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	s, err := Open(context.Background(), Config{
		Backend:    BackendOpenSearch,
		Index:      testIndex,
		OpenSearch: OpenSearchConfig{URL: srv.URL},
	})

	require.NoError(t, err)
	assert.IsType(t, &OpenSearchStore{}, s)
	assert.NoError(t, s.Close())
}

func TestOpen_Embedded(t *testing.T) {
	dir := t.TempDir()

	for _, backend := range []string{BackendBleve, BackendSQLite, ""} {
		s, err := Open(context.Background(), Config{Backend: backend, DataDir: dir, Index: testIndex})
		require.NoError(t, err, backend)
		require.NoError(t, s.Close())
	}
	assert.FileExists(t, Config{Backend: BackendSQLite, DataDir: dir}.Path())
	assert.DirExists(t, Config{Backend: BackendBleve, DataDir: dir}.Path())
}

func TestOpen_UnknownBackend(t *testing.T) {
	_, err := Open(context.Background(), Config{Backend: "elasticsearch"})

	require.Error(t, err)
	assert.Equal(t, serrors.ErrCodeUnknownBackend, serrors.GetCode(err))
}

func TestConfig_Path(t *testing.T) {
	assert.Empty(t, Config{Backend: BackendBleve}.Path())
	assert.Empty(t, Config{Backend: BackendOpenSearch, DataDir: "/data"}.Path())
	assert.Equal(t, "/data/segments.db", Config{Backend: BackendSQLite, DataDir: "/data"}.Path())
	assert.Equal(t, "/data/segments.bleve", Config{Backend: "BLEVE", DataDir: "/data"}.Path())
}
