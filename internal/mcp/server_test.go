package mcp

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guoyu-zhang/say-like-a-native/internal/config"
	serrors "github.com/guoyu-zhang/say-like-a-native/internal/errors"
	"github.com/guoyu-zhang/say-like-a-native/internal/search"
	"github.com/guoyu-zhang/say-like-a-native/internal/store"
	"github.com/guoyu-zhang/say-like-a-native/internal/telemetry"
)

// failingSearcher fails every store call.
type failingSearcher struct{ err error }

func (f failingSearcher) Search(context.Context, store.Request) (*store.Response, error) {
	return nil, f.err
}

func newTestServer(t *testing.T) (*Server, store.Store) {
	t.Helper()
	s, err := store.NewBleveStore("", config.DefaultIndex)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Index(context.Background(), []store.Segment{
		{VideoID: "abc123", LanguageCode: "en", StartTime: 0.5, EndTime: 2.5, Text: "Welcome to the video"},
		{VideoID: "abc123", LanguageCode: "en", StartTime: 2.5, EndTime: 5.5, Text: "This is an example transcript"},
	}))

	engine, err := search.NewEngine(s, search.DefaultEngineConfig())
	require.NoError(t, err)
	srv, err := NewServer(engine, s)
	require.NoError(t, err)
	return srv, s
}

func TestNewServer_RequiresEngine(t *testing.T) {
	_, err := NewServer(nil, nil)
	assert.Error(t, err)
}

func TestServer_ListTools(t *testing.T) {
	srv, _ := newTestServer(t)

	var names []string
	for _, tool := range srv.ListTools() {
		names = append(names, tool.Name)
		assert.NotEmpty(t, tool.Description)
	}

	assert.Equal(t, []string{ToolSearch, ToolAutocomplete, ToolVideoTranscript}, names)
}

func TestCallTool_Search(t *testing.T) {
	// Given: the abc123 transcript
	srv, _ := newTestServer(t)

	// When: searching for "example"
	text, err := srv.CallTool(context.Background(), ToolSearch, map[string]any{"query": "example", "limit": float64(3)})

	// Then: the markdown shows the match with its lead-in and a link
	require.NoError(t, err)
	assert.Contains(t, text, `## Results for "example"`)
	assert.Contains(t, text, "### 1. abc123 @ 0:02")
	assert.Contains(t, text, "> Welcome to the video")
	assert.Contains(t, text, "> **This is an example transcript**")
	assert.Contains(t, text, "https://www.youtube.com/watch?v=abc123&t=0s")
}

func TestCallTool_SearchValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	_, err := srv.CallTool(context.Background(), ToolSearch, map[string]any{"query": "   "})

	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeInvalidParams, mcpErr.Code)
}

func TestCallTool_SearchDegraded(t *testing.T) {
	// Given: an engine whose store refuses connections
	engine, err := search.NewEngine(failingSearcher{err: assert.AnError}, search.DefaultEngineConfig())
	require.NoError(t, err)
	srv, err := NewServer(engine, nil)
	require.NoError(t, err)

	// When: searching
	_, err = srv.CallTool(context.Background(), ToolSearch, map[string]any{"query": "example"})

	// Then: the degraded message surfaces as a store error
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeStoreUnavailable, mcpErr.Code)
	assert.Contains(t, mcpErr.Message, "search failed")
}

func TestCallTool_Autocomplete(t *testing.T) {
	srv, _ := newTestServer(t)

	text, err := srv.CallTool(context.Background(), ToolAutocomplete, map[string]any{"prefix": "welcome to"})

	require.NoError(t, err)
	assert.Contains(t, text, "- Welcome to the video (abc123 @ 0:00)")
}

func TestCallTool_VideoTranscript(t *testing.T) {
	srv, _ := newTestServer(t)

	t.Run("lists segments in order", func(t *testing.T) {
		text, err := srv.CallTool(context.Background(), ToolVideoTranscript, map[string]any{"video_id": "abc123"})

		require.NoError(t, err)
		assert.Less(t, strings.Index(text, "Welcome to the video"), strings.Index(text, "This is an example transcript"))
	})

	t.Run("requires a video id", func(t *testing.T) {
		_, err := srv.CallTool(context.Background(), ToolVideoTranscript, map[string]any{"query": "x"})

		var mcpErr *MCPError
		require.ErrorAs(t, err, &mcpErr)
		assert.Equal(t, ErrCodeInvalidParams, mcpErr.Code)
	})
}

func TestCallTool_Unknown(t *testing.T) {
	srv, _ := newTestServer(t)

	_, err := srv.CallTool(context.Background(), "search_code", nil)

	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeMethodNotFound, mcpErr.Code)
}

func TestServer_IndexInfo(t *testing.T) {
	srv, _ := newTestServer(t)

	info := srv.IndexInfo(context.Background())

	assert.Equal(t, IndexOutput{Index: config.DefaultIndex, Segments: 2, Status: "ready"}, info)
}

func TestServer_QueryMetrics(t *testing.T) {
	srv, _ := newTestServer(t)
	_, err := srv.QueryMetrics()
	require.Error(t, err, "metrics not set")

	m := telemetry.NewQueryMetrics(nil, telemetry.Config{})
	t.Cleanup(func() { _ = m.Close() })
	srv.SetMetrics(m)
	m.Record(telemetry.QueryEvent{Endpoint: telemetry.EndpointSearch, Query: "nothing here"})

	out, err := srv.QueryMetrics()
	require.NoError(t, err)
	assert.EqualValues(t, 1, out.TotalQueries)
	assert.InDelta(t, 100, out.ZeroResultPct, 1e-9)
	assert.Equal(t, []string{"nothing here"}, out.ZeroResultQueries)
}

func TestServer_ProtocolSession(t *testing.T) {
	// Given: a client connected over in-memory transports
	srv, _ := newTestServer(t)
	ctx := context.Background()
	clientTransport, serverTransport := mcp.NewInMemoryTransports()
	ss, err := srv.MCPServer().Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ss.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cs.Close() })

	// When: listing tools
	list, err := cs.ListTools(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, list.Tools, 3)

	// When: calling search_transcripts
	res, err := cs.CallTool(ctx, &mcp.CallToolParams{
		Name:      ToolSearch,
		Arguments: map[string]any{"query": "example"},
	})

	// Then: both text and structured content come back
	require.NoError(t, err)
	require.False(t, res.IsError)
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	assert.Contains(t, text.Text, "This is an example transcript")

	raw, err := json.Marshal(res.StructuredContent)
	require.NoError(t, err)
	var out SearchOutput
	require.NoError(t, json.Unmarshal(raw, &out))
	require.Len(t, out.Results, 1)
	require.NotNil(t, out.Results[0].Previous)
	assert.Equal(t, "Welcome to the video", out.Results[0].Previous.Text)

	// When: reading the index resource
	rr, err := cs.ReadResource(ctx, &mcp.ReadResourceParams{URI: URIIndex})
	require.NoError(t, err)
	require.Len(t, rr.Contents, 1)
	assert.Contains(t, rr.Contents[0].Text, `"segments": 2`)
}

func TestMapError(t *testing.T) {
	assert.Nil(t, MapError(nil))
	assert.Equal(t, ErrCodeTimeout, MapError(context.DeadlineExceeded).Code)
	assert.Equal(t, ErrCodeInternalError, MapError(assert.AnError).Code)

	timeout := serrors.New(serrors.ErrCodeStoreTimeout, "search timed out", nil)
	assert.Equal(t, ErrCodeTimeout, MapError(timeout).Code)
	invalid := serrors.New(serrors.ErrCodeInvalidQuery, "bad query", nil).WithSuggestion("use words")
	assert.Equal(t, &MCPError{Code: ErrCodeInvalidParams, Message: "bad query (use words)"}, MapError(invalid))

	orig := NewInvalidParamsError("bad")
	assert.Same(t, orig, MapError(orig))
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, 10, clampLimit(0, 10, 1, 50))
	assert.Equal(t, 50, clampLimit(500, 10, 1, 50))
	assert.Equal(t, 3, clampLimit(3, 10, 1, 50))
}
