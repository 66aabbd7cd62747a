package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/guoyu-zhang/say-like-a-native/internal/search"
	"github.com/guoyu-zhang/say-like-a-native/internal/telemetry"
	"github.com/guoyu-zhang/say-like-a-native/pkg/version"
)

const (
	defaultLimit             = 10
	defaultAutocompleteLimit = 5
	maxLimit                 = 50
)

// Counter reports how many segments are indexed.
type Counter interface {
	Count(ctx context.Context) (int, error)
}

// Server bridges AI clients with the transcript search engine.
type Server struct {
	mcp    *mcp.Server
	engine *search.Engine
	store  Counter
	logger *slog.Logger

	// Query telemetry (optional, set via SetMetrics)
	metrics *telemetry.QueryMetrics

	mu sync.RWMutex
}

// ToolInfo contains information about a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

var tools = []ToolInfo{
	{
		Name:        ToolSearch,
		Description: "Find how native speakers say something. Searches spoken YouTube transcripts and returns at most one segment per video, each with the line spoken just before it and a link that starts playback there.",
	},
	{
		Name:        ToolAutocomplete,
		Description: "Complete a partially typed phrase with real sentences from transcripts. Needs at least two characters.",
	},
	{
		Name:        ToolVideoTranscript,
		Description: "Search inside one video's transcript, or list its segments from the start when no query is given.",
	},
}

// NewServer creates a new MCP server. store may be nil.
func NewServer(engine *search.Engine, store Counter) (*Server, error) {
	if engine == nil {
		return nil, errors.New("search engine is required")
	}

	s := &Server{
		engine: engine,
		store:  store,
		logger: slog.Default(),
	}
	s.mcp = mcp.NewServer(
		&mcp.Implementation{Name: version.Name, Version: version.Version},
		nil,
	)
	s.registerTools()
	s.registerIndexResource()
	return s, nil
}

// SetMetrics sets the query metrics collector and registers its resource.
func (s *Server) SetMetrics(m *telemetry.QueryMetrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = m
	if m != nil {
		s.registerQueryMetricsResource()
	}
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Info returns the server name and version.
func (s *Server) Info() (name, ver string) {
	return version.Name, version.Version
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []ToolInfo {
	return append([]ToolInfo(nil), tools...)
}

// CallTool invokes a tool by name and returns its markdown rendering.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	switch name {
	case ToolSearch:
		out, err := s.search(ctx, SearchInput{Query: stringArg(args, "query"), Limit: intArg(args, "limit")})
		if err != nil {
			return "", err
		}
		return FormatSearchResults(fmt.Sprintf("Results for %q", out.Query), out.Results), nil
	case ToolAutocomplete:
		out, err := s.autocomplete(ctx, AutocompleteInput{Prefix: stringArg(args, "prefix"), Limit: intArg(args, "limit")})
		if err != nil {
			return "", err
		}
		return FormatCompletions(out.Prefix, out.Completions), nil
	case ToolVideoTranscript:
		single, _ := args["single_result"].(bool)
		out, err := s.videoTranscript(ctx, VideoTranscriptInput{
			VideoID: stringArg(args, "video_id"),
			Query:   stringArg(args, "query"),
			Limit:   intArg(args, "limit"),
			Single:  single,
		})
		if err != nil {
			return "", err
		}
		return FormatSearchResults("Segments of "+out.VideoID, out.Results), nil
	default:
		return "", NewMethodNotFoundError(name)
	}
}

func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

// intArg accepts JSON numbers, which decode as float64.
func intArg(args map[string]any, key string) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

func (s *Server) search(ctx context.Context, in SearchInput) (SearchOutput, error) {
	if strings.TrimSpace(in.Query) == "" {
		return SearchOutput{}, NewInvalidParamsError("query cannot be empty or whitespace only")
	}
	requestID := generateRequestID()
	limit := clampLimit(in.Limit, defaultLimit, 1, maxLimit)
	start := time.Now()

	resp := s.engine.Search(ctx, in.Query, limit)
	if resp.Error != "" {
		s.logger.Warn("search_transcripts degraded",
			slog.String("request_id", requestID),
			slog.String("error", resp.Error))
		return SearchOutput{}, NewDegradedError(resp.Error)
	}

	s.logger.Info("search_transcripts completed",
		slog.String("request_id", requestID),
		slog.String("query", in.Query),
		slog.Int("result_count", resp.Count),
		slog.Duration("duration", time.Since(start)))
	return SearchOutput{Query: in.Query, Results: toSegmentOutputs(resp.Results)}, nil
}

func (s *Server) autocomplete(ctx context.Context, in AutocompleteInput) (AutocompleteOutput, error) {
	limit := clampLimit(in.Limit, defaultAutocompleteLimit, 1, maxLimit)
	resp := s.engine.Autocomplete(ctx, in.Prefix, limit)
	if resp.Error != "" {
		return AutocompleteOutput{}, NewDegradedError(resp.Error)
	}

	out := AutocompleteOutput{Prefix: in.Prefix, Completions: make([]CompletionOutput, 0, len(resp.Suggestions))}
	for _, sg := range resp.Suggestions {
		out.Completions = append(out.Completions, CompletionOutput{Text: sg.Text, VideoID: sg.VideoID, StartTime: sg.StartTime})
	}
	return out, nil
}

func (s *Server) videoTranscript(ctx context.Context, in VideoTranscriptInput) (SearchOutput, error) {
	if strings.TrimSpace(in.VideoID) == "" {
		return SearchOutput{}, NewInvalidParamsError(search.MissingVideoIDMessage)
	}
	limit := clampLimit(in.Limit, defaultLimit, 1, maxLimit)
	resp := s.engine.VideoSearch(ctx, in.VideoID, in.Query, limit, in.Single)
	if resp.Error != "" {
		return SearchOutput{}, NewDegradedError(resp.Error)
	}
	return SearchOutput{Query: in.Query, VideoID: resp.VideoID, Results: toSegmentOutputs(resp.Results)}, nil
}

// registerTools registers all tools with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[0].Name, Description: tools[0].Description},
		func(ctx context.Context, _ *mcp.CallToolRequest, in SearchInput) (*mcp.CallToolResult, SearchOutput, error) {
			out, err := s.search(ctx, in)
			if err != nil {
				return nil, SearchOutput{}, MapError(err)
			}
			return textResult(FormatSearchResults(fmt.Sprintf("Results for %q", in.Query), out.Results)), out, nil
		})

	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[1].Name, Description: tools[1].Description},
		func(ctx context.Context, _ *mcp.CallToolRequest, in AutocompleteInput) (*mcp.CallToolResult, AutocompleteOutput, error) {
			out, err := s.autocomplete(ctx, in)
			if err != nil {
				return nil, AutocompleteOutput{}, MapError(err)
			}
			return textResult(FormatCompletions(in.Prefix, out.Completions)), out, nil
		})

	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[2].Name, Description: tools[2].Description},
		func(ctx context.Context, _ *mcp.CallToolRequest, in VideoTranscriptInput) (*mcp.CallToolResult, SearchOutput, error) {
			out, err := s.videoTranscript(ctx, in)
			if err != nil {
				return nil, SearchOutput{}, MapError(err)
			}
			return textResult(FormatSearchResults("Segments of "+out.VideoID, out.Results)), out, nil
		})

	s.logger.Debug("MCP tools registered", slog.Int("count", len(tools)))
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}
}

// Serve starts the server with the specified transport.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("Starting MCP server", slog.String("transport", transport))

	switch transport {
	case "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("MCP server stopped with error", slog.String("error", err.Error()))
			return err
		}
		s.logger.Info("MCP server stopped gracefully")
		return nil
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}

// generateRequestID creates a short unique request ID for log correlation.
func generateRequestID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
