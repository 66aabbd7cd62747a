package mcp

// Tool names.
const (
	ToolSearch          = "search_transcripts"
	ToolAutocomplete    = "autocomplete_phrase"
	ToolVideoTranscript = "video_transcript"
)

// SearchInput defines the input schema for the search_transcripts tool.
type SearchInput struct {
	Query string `json:"query" jsonschema:"words or phrase to find in spoken transcripts"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of results, one per video, default 10"`
}

// AutocompleteInput defines the input schema for the autocomplete_phrase tool.
type AutocompleteInput struct {
	Prefix string `json:"prefix" jsonschema:"beginning of a phrase, at least two characters"`
	Limit  int    `json:"limit,omitempty" jsonschema:"maximum number of completions, default 5"`
}

// VideoTranscriptInput defines the input schema for the video_transcript tool.
type VideoTranscriptInput struct {
	VideoID string `json:"video_id" jsonschema:"YouTube video id"`
	Query   string `json:"query,omitempty" jsonschema:"optional words to find within the video; empty lists segments from the start"`
	Limit   int    `json:"limit,omitempty" jsonschema:"maximum number of segments, default 10"`
	Single  bool   `json:"single_result,omitempty" jsonschema:"return only the best matching segment"`
}

// SegmentOutput is one matched transcript segment.
type SegmentOutput struct {
	VideoID      string           `json:"video_id" jsonschema:"YouTube video id"`
	LanguageCode string           `json:"language_code,omitempty" jsonschema:"transcript language"`
	StartTime    float64          `json:"start_time" jsonschema:"segment start in seconds"`
	EndTime      float64          `json:"end_time" jsonschema:"segment end in seconds"`
	Text         string           `json:"text" jsonschema:"spoken text"`
	Score        float64          `json:"score,omitempty" jsonschema:"relevance score"`
	Previous     *PreviousSegment `json:"previous,omitempty" jsonschema:"the segment spoken just before, for context"`
	WatchURL     string           `json:"watch_url" jsonschema:"link that starts playback at the context segment"`
}

// PreviousSegment is the context segment preceding a match.
type PreviousSegment struct {
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
	Text      string  `json:"text"`
}

// SearchOutput defines the output schema for the search tools.
type SearchOutput struct {
	Query   string          `json:"query"`
	VideoID string          `json:"video_id,omitempty"`
	Results []SegmentOutput `json:"results" jsonschema:"matched segments"`
}

// CompletionOutput is one phrase completion.
type CompletionOutput struct {
	Text      string  `json:"text"`
	VideoID   string  `json:"video_id"`
	StartTime float64 `json:"start_time"`
}

// AutocompleteOutput defines the output schema for the autocomplete_phrase tool.
type AutocompleteOutput struct {
	Prefix      string             `json:"prefix"`
	Completions []CompletionOutput `json:"completions" jsonschema:"distinct segment texts continuing the prefix"`
}
