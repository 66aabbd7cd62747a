package mcp

import (
	"fmt"
	"strings"

	"github.com/guoyu-zhang/say-like-a-native/internal/output"
	"github.com/guoyu-zhang/say-like-a-native/internal/search"
)

// ToSegmentOutput converts an enriched result to its tool output.
func ToSegmentOutput(r search.EnrichedResult) SegmentOutput {
	out := SegmentOutput{
		VideoID:      r.VideoID,
		LanguageCode: r.LanguageCode,
		StartTime:    r.StartTime,
		EndTime:      r.EndTime,
		Text:         r.Text,
		Score:        r.Score,
		WatchURL:     output.WatchURL(r),
	}
	if r.Previous != nil {
		out.Previous = &PreviousSegment{
			StartTime: r.Previous.StartTime,
			EndTime:   r.Previous.EndTime,
			Text:      r.Previous.Text,
		}
	}
	return out
}

func toSegmentOutputs(results []search.EnrichedResult) []SegmentOutput {
	out := make([]SegmentOutput, 0, len(results))
	for _, r := range results {
		out = append(out, ToSegmentOutput(r))
	}
	return out
}

// FormatSearchResults renders segments as markdown.
func FormatSearchResults(title string, results []SegmentOutput) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## %s\n\n", title)
	if len(results) == 0 {
		sb.WriteString("No matching segments found.\n")
		return sb.String()
	}
	for i, r := range results {
		fmt.Fprintf(&sb, "### %d. %s @ %s", i+1, r.VideoID, output.FormatTimestamp(r.StartTime))
		if r.Score > 0 {
			fmt.Fprintf(&sb, " (score: %.2f)", r.Score)
		}
		sb.WriteString("\n\n")
		if r.Previous != nil {
			fmt.Fprintf(&sb, "> %s\n>\n", r.Previous.Text)
		}
		fmt.Fprintf(&sb, "> **%s**\n\n", r.Text)
		fmt.Fprintf(&sb, "%s\n\n", r.WatchURL)
	}
	return sb.String()
}

// FormatCompletions renders completions as a markdown list.
func FormatCompletions(prefix string, completions []CompletionOutput) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## Completions for %q\n\n", prefix)
	if len(completions) == 0 {
		sb.WriteString("No completions found.\n")
		return sb.String()
	}
	for _, c := range completions {
		fmt.Fprintf(&sb, "- %s (%s @ %s)\n", c.Text, c.VideoID, output.FormatTimestamp(c.StartTime))
	}
	return sb.String()
}

// clampLimit returns defaultVal for unset limits and caps the rest.
func clampLimit(limit, defaultVal, lo, hi int) int {
	if limit <= 0 {
		return defaultVal
	}
	return max(lo, min(limit, hi))
}
