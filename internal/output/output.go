// Package output formats CLI messages and search results.
package output

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/guoyu-zhang/say-like-a-native/internal/search"
	"github.com/guoyu-zhang/say-like-a-native/internal/store"
	"github.com/guoyu-zhang/say-like-a-native/internal/ui"
)

// Writer provides formatted output for CLI.
type Writer struct {
	out    io.Writer
	styles ui.Styles
}

// New creates a Writer. Color is used only on terminals without NO_COLOR.
func New(out io.Writer) *Writer {
	return NewWithColor(out, ui.IsTTY(out) && !ui.DetectNoColor())
}

// NewWithColor creates a Writer with color forced on or off.
func NewWithColor(out io.Writer, color bool) *Writer {
	return &Writer{out: out, styles: ui.GetStyles(!color)}
}

// Status prints a status message with an icon.
// Errors from writing are intentionally ignored for console output.
func (w *Writer) Status(icon, msg string) {
	if icon != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
	} else {
		_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
	}
}

// Statusf prints a formatted status message with an icon.
func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

// Success prints a success message with checkmark.
func (w *Writer) Success(msg string) {
	w.Status(w.styles.Success.Render("✅"), msg)
}

// Successf prints a formatted success message.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a warning message.
func (w *Writer) Warning(msg string) {
	w.Status(w.styles.Warning.Render("⚠️ "), msg)
}

// Warningf prints a formatted warning message.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Error prints an error message.
func (w *Writer) Error(msg string) {
	w.Status(w.styles.Error.Render("❌"), msg)
}

// Errorf prints a formatted error message.
func (w *Writer) Errorf(format string, args ...any) {
	w.Error(fmt.Sprintf(format, args...))
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}

// Results prints enriched search hits. query is echoed in the empty case.
func (w *Writer) Results(query string, results []search.EnrichedResult, errMsg string) {
	if errMsg != "" {
		w.Error(errMsg)
		return
	}
	if len(results) == 0 {
		w.Statusf("🔍", "No results for %q", query)
		return
	}
	for i, r := range results {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", w.styles.Label.Render(fmt.Sprintf("%2d.", i+1)), w.styles.Active.Render(r.Text))
		_, _ = fmt.Fprintf(w.out, "    %s\n", w.styles.Label.Render(segmentMeta(r.Segment, r.Score)))
		if r.Previous != nil {
			_, _ = fmt.Fprintf(w.out, "    %s %s\n", w.styles.Dim.Render("previous:"), r.Previous.Text)
		}
		_, _ = fmt.Fprintf(w.out, "    %s\n", w.styles.Dim.Render(WatchURL(r)))
	}
}

// Suggestions prints autocomplete candidates, one per line.
func (w *Writer) Suggestions(query string, suggestions []search.Suggestion, errMsg string) {
	if errMsg != "" {
		w.Error(errMsg)
		return
	}
	if len(suggestions) == 0 {
		w.Statusf("🔍", "No completions for %q", query)
		return
	}
	for _, s := range suggestions {
		_, _ = fmt.Fprintf(w.out, "%s  %s\n", s.Text,
			w.styles.Dim.Render(fmt.Sprintf("[%s @ %s]", s.VideoID, FormatTimestamp(s.StartTime))))
	}
}

func segmentMeta(s store.Segment, score float64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] [%.2f - %.2f]", s.VideoID, s.StartTime, s.EndTime)
	if s.LanguageCode != "" {
		b.WriteString(" • " + s.LanguageCode)
	}
	if score > 0 {
		fmt.Fprintf(&b, " • score %.2f", score)
	}
	return b.String()
}

// WatchURL links to the video at the earliest useful second: the previous
// segment when there is one, so the viewer hears the lead-in.
func WatchURL(r search.EnrichedResult) string {
	start := r.StartTime
	if r.Previous != nil {
		start = r.Previous.StartTime
	}
	return fmt.Sprintf("https://www.youtube.com/watch?v=%s&t=%ds", r.VideoID, int(math.Max(0, math.Floor(start))))
}

// FormatTimestamp renders seconds as m:ss or h:mm:ss.
func FormatTimestamp(sec float64) string {
	total := int(math.Max(0, math.Floor(sec)))
	h, m, s := total/3600, total/60%60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// Table renders rows under headers with a rounded border.
func (w *Writer) Table(headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) {
				widths[i] = max(widths[i], lipgloss.Width(cell))
			}
		}
	}

	line := func(cells []string) string {
		parts := make([]string, len(widths))
		for i := range widths {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			parts[i] = cell + strings.Repeat(" ", widths[i]-lipgloss.Width(cell))
		}
		return strings.TrimRight(strings.Join(parts, "  "), " ")
	}

	lines := []string{w.styles.Header.Render(line(headers))}
	for _, row := range rows {
		lines = append(lines, line(row))
	}
	_, _ = fmt.Fprintln(w.out, w.styles.Panel.Render(strings.Join(lines, "\n")))
}
