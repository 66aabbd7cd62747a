// Package ingest loads transcript files written by the fetch script and
// indexes them as segments.
package ingest

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/guoyu-zhang/say-like-a-native/internal/store"
)

// unknownLanguage is what the fetch script writes when YouTube reports no
// audio language.
const unknownLanguage = "unknown"

// Entry is one caption line as returned by the transcript API.
type Entry struct {
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
	Text     string  `json:"text"`
}

// Transcript is the content of one <video_id>.json file.
type Transcript struct {
	VideoID      string  `json:"video_id"`
	LanguageCode string  `json:"language_code"`
	Entries      []Entry `json:"entries"`
}

// ReadTranscript decodes and checks a transcript.
func ReadTranscript(r io.Reader) (*Transcript, error) {
	var t Transcript
	if err := json.NewDecoder(r).Decode(&t); err != nil {
		return nil, fmt.Errorf("decode transcript: %w", err)
	}
	t.VideoID = strings.TrimSpace(t.VideoID)
	if t.VideoID == "" {
		return nil, fmt.Errorf("transcript has no video_id")
	}
	return &t, nil
}

// LoadFile reads the transcript at path.
func LoadFile(path string) (*Transcript, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	t, err := ReadTranscript(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// Language returns the language code, empty when unknown.
func (t *Transcript) Language() string {
	lang := strings.TrimSpace(t.LanguageCode)
	if strings.EqualFold(lang, unknownLanguage) {
		return ""
	}
	return lang
}

// Segments converts entries to segments: end = start + duration, blank
// lines and entries with negative times are skipped.
func (t *Transcript) Segments() []store.Segment {
	lang := t.Language()
	segments := make([]store.Segment, 0, len(t.Entries))
	for _, e := range t.Entries {
		text := strings.TrimSpace(e.Text)
		if text == "" || e.Start < 0 || e.Duration < 0 {
			continue
		}
		segments = append(segments, store.Segment{
			VideoID:      t.VideoID,
			LanguageCode: lang,
			StartTime:    e.Start,
			EndTime:      e.Start + e.Duration,
			Text:         text,
		})
	}
	return segments
}
