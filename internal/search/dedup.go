package search

import (
	"strings"

	"github.com/guoyu-zhang/say-like-a-native/internal/store"
)

// DedupByVideo keeps the first hit of each video in order and stops once
// limit videos are collected. Hits without a video id are dropped.
func DedupByVideo(hits []store.Hit, limit int) []store.Hit {
	if limit <= 0 {
		return []store.Hit{}
	}
	seen := make(map[string]struct{}, limit)
	out := make([]store.Hit, 0, min(limit, len(hits)))
	for _, h := range hits {
		if h.VideoID == "" {
			continue
		}
		if _, dup := seen[h.VideoID]; dup {
			continue
		}
		seen[h.VideoID] = struct{}{}
		out = append(out, h)
		if len(out) == limit {
			break
		}
	}
	return out
}

// DedupByText keeps the first hit of each distinct text, compared
// case-insensitively with whitespace collapsed, up to limit hits.
func DedupByText(hits []store.Hit, limit int) []store.Hit {
	if limit <= 0 {
		return []store.Hit{}
	}
	seen := make(map[string]struct{}, limit)
	out := make([]store.Hit, 0, min(limit, len(hits)))
	for _, h := range hits {
		key := normalizeSuggestion(h.Text)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, h)
		if len(out) == limit {
			break
		}
	}
	return out
}

func normalizeSuggestion(text string) string {
	return strings.Join(strings.Fields(store.NormalizeText(text)), " ")
}
