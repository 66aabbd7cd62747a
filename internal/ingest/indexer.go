package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"

	serrors "github.com/guoyu-zhang/say-like-a-native/internal/errors"
	"github.com/guoyu-zhang/say-like-a-native/internal/store"
)

// DefaultBatchSize is how many segments go to the store per call.
const DefaultBatchSize = 500

// Progress reports directory indexing.
type Progress struct {
	Done     int
	Total    int
	File     string
	Segments int
	Err      error
}

// ProgressFunc receives a Progress after every file.
type ProgressFunc func(Progress)

// Summary describes a finished IndexDir run.
type Summary struct {
	Files    int
	Failed   int
	Segments int
	Duration time.Duration
}

// Indexer writes transcripts into a store.
type Indexer struct {
	store     store.Indexer
	batchSize int
}

// NewIndexer creates an indexer. batchSize <= 0 uses DefaultBatchSize.
func NewIndexer(s store.Indexer, batchSize int) *Indexer {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Indexer{store: s, batchSize: batchSize}
}

// IndexTranscript replaces every stored segment of the transcript's video
// with its current segments and returns how many were written.
func (ix *Indexer) IndexTranscript(ctx context.Context, t *Transcript) (int, error) {
	segments := t.Segments()
	if _, err := ix.store.DeleteVideo(ctx, t.VideoID); err != nil {
		return 0, fmt.Errorf("clear %s: %w", t.VideoID, err)
	}
	for start := 0; start < len(segments); start += ix.batchSize {
		end := min(start+ix.batchSize, len(segments))
		if err := ix.store.Index(ctx, segments[start:end]); err != nil {
			return start, fmt.Errorf("index %s: %w", t.VideoID, err)
		}
	}
	return len(segments), nil
}

// IndexFile loads and indexes one transcript file.
func (ix *Indexer) IndexFile(ctx context.Context, path string) (*Transcript, int, error) {
	t, err := LoadFile(path)
	if err != nil {
		return nil, 0, err
	}
	n, err := ix.IndexTranscript(ctx, t)
	return t, n, err
}

// ListTranscripts returns the .json files under root, sorted. root may also
// be a single file.
func ListTranscripts(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if IsTranscriptFile(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// IsTranscriptFile reports whether path looks like a transcript file.
func IsTranscriptFile(path string) bool {
	base := filepath.Base(path)
	return strings.EqualFold(filepath.Ext(base), ".json") && !strings.HasPrefix(base, ".")
}

// IndexPaths indexes every transcript found under paths. A failing file is
// logged and counted; the run fails only if nothing could be indexed.
func (ix *Indexer) IndexPaths(ctx context.Context, paths []string, progress ProgressFunc) (Summary, error) {
	start := time.Now()
	var files []string
	for _, p := range paths {
		found, err := ListTranscripts(p)
		if err != nil {
			return Summary{}, serrors.New(serrors.ErrCodeFileNotFound, fmt.Sprintf("cannot read %s", p), err)
		}
		files = append(files, found...)
	}

	var sum Summary
	for i, path := range files {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		_, n, err := ix.IndexFile(ctx, path)
		sum.Files++
		if err != nil {
			sum.Failed++
			slog.Warn("transcript_index_failed", slog.String("path", path), slog.String("error", err.Error()))
		} else {
			sum.Segments += n
		}
		if progress != nil {
			progress(Progress{Done: i + 1, Total: len(files), File: path, Segments: n, Err: err})
		}
	}
	sum.Duration = time.Since(start)

	slog.Info("transcripts_indexed",
		slog.Int("files", sum.Files),
		slog.Int("failed", sum.Failed),
		slog.Int("segments", sum.Segments),
		slog.Duration("duration", sum.Duration))

	if sum.Files > 0 && sum.Failed == sum.Files {
		return sum, serrors.New(serrors.ErrCodeIngestFailed,
			fmt.Sprintf("all %d transcript files failed to index", sum.Files), nil).
			WithSuggestion("check the server log for the per-file errors")
	}
	return sum, nil
}
