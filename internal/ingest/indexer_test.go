package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	serrors "github.com/guoyu-zhang/say-like-a-native/internal/errors"
	"github.com/guoyu-zhang/say-like-a-native/internal/store"
)

func newMemoryStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLiteStore("", "test-transcripts")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// recordingIndexer counts batches and can fail.
type recordingIndexer struct {
	batches [][]store.Segment
	deleted []string
	err     error
}

func (r *recordingIndexer) Index(_ context.Context, segs []store.Segment) error {
	if r.err != nil {
		return r.err
	}
	r.batches = append(r.batches, segs)
	return nil
}

func (r *recordingIndexer) DeleteVideo(_ context.Context, videoID string) (int, error) {
	r.deleted = append(r.deleted, videoID)
	return 0, nil
}

func TestIndexer_IndexTranscriptBatches(t *testing.T) {
	rec := &recordingIndexer{}
	ix := NewIndexer(rec, 2)
	tr := &Transcript{VideoID: "v1", Entries: []Entry{
		{Start: 0, Duration: 1, Text: "one"},
		{Start: 1, Duration: 1, Text: "two"},
		{Start: 2, Duration: 1, Text: "three"},
	}}

	n, err := ix.IndexTranscript(context.Background(), tr)

	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"v1"}, rec.deleted)
	require.Len(t, rec.batches, 2)
	assert.Len(t, rec.batches[0], 2)
	assert.Len(t, rec.batches[1], 1)
}

func TestIndexer_ReindexReplacesSegments(t *testing.T) {
	// Given: a transcript indexed once
	s := newMemoryStore(t)
	ix := NewIndexer(s, 0)
	dir := t.TempDir()
	path := writeTranscript(t, dir, "abc123.json", sampleTranscript)
	_, _, err := ix.IndexFile(context.Background(), path)
	require.NoError(t, err)

	// When: the file shrinks and is indexed again
	writeTranscript(t, dir, "abc123.json", `{"video_id":"abc123","language_code":"en","entries":[{"text":"Only line","start":0,"duration":1}]}`)
	_, n, err := ix.IndexFile(context.Background(), path)

	// Then: only the new segment remains
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	count, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestIndexer_IndexPathsReportsProgress(t *testing.T) {
	// Given: two good files and one broken one
	s := newMemoryStore(t)
	dir := t.TempDir()
	writeTranscript(t, dir, "abc123.json", sampleTranscript)
	writeTranscript(t, dir, "xyz789.json", `{"video_id":"xyz789","entries":[{"text":"Welcome back everyone","start":10,"duration":2}]}`)
	writeTranscript(t, dir, "broken.json", `{"entries":`)

	// When: indexing the directory
	var seen []Progress
	sum, err := NewIndexer(s, 0).IndexPaths(context.Background(), []string{dir}, func(p Progress) {
		seen = append(seen, p)
	})

	// Then: the good files are indexed and the broken one is counted
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Files)
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, 3, sum.Segments)
	require.Len(t, seen, 3)
	assert.Equal(t, 3, seen[2].Done)
	assert.Equal(t, 3, seen[2].Total)
	assert.Error(t, seen[1].Err, "broken.json sorts second")
}

func TestIndexer_IndexPathsAllFailed(t *testing.T) {
	rec := &recordingIndexer{err: errors.New("store down")}
	dir := t.TempDir()
	writeTranscript(t, dir, "abc123.json", sampleTranscript)

	_, err := NewIndexer(rec, 0).IndexPaths(context.Background(), []string{dir}, nil)

	assert.Equal(t, serrors.ErrCodeIngestFailed, serrors.GetCode(err))
}

func TestIndexer_IndexPathsMissingDir(t *testing.T) {
	_, err := NewIndexer(&recordingIndexer{}, 0).IndexPaths(context.Background(), []string{"/does/not/exist"}, nil)

	assert.Equal(t, serrors.ErrCodeFileNotFound, serrors.GetCode(err))
}
