package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBleveStore_PersistsAcrossReopen(t *testing.T) {
	// Given: an on-disk index with the fixture
	path := filepath.Join(t.TempDir(), "segments.bleve")
	s, err := NewBleveStore(path, testIndex)
	require.NoError(t, err)
	require.NoError(t, s.Index(context.Background(), fixtureSegments()))
	require.NoError(t, s.Close())

	// When: reopening it
	reopened, err := NewBleveStore(path, testIndex)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	// Then: documents and the custom analyzer survive
	n, err := reopened.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, n)

	resp, err := reopened.Search(context.Background(), Request{
		Query: PhrasePrefixQuery{Field: FieldText, Text: "welcome to the vid", MaxExpansions: 10},
		Size:  5,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Welcome to the video"}, texts(resp.Hits))
}

func TestBleveStore_ClearsCorruptIndex(t *testing.T) {
	// Given: an index directory with a truncated index_meta.json
	path := filepath.Join(t.TempDir(), "segments.bleve")
	require.NoError(t, os.MkdirAll(path, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(path, "index_meta.json"), []byte(`{"storage":`), 0o644))

	// When: opening
	s, err := NewBleveStore(path, testIndex)

	// Then: a fresh empty index is created
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	n, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestValidateIndexIntegrity(t *testing.T) {
	dir := t.TempDir()

	assert.NoError(t, validateIndexIntegrity(filepath.Join(dir, "missing")))

	empty := filepath.Join(dir, "empty")
	require.NoError(t, os.MkdirAll(empty, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(empty, "index_meta.json"), nil, 0o644))
	assert.Error(t, validateIndexIntegrity(empty))

	noMeta := filepath.Join(dir, "nometa")
	require.NoError(t, os.MkdirAll(noMeta, 0o755))
	assert.Error(t, validateIndexIntegrity(noMeta))
}

func TestBleveStore_TypographicApostrophes(t *testing.T) {
	// Given: a caption with a curly apostrophe
	s, err := NewBleveStore("", testIndex)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	require.NoError(t, s.Index(context.Background(), []Segment{
		{VideoID: "v1", StartTime: 1, EndTime: 2, Text: "I don’t know what to say"},
	}))

	// When: searching with a straight apostrophe
	resp, err := s.Search(context.Background(), Request{
		Query: PhrasePrefixQuery{Field: FieldText, Text: "don't kn", MaxExpansions: 10},
		Size:  5,
	})

	// Then: the caption matches
	require.NoError(t, err)
	assert.Len(t, resp.Hits, 1)
}

func TestBleveStore_PhrasePrefixHonorsMaxExpansions(t *testing.T) {
	s, err := NewBleveStore("", testIndex)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	require.NoError(t, s.Index(context.Background(), []Segment{
		{VideoID: "v1", StartTime: 1, EndTime: 2, Text: "say apple"},
		{VideoID: "v1", StartTime: 2, EndTime: 3, Text: "say apricot"},
		{VideoID: "v1", StartTime: 3, EndTime: 4, Text: "say april"},
	}))

	terms, err := s.expandPrefix(FieldText, "ap", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"apple", "apricot"}, terms)

	resp, err := s.Search(context.Background(), Request{
		Query: PhrasePrefixQuery{Field: FieldText, Text: "say ap", MaxExpansions: 2},
		Size:  10,
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"say apple", "say apricot"}, texts(resp.Hits))
}

func TestBleveStore_RangeBounds(t *testing.T) {
	s, err := NewBleveStore("", testIndex)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	require.NoError(t, s.Index(context.Background(), fixtureSegments()))

	resp, err := s.Search(context.Background(), Request{
		Query: BoolQuery{Filter: []Query{
			TermQuery{Field: FieldVideoID, Value: "abc123"},
			RangeQuery{Field: FieldStartTime, GTE: Float(1.0), LTE: Float(2.5)},
		}},
		Sort: []SortField{{Field: FieldStartTime}},
		Size: 10,
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"Bienvenue dans la vidéo", "This is an example transcript"}, texts(resp.Hits))
}
