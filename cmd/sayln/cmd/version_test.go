package cmd

import (
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guoyu-zhang/say-like-a-native/internal/config"
	"github.com/guoyu-zhang/say-like-a-native/pkg/version"
)

func TestVersionCmd_DefaultOutput(t *testing.T) {
	// Given: a workspace configured for the SQLite backend
	dir := isolate(t)

	// When: running version
	out, err := run(t, "version")

	// Then: the build line is followed by the store it would open
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, version.String(), lines[0])
	assert.Equal(t, "store: sqlite at "+filepath.Join(dir, "data", "segments.db"), lines[1])
}

func TestVersionCmd_ShortOutput(t *testing.T) {
	isolate(t)

	out, err := run(t, "version", "--short")

	require.NoError(t, err)
	assert.Equal(t, version.Version, strings.TrimSpace(out))
}

func TestVersionCmd_JSONOutput(t *testing.T) {
	isolate(t)

	out, err := run(t, "version", "--json")
	require.NoError(t, err)

	var info map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, version.Version, info["version"])
	assert.Equal(t, "sqlite", info["store_backend"])
	for _, k := range []string{"commit", "date", "go_version", "platform", "store_location"} {
		assert.Contains(t, info, k)
	}
}

func TestVersionCmd_BrokenConfigStillPrints(t *testing.T) {
	// Given: an unknown backend in the environment
	isolate(t)
	t.Setenv("SAYLN_STORE_BACKEND", "elasticsearch")

	// When: running version
	out, err := run(t, "version")

	// Then: only the build line is printed
	require.NoError(t, err)
	assert.Equal(t, version.String(), strings.TrimSpace(out))
}

func TestDescribeStore_OpenSearch(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Store.Backend = config.BackendOpenSearch
	cfg.Store.OpenSearch.URL = "https://search.internal:9200"
	cfg.Store.Index = "transcripts"

	backend, location := describeStore(cfg)

	assert.Equal(t, "opensearch", backend)
	assert.Equal(t, "https://search.internal:9200/transcripts", location)
}
