package cmd

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoctorCmd_ReportsIndexedStore(t *testing.T) {
	// Given: an indexed transcript
	indexIdioms(t)

	// When: running doctor with JSON output
	out, _ := run(t, "doctor", "--json")

	// Then: the store check sees the segments
	var resp struct {
		Status string `json:"status"`
		Checks []struct {
			Name    string `json:"name"`
			Status  string `json:"status"`
			Message string `json:"message"`
		} `json:"checks"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	checks := map[string]string{}
	for _, c := range resp.Checks {
		checks[c.Name] = c.Status + " " + c.Message
	}
	assert.Equal(t, "pass sqlite backend, index \"youtube-transcripts\"", checks["config"])
	assert.Equal(t, "pass 3 segments indexed", checks["store"])
	assert.Contains(t, checks["transcripts"], "pass")
}

func TestDoctorCmd_InvalidConfigFails(t *testing.T) {
	// Given: an unknown backend
	dir := isolate(t)
	writeFile(t, filepath.Join(dir, ".sayln.yaml"), "store:\n  backend: cassandra\n")
	t.Setenv("SAYLN_STORE_BACKEND", "")

	// When: running doctor
	out, err := run(t, "doctor")

	// Then: the config check fails the run
	require.Error(t, err)
	assert.Contains(t, out, "[FAIL] config")
	assert.Contains(t, out, "cassandra")
}

func TestDoctorCmd_EmptyIndexWarns(t *testing.T) {
	isolate(t)

	out, _ := run(t, "doctor")

	assert.Contains(t, out, "[WARN] store: index is empty")
}
