package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// isolate points every config, data and log location at a fresh temp dir
// and makes it the working directory.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, ".config"))
	t.Setenv("SAYLN_STORE_BACKEND", "sqlite")
	t.Setenv("SAYLN_DATA_DIR", filepath.Join(dir, "data"))
	t.Setenv("SAYLN_WAITLIST_PATH", filepath.Join(dir, "waitlist.json"))
	t.Setenv("SAYLN_TELEMETRY_DB", filepath.Join(dir, "telemetry.db"))
	t.Setenv("SAYLN_TRANSCRIPTS_DIR", filepath.Join(dir, "transcripts"))
	t.Setenv("NO_COLOR", "1")
	t.Chdir(dir)
	return dir
}

// run executes the root command with args and returns stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	buf := &bytes.Buffer{}
	root.SetOut(buf)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

const idiomsTranscript = `{
  "video_id": "vid001",
  "language_code": "en",
  "entries": [
    {"text": "so I walked into the party", "start": 1.0, "duration": 2.0},
    {"text": "and decided to break the ice", "start": 3.0, "duration": 2.5},
    {"text": "with a terrible joke", "start": 5.5, "duration": 2.0}
  ]
}`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}
