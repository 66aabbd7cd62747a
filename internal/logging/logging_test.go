package logging

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLogPath_UnderSaylnDir(t *testing.T) {
	path := DefaultLogPath()

	assert.True(t, strings.HasSuffix(path, filepath.Join(".sayln", "logs", "server.log")))
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, 10, cfg.MaxSizeMB)
	assert.Equal(t, 5, cfg.MaxFiles)
	assert.True(t, cfg.WriteToStderr)
}

func TestSetup_WritesJSONToFile(t *testing.T) {
	// Given: a file-only config at debug level
	path := filepath.Join(t.TempDir(), "logs", "server.log")
	cfg := Config{Level: "debug", FilePath: path, MaxSizeMB: 1, MaxFiles: 2}

	// When: logging through the returned logger
	logger, cleanup, err := Setup(cfg)
	require.NoError(t, err)
	logger.Debug("search completed", slog.String("query", "hello"), slog.Int("count", 3))
	cleanup()

	// Then: the file holds a parseable JSON line
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	entry := ParseLine(strings.TrimSpace(string(data)))
	assert.True(t, entry.Valid)
	assert.Equal(t, "DEBUG", entry.Level)
	assert.Equal(t, "search completed", entry.Msg)
	assert.Equal(t, "hello", entry.Attrs["query"])
}

func TestSetup_RespectsLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.log")
	logger, cleanup, err := Setup(Config{Level: "warn", FilePath: path})
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown")
	cleanup()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hidden")
	assert.Contains(t, string(data), "shown")
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestFindLogFile(t *testing.T) {
	_, err := FindLogFile(filepath.Join(t.TempDir(), "missing.log"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "server.log")
	require.NoError(t, os.WriteFile(path, []byte("{}\n"), 0o644))
	got, err := FindLogFile(path)
	require.NoError(t, err)
	assert.Equal(t, path, got)
}

func TestRotatingWriter_Rotates(t *testing.T) {
	// Given: a writer whose file already exceeds the limit
	path := filepath.Join(t.TempDir(), "server.log")
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte("x"), 1024*1024), 0o644))
	w, err := NewRotatingWriter(path, 1, 3)
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	// When: writing one more line
	_, err = w.Write([]byte("fresh\n"))
	require.NoError(t, err)

	// Then: the old content moved to .1 and the new file has only the line
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "fresh\n", string(data))
	info, err := os.Stat(path + ".1")
	require.NoError(t, err)
	assert.Equal(t, int64(1024*1024), info.Size())
}

func TestRotatingWriter_KeepsAtMostMaxFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "server.log")
	w, err := NewRotatingWriter(path, 1, 2)
	require.NoError(t, err)

	chunk := bytes.Repeat([]byte("y"), 700*1024)
	for i := 0; i < 6; i++ {
		_, err := w.Write(chunk)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	matches, err := filepath.Glob(path + ".*")
	require.NoError(t, err)
	assert.Len(t, matches, 2)
	_, err = os.Stat(path + ".3")
	assert.True(t, os.IsNotExist(err))
}

func TestRotatingWriter_WriteAfterClose(t *testing.T) {
	w, err := NewRotatingWriter(filepath.Join(t.TempDir(), "server.log"), 1, 1)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	_, err = w.Write([]byte("late"))
	assert.ErrorIs(t, err, os.ErrClosed)
	assert.NoError(t, w.Sync())
}

func TestRotatingWriter_ConcurrentWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.log")
	w, err := NewRotatingWriter(path, 1, 2)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = fmt.Fprintf(w, "line %d\n", i)
		}(i)
	}
	wg.Wait()
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 20, strings.Count(string(data), "\n"))
}

func TestViewer_TailFiltersAndLimits(t *testing.T) {
	// Given: a log with mixed levels and a stray non-JSON line
	path := filepath.Join(t.TempDir(), "server.log")
	content := strings.Join([]string{
		`{"time":"2026-01-02T10:00:00Z","level":"INFO","msg":"one"}`,
		`{"time":"2026-01-02T10:00:01Z","level":"WARN","msg":"two"}`,
		`not json`,
		`{"time":"2026-01-02T10:00:02Z","level":"DEBUG","msg":"three"}`,
		`{"time":"2026-01-02T10:00:03Z","level":"ERROR","msg":"four","code":"ERR_301"}`,
	}, "\n")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	// When: tailing the last two warn+ entries
	v := NewViewer(&bytes.Buffer{}, "warn", false)
	entries, err := v.Tail(path, 2)

	// Then: the raw line passes through and the debug line is filtered
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "not json", entries[0].Raw)
	assert.Equal(t, "four", entries[1].Msg)
}

func TestViewer_FormatAndPrint(t *testing.T) {
	var buf bytes.Buffer
	v := NewViewer(&buf, "", false)
	e := ParseLine(`{"time":"2026-01-02T10:00:03Z","level":"ERROR","msg":"search failed","b":2,"a":"x"}`)

	v.Print([]Entry{e, ParseLine("plain")})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "10:00:03.000 ERROR search failed a=x b=2", lines[0])
	assert.Equal(t, "plain", lines[1])
}

func TestViewer_TailMissingFile(t *testing.T) {
	v := NewViewer(&bytes.Buffer{}, "", false)
	_, err := v.Tail(filepath.Join(t.TempDir(), "nope.log"), 10)
	assert.Error(t, err)
}

func TestViewer_Follow(t *testing.T) {
	// Given: a log file with one old line
	path := filepath.Join(t.TempDir(), "server.log")
	require.NoError(t, os.WriteFile(path, []byte(`{"time":"2026-01-02T03:04:05Z","level":"INFO","msg":"old"}`+"\n"), 0o644))

	var mu sync.Mutex
	buf := &bytes.Buffer{}
	v := NewViewer(&lockedWriter{mu: &mu, w: buf}, "info", false)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- v.Follow(ctx, path) }()
	time.Sleep(100 * time.Millisecond)

	// When: new lines are appended
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"time":"2026-01-02T03:04:06Z","level":"DEBUG","msg":"hidden"}` + "\n" +
		`{"time":"2026-01-02T03:04:07Z","level":"WARN","msg":"new","k":"v"}` + "\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	// Then: only the new matching line is printed
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return strings.Contains(buf.String(), "new k=v")
	}, 2*time.Second, 20*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	mu.Lock()
	defer mu.Unlock()
	assert.NotContains(t, buf.String(), "old")
	assert.NotContains(t, buf.String(), "hidden")
}

type lockedWriter struct {
	mu *sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
