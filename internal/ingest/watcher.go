package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period before a changed file is re-indexed.
const DefaultDebounce = 500 * time.Millisecond

// Watcher re-indexes transcript files as they appear or change under a
// directory, and drops the segments of removed files.
type Watcher struct {
	indexer  *Indexer
	root     string
	debounce time.Duration

	mu     sync.Mutex
	videos map[string]string // path -> video id, for removals

	// OnIndexed, when set, is called after each handled change.
	OnIndexed func(path string, segments int, err error)
}

// NewWatcher creates a watcher for root.
func NewWatcher(indexer *Indexer, root string, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		indexer:  indexer,
		root:     root,
		debounce: debounce,
		videos:   make(map[string]string),
	}
}

// Run indexes everything under root once, then watches until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer func() { _ = fsw.Close() }()

	if err := os.MkdirAll(w.root, 0o755); err != nil {
		return fmt.Errorf("create transcripts directory: %w", err)
	}
	if err := w.addRecursive(fsw, w.root); err != nil {
		return fmt.Errorf("watch %s: %w", w.root, err)
	}

	files, err := ListTranscripts(w.root)
	if err != nil {
		return err
	}
	for _, path := range files {
		w.handle(ctx, change{path: path, kind: changeWritten})
	}
	slog.Info("transcript_watch_started", slog.String("root", w.root), slog.Int("files", len(files)))

	deb := newDebouncer(w.debounce)
	defer deb.stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.route(fsw, deb, ev)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("transcript_watch_error", slog.String("error", err.Error()))

		case batch := <-deb.output:
			for _, c := range batch {
				w.handle(ctx, c)
			}
		}
	}
}

// route turns an fsnotify event into a pending change.
func (w *Watcher) route(fsw *fsnotify.Watcher, deb *debouncer, ev fsnotify.Event) {
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(fsw, ev.Name); err != nil {
				slog.Warn("transcript_watch_add_failed", slog.String("path", ev.Name), slog.String("error", err.Error()))
			}
			// Files copied in together with the directory produce no events.
			if files, err := ListTranscripts(ev.Name); err == nil {
				for _, f := range files {
					deb.add(f, changeWritten)
				}
			}
			return
		}
	}
	if !IsTranscriptFile(ev.Name) {
		return
	}
	switch {
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		deb.add(ev.Name, changeRemoved)
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		deb.add(ev.Name, changeWritten)
	}
}

func (w *Watcher) handle(ctx context.Context, c change) {
	var (
		n   int
		err error
	)
	switch c.kind {
	case changeWritten:
		var t *Transcript
		t, n, err = w.indexer.IndexFile(ctx, c.path)
		if err == nil {
			w.mu.Lock()
			w.videos[c.path] = t.VideoID
			w.mu.Unlock()
			slog.Info("transcript_indexed", slog.String("path", c.path), slog.String("video_id", t.VideoID), slog.Int("segments", n))
		}
	case changeRemoved:
		w.mu.Lock()
		videoID, known := w.videos[c.path]
		delete(w.videos, c.path)
		w.mu.Unlock()
		if !known {
			return
		}
		n, err = w.indexer.store.DeleteVideo(ctx, videoID)
		if err == nil {
			slog.Info("transcript_removed", slog.String("path", c.path), slog.String("video_id", videoID), slog.Int("segments", n))
		}
	}
	if err != nil {
		slog.Warn("transcript_watch_index_failed", slog.String("path", c.path), slog.String("error", err.Error()))
	}
	if w.OnIndexed != nil {
		w.OnIndexed(c.path, n, err)
	}
}

func (w *Watcher) addRecursive(fsw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return fsw.Add(path)
	})
}
