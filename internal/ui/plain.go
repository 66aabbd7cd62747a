package ui

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/guoyu-zhang/say-like-a-native/internal/ingest"
)

// PlainRenderer prints one line per file (for CI and pipes).
type PlainRenderer struct {
	mu  sync.Mutex
	out io.Writer
}

// NewPlainRenderer creates a plain text renderer.
func NewPlainRenderer(cfg Config) *PlainRenderer {
	return &PlainRenderer{out: cfg.Output}
}

// Start implements Renderer.
func (r *PlainRenderer) Start(context.Context) error { return nil }

// Update implements Renderer.
func (r *PlainRenderer) Update(p ingest.Progress) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p.Err != nil {
		_, _ = fmt.Fprintf(r.out, "[INDEX] %d/%d - %s: ERROR: %v\n", p.Done, p.Total, p.File, p.Err)
		return
	}
	_, _ = fmt.Fprintf(r.out, "[INDEX] %d/%d - %s (%d segments)\n", p.Done, p.Total, p.File, p.Segments)
}

// Complete implements Renderer.
func (r *PlainRenderer) Complete(sum ingest.Summary) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, _ = fmt.Fprintf(r.out, "Complete: %d files, %d segments indexed in %s",
		sum.Files-sum.Failed, sum.Segments, sum.Duration.Round(100*time.Millisecond))
	if sum.Failed > 0 {
		_, _ = fmt.Fprintf(r.out, " (%d failed)", sum.Failed)
	}
	_, _ = fmt.Fprintln(r.out)
}

// Stop implements Renderer.
func (r *PlainRenderer) Stop() error { return nil }
