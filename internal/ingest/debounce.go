package ingest

import (
	"sync"
	"time"
)

// changeKind is what happened to a transcript file.
type changeKind int

const (
	changeWritten changeKind = iota
	changeRemoved
)

// change is one debounced file event.
type change struct {
	path string
	kind changeKind
}

// debouncer coalesces bursts of events per path. The last event for a path
// within the window wins; editors write and rename several times per save.
type debouncer struct {
	window  time.Duration
	mu      sync.Mutex
	pending map[string]changeKind
	timer   *time.Timer
	output  chan []change
	stopped bool
}

func newDebouncer(window time.Duration) *debouncer {
	return &debouncer{
		window:  window,
		pending: make(map[string]changeKind),
		output:  make(chan []change, 16),
	}
}

func (d *debouncer) add(path string, kind changeKind) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.pending[path] = kind
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

func (d *debouncer) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped || len(d.pending) == 0 {
		return
	}
	batch := make([]change, 0, len(d.pending))
	for path, kind := range d.pending {
		batch = append(batch, change{path: path, kind: kind})
	}
	select {
	case d.output <- batch:
		d.pending = make(map[string]changeKind)
	default:
		// Consumer is behind; keep the changes and try again later.
		d.timer = time.AfterFunc(d.window, d.flush)
	}
}

func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	close(d.output)
}
