// Package waitlist keeps the product waitlist in a JSON file shared safely
// between processes.
package waitlist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// ErrInvalidEmail is returned for addresses without a local part and domain.
var ErrInvalidEmail = errors.New("valid email address is required")

// lockRetryDelay is how often a blocked writer retries the file lock.
const lockRetryDelay = 20 * time.Millisecond

// Entry is one signup.
type Entry struct {
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// Waitlist is a JSON-file backed list of signups. Writers are serialised
// in-process by a mutex and across processes by a lock file next to the list.
type Waitlist struct {
	path string
	mu   sync.Mutex
	lock *flock.Flock
	now  func() time.Time
}

// New returns a waitlist stored at path. Nothing is created until the first
// Add.
func New(path string) *Waitlist {
	return &Waitlist{
		path: path,
		lock: flock.New(path + ".lock"),
		now:  time.Now,
	}
}

// Path returns the list file.
func (w *Waitlist) Path() string {
	return w.path
}

// NormalizeEmail trims and lower-cases email and checks it has the shape
// local@domain.
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	local, domain, ok := strings.Cut(email, "@")
	if !ok || local == "" || domain == "" || strings.ContainsAny(email, " \t\r\n") || strings.Contains(domain, "@") {
		return "", ErrInvalidEmail
	}
	return email, nil
}

// Add appends email unless it is already listed. It returns the stored entry
// and whether it was newly added.
func (w *Waitlist) Add(ctx context.Context, email string) (Entry, bool, error) {
	normalized, err := NormalizeEmail(email)
	if err != nil {
		return Entry{}, false, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
		return Entry{}, false, fmt.Errorf("failed to create waitlist directory: %w", err)
	}
	locked, err := w.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return Entry{}, false, fmt.Errorf("failed to acquire waitlist lock: %w", err)
	}
	if !locked {
		return Entry{}, false, fmt.Errorf("failed to acquire waitlist lock: %w", ctx.Err())
	}
	defer func() { _ = w.lock.Unlock() }()

	entries, err := w.read()
	if err != nil {
		return Entry{}, false, err
	}
	for _, e := range entries {
		if strings.EqualFold(e.Email, normalized) {
			return e, false, nil
		}
	}

	entry := Entry{Email: normalized, CreatedAt: w.now().UTC()}
	if err := w.write(append(entries, entry)); err != nil {
		return Entry{}, false, err
	}
	return entry, true, nil
}

// List returns all entries in signup order.
func (w *Waitlist) List(ctx context.Context) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.read()
}

func (w *Waitlist) read() ([]Entry, error) {
	data, err := os.ReadFile(w.path)
	if errors.Is(err, os.ErrNotExist) {
		return []Entry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read waitlist: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return []Entry{}, nil
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("waitlist file %s is corrupt: %w", w.path, err)
	}
	return entries, nil
}

// write replaces the list atomically through a temp file and rename.
func (w *Waitlist) write(entries []Entry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode waitlist: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(w.path), ".waitlist-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write waitlist: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync waitlist: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close waitlist: %w", err)
	}
	if err := os.Rename(tmpPath, w.path); err != nil {
		return fmt.Errorf("failed to replace waitlist: %w", err)
	}
	return nil
}
