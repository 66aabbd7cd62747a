package preflight

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/guoyu-zhang/say-like-a-native/internal/config"
)

// CheckStatus represents the result of a check.
type CheckStatus int

const (
	StatusPass CheckStatus = iota
	StatusWarn
	StatusFail
)

// String returns the string representation of a CheckStatus.
func (s CheckStatus) String() string {
	switch s {
	case StatusPass:
		return "PASS"
	case StatusWarn:
		return "WARN"
	case StatusFail:
		return "FAIL"
	default:
		return "UNKNOWN"
	}
}

// MarshalText renders the status by name in JSON output.
func (s CheckStatus) MarshalText() ([]byte, error) {
	return []byte(strings.ToLower(s.String())), nil
}

// CheckResult holds the result of a single check.
type CheckResult struct {
	Name     string      `json:"name"`
	Status   CheckStatus `json:"status"`
	Message  string      `json:"message"`
	Details  string      `json:"details,omitempty"`
	Required bool        `json:"required"`
}

// IsCritical returns true if this is a required check that failed.
func (r CheckResult) IsCritical() bool {
	return r.Required && r.Status == StatusFail
}

// Counter reports how many segments the store holds.
type Counter interface {
	Count(ctx context.Context) (int, error)
}

// Target is what gets checked. Store is nil when it could not be opened;
// StoreErr then says why.
type Target struct {
	Config   *config.Config
	Store    Counter
	StoreErr error
}

// Checker runs the checks.
type Checker struct {
	verbose bool
	output  io.Writer
}

// Option configures a Checker.
type Option func(*Checker)

// WithVerbose prints check details.
func WithVerbose(verbose bool) Option {
	return func(c *Checker) {
		c.verbose = verbose
	}
}

// WithOutput sets the output writer.
func WithOutput(w io.Writer) Option {
	return func(c *Checker) {
		c.output = w
	}
}

// New creates a Checker.
func New(opts ...Option) *Checker {
	c := &Checker{output: os.Stdout}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RunAll runs every check against t.
func (c *Checker) RunAll(ctx context.Context, t Target) []CheckResult {
	results := []CheckResult{c.CheckConfig(t.Config)}
	if t.Config == nil {
		return results
	}

	results = append(results, c.CheckStore(ctx, t))

	embedded := !strings.EqualFold(t.Config.Store.Backend, config.BackendOpenSearch)
	if embedded && t.Config.Store.DataDir != "" {
		results = append(results,
			c.CheckWritePermissions("data_dir", t.Config.Store.DataDir, true),
			c.CheckDiskSpace(t.Config.Store.DataDir))
	}

	results = append(results,
		c.CheckFileDescriptors(),
		c.CheckTranscriptsDir(t.Config.Ingest.Dir),
		c.CheckWritePermissions("waitlist", filepath.Dir(t.Config.Waitlist.Path), false))

	if t.Config.Telemetry.Enabled && t.Config.Telemetry.DBPath != "" {
		results = append(results,
			c.CheckWritePermissions("telemetry", filepath.Dir(t.Config.Telemetry.DBPath), false))
	}
	return results
}

// HasCriticalFailures returns true if any required check failed.
func (c *Checker) HasCriticalFailures(results []CheckResult) bool {
	for _, r := range results {
		if r.IsCritical() {
			return true
		}
	}
	return false
}

// SummaryStatus is ready, ready_with_warnings or failed.
func (c *Checker) SummaryStatus(results []CheckResult) string {
	hasWarnings := false
	for _, r := range results {
		if r.IsCritical() {
			return "failed"
		}
		if r.Status != StatusPass {
			hasWarnings = true
		}
	}
	if hasWarnings {
		return "ready_with_warnings"
	}
	return "ready"
}

// PrintResults prints check results to the configured output.
func (c *Checker) PrintResults(results []CheckResult) {
	_, _ = fmt.Fprintln(c.output, "sayln System Check")
	_, _ = fmt.Fprintln(c.output, "==================")
	_, _ = fmt.Fprintln(c.output)

	for _, r := range results {
		_, _ = fmt.Fprintf(c.output, "[%s] %s: %s\n", r.Status, r.Name, r.Message)
		if r.Details != "" && (c.verbose || r.Status != StatusPass) {
			_, _ = fmt.Fprintf(c.output, "       %s\n", r.Details)
		}
	}

	_, _ = fmt.Fprintln(c.output)
	_, _ = fmt.Fprintf(c.output, "Status: %s\n", strings.ToUpper(c.SummaryStatus(results)))

	var errs []string
	for _, r := range results {
		if r.IsCritical() {
			errs = append(errs, r.Name+": "+r.Message)
		}
	}
	if len(errs) > 0 {
		_, _ = fmt.Fprintln(c.output)
		_, _ = fmt.Fprintf(c.output, "%d error(s):\n", len(errs))
		for _, e := range errs {
			_, _ = fmt.Fprintf(c.output, "  - %s\n", e)
		}
	}
}

// CheckConfig validates the loaded configuration.
func (c *Checker) CheckConfig(cfg *config.Config) CheckResult {
	result := CheckResult{Name: "config", Required: true}
	if cfg == nil {
		result.Status = StatusFail
		result.Message = "configuration could not be loaded"
		return result
	}
	if err := cfg.Validate(); err != nil {
		result.Status = StatusFail
		result.Message = err.Error()
		return result
	}
	result.Status = StatusPass
	result.Message = fmt.Sprintf("%s backend, index %q", cfg.Store.Backend, cfg.Store.Index)
	return result
}

// CheckStore checks the store opened and holds segments. An empty index is
// a warning: the server runs but every search comes back empty.
func (c *Checker) CheckStore(ctx context.Context, t Target) CheckResult {
	result := CheckResult{Name: "store", Required: true}
	if t.Store == nil {
		result.Status = StatusFail
		result.Message = "store unavailable"
		if t.StoreErr != nil {
			result.Details = t.StoreErr.Error()
		}
		return result
	}

	n, err := t.Store.Count(ctx)
	if err != nil {
		result.Status = StatusFail
		result.Message = "count failed"
		result.Details = err.Error()
		return result
	}
	if n == 0 {
		result.Status = StatusWarn
		result.Message = "index is empty"
		result.Details = "Run 'sayln index' to ingest transcripts"
		return result
	}
	result.Status = StatusPass
	result.Message = fmt.Sprintf("%d segments indexed", n)
	return result
}

// CheckWritePermissions checks that dir exists or can be created, and
// accepts new files.
func (c *Checker) CheckWritePermissions(name, dir string, required bool) CheckResult {
	result := CheckResult{Name: name, Required: required}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		result.Status = failOrWarn(required)
		result.Message = fmt.Sprintf("cannot create %s", dir)
		result.Details = err.Error()
		return result
	}

	f, err := os.CreateTemp(dir, ".sayln-preflight-*")
	if err != nil {
		result.Status = failOrWarn(required)
		result.Message = fmt.Sprintf("%s is not writable", dir)
		result.Details = err.Error()
		return result
	}
	_ = f.Close()
	_ = os.Remove(f.Name())

	result.Status = StatusPass
	result.Message = dir
	return result
}

// CheckTranscriptsDir warns when there is nothing to ingest.
func (c *Checker) CheckTranscriptsDir(dir string) CheckResult {
	result := CheckResult{Name: "transcripts", Required: false}

	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("%s not found", dir)
		result.Details = "Set ingest.dir or SAYLN_TRANSCRIPTS_DIR to the fetched transcripts"
		return result
	}
	result.Status = StatusPass
	result.Message = dir
	return result
}

func failOrWarn(required bool) CheckStatus {
	if required {
		return StatusFail
	}
	return StatusWarn
}
