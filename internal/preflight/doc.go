// Package preflight checks that sayln can run on this machine with the
// current configuration, for `sayln doctor`.
//
// The checks cover:
//   - Configuration validity
//   - The segment store: reachable, and whether anything is indexed
//   - Write access and free disk space for embedded data files
//   - The open file descriptor limit
//   - The transcripts directory, waitlist and telemetry locations
//
//	checker := preflight.New(preflight.WithOutput(os.Stdout))
//	results := checker.RunAll(ctx, preflight.Target{Config: cfg, Store: s})
//	if checker.HasCriticalFailures(results) {
//	    // Handle failures
//	}
package preflight
