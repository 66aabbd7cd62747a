package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/guoyu-zhang/say-like-a-native/internal/config"
	"github.com/guoyu-zhang/say-like-a-native/internal/preflight"
	"github.com/guoyu-zhang/say-like-a-native/internal/store"
)

// doctorStoreTimeout bounds opening a remote store during checks.
const doctorStoreTimeout = 30 * time.Second

func newDoctorCmd() *cobra.Command {
	var jsonOutput, verbose bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, store and environment",
		Long: `Run system checks: configuration validity, store availability and
segment count, data directory access and free space, file descriptor limit,
and the transcripts, waitlist and telemetry locations.

Exits non-zero when a required check fails.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd.Context(), cmd, jsonOutput, verbose)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output results as JSON")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show details for passing checks")

	return cmd
}

func runDoctor(ctx context.Context, cmd *cobra.Command, jsonOutput, verbose bool) error {
	checker := preflight.New(
		preflight.WithOutput(cmd.OutOrStdout()),
		preflight.WithVerbose(verbose),
	)

	var target preflight.Target
	cfg, err := loadConfig()
	if err == nil {
		target.Config = cfg
		target.Store, target.StoreErr = openDoctorStore(ctx, cfg)
		if s, ok := target.Store.(store.Store); ok {
			defer func() { _ = s.Close() }()
		}
	}

	results := checker.RunAll(ctx, target)
	if err != nil {
		results[0].Details = err.Error()
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(map[string]any{
			"status": checker.SummaryStatus(results),
			"checks": results,
		}); err != nil {
			return err
		}
	} else {
		checker.PrintResults(results)
	}

	if checker.HasCriticalFailures(results) {
		return fmt.Errorf("system check failed")
	}
	return nil
}

func openDoctorStore(ctx context.Context, cfg *config.Config) (preflight.Counter, error) {
	ctx, cancel := context.WithTimeout(ctx, doctorStoreTimeout)
	defer cancel()
	s, err := store.Open(ctx, storeConfig(cfg))
	if err != nil {
		return nil, err
	}
	return s, nil
}
