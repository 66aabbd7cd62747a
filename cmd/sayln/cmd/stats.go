package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/guoyu-zhang/say-like-a-native/internal/output"
	"github.com/guoyu-zhang/say-like-a-native/internal/telemetry"
)

// StatsOutput is the JSON form of `sayln stats`.
type StatsOutput struct {
	From                string                            `json:"from"`
	To                  string                            `json:"to"`
	TotalQueries        int64                             `json:"total_queries"`
	EndpointCounts      map[telemetry.Endpoint]int64      `json:"endpoint_counts"`
	LatencyDistribution map[telemetry.LatencyBucket]int64 `json:"latency_distribution"`
	TopTerms            []telemetry.TermCount             `json:"top_terms"`
	ZeroResultQueries   []string                          `json:"zero_result_queries"`
}

func newStatsCmd() *cobra.Command {
	var (
		jsonOutput bool
		days       int
		top        int
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show persisted query statistics",
		Long: `Display the query telemetry flushed by running servers: request counts
per endpoint, latency distribution, top query terms and recent queries that
found nothing.

A running server also serves live numbers at GET /stats.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if _, err := os.Stat(cfg.Telemetry.DBPath); err != nil {
				output.New(cmd.OutOrStdout()).Warningf("No telemetry recorded yet at %s", cfg.Telemetry.DBPath)
				return nil
			}

			ms, err := telemetry.OpenSQLiteMetricsStore(cfg.Telemetry.DBPath)
			if err != nil {
				return fmt.Errorf("failed to open telemetry store: %w", err)
			}
			defer func() { _ = ms.Close() }()

			stats, err := collectStats(ms, days, top, time.Now())
			if err != nil {
				return err
			}
			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(stats)
			}
			printStats(output.New(cmd.OutOrStdout()), stats)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().IntVar(&days, "days", 7, "Number of days to include")
	cmd.Flags().IntVar(&top, "top", 10, "Number of top terms and zero-result queries")

	return cmd
}

func collectStats(ms *telemetry.SQLiteMetricsStore, days, top int, now time.Time) (*StatsOutput, error) {
	if days < 1 {
		days = 1
	}
	to := now.Format("2006-01-02")
	from := now.AddDate(0, 0, -(days - 1)).Format("2006-01-02")

	endpoints, err := ms.GetEndpointCounts(from, to)
	if err != nil {
		return nil, err
	}
	latencies, err := ms.GetLatencyCounts(from, to)
	if err != nil {
		return nil, err
	}
	terms, err := ms.GetTopTerms(top)
	if err != nil {
		return nil, err
	}
	zero, err := ms.GetZeroResultQueries(top)
	if err != nil {
		return nil, err
	}

	out := &StatsOutput{
		From:                from,
		To:                  to,
		EndpointCounts:      endpoints,
		LatencyDistribution: latencies,
		TopTerms:            terms,
		ZeroResultQueries:   zero,
	}
	for _, n := range endpoints {
		out.TotalQueries += n
	}
	return out, nil
}

var latencyOrder = []telemetry.LatencyBucket{
	telemetry.BucketUnder50ms,
	telemetry.BucketUnder200ms,
	telemetry.BucketUnder1s,
	telemetry.BucketUnder5s,
	telemetry.BucketSlow,
}

func printStats(out *output.Writer, s *StatsOutput) {
	out.Statusf("📊", "Queries %s to %s: %d", s.From, s.To, s.TotalQueries)
	out.Newline()

	if len(s.EndpointCounts) > 0 {
		names := make([]string, 0, len(s.EndpointCounts))
		for ep := range s.EndpointCounts {
			names = append(names, string(ep))
		}
		sort.Strings(names)
		rows := make([][]string, 0, len(names))
		for _, n := range names {
			rows = append(rows, []string{n, strconv.FormatInt(s.EndpointCounts[telemetry.Endpoint(n)], 10)})
		}
		out.Table([]string{"Endpoint", "Requests"}, rows)

		var lat [][]string
		for _, b := range latencyOrder {
			if n, ok := s.LatencyDistribution[b]; ok {
				lat = append(lat, []string{string(b), strconv.FormatInt(n, 10)})
			}
		}
		out.Table([]string{"Latency", "Requests"}, lat)
	}

	if len(s.TopTerms) > 0 {
		rows := make([][]string, 0, len(s.TopTerms))
		for i, tc := range s.TopTerms {
			rows = append(rows, []string{strconv.Itoa(i + 1), tc.Term, strconv.FormatInt(tc.Count, 10)})
		}
		out.Table([]string{"#", "Term", "Count"}, rows)
	} else {
		out.Status("", "Top query terms: (none recorded yet)")
	}

	if len(s.ZeroResultQueries) > 0 {
		out.Status("🔍", "Recent zero-result queries:")
		for _, q := range s.ZeroResultQueries {
			out.Statusf("", "  - %q", q)
		}
	} else {
		out.Status("", "Recent zero-result queries: (none)")
	}
}
