package cmd

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/extsearch/internal/output"
	"github.com/Aman-CERP/extsearch/internal/telemetry"
)

func newStatsCmd() *cobra.Command {
	var jsonOutput bool
	var days int
	var top int

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show search telemetry",
		Long: `Display the search telemetry recorded by 'extsearch search':
  - Searches per model
  - Top query terms
  - Recent zero-result queries
  - Latency distribution`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStats(cmd.Context(), cmd, days, top, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().IntVar(&days, "days", 7, "Number of days to include")
	cmd.Flags().IntVar(&top, "top", 10, "Number of terms and zero-result queries to show")

	return cmd
}

// StatsOutput is the JSON output format for stats.
type StatsOutput struct {
	From                string                            `json:"from"`
	To                  string                            `json:"to"`
	TotalSearches       int64                             `json:"total_searches"`
	ModelCounts         map[string]int64                  `json:"model_counts"`
	TopTerms            []telemetry.TermCount             `json:"top_terms"`
	ZeroResultQueries   []string                          `json:"zero_result_queries"`
	LatencyDistribution map[telemetry.LatencyBucket]int64 `json:"latency_distribution"`
}

func runStats(ctx context.Context, cmd *cobra.Command, days, top int, jsonOutput bool) error {
	if days <= 0 {
		return fmt.Errorf("--days must be positive, got %d", days)
	}

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	ms, err := a.metricsStore()
	if err != nil {
		return err
	}
	stats, err := collectStats(ms, time.Now(), days, top)
	if err != nil {
		return err
	}

	if jsonOutput {
		return output.New(cmd.OutOrStdout()).JSON(stats)
	}
	printStats(cmd.OutOrStdout(), stats)
	return nil
}

func collectStats(ms *telemetry.SQLiteMetricsStore, now time.Time, days, top int) (*StatsOutput, error) {
	to := now.Format("2006-01-02")
	from := now.AddDate(0, 0, -(days - 1)).Format("2006-01-02")

	models, err := ms.GetModelCounts(from, to)
	if err != nil {
		return nil, fmt.Errorf("get model counts: %w", err)
	}
	terms, err := ms.GetTopTerms(top)
	if err != nil {
		return nil, fmt.Errorf("get top terms: %w", err)
	}
	zero, err := ms.GetZeroResultQueries(top)
	if err != nil {
		return nil, fmt.Errorf("get zero-result queries: %w", err)
	}
	latency, err := ms.GetLatencyCounts(from, to)
	if err != nil {
		return nil, fmt.Errorf("get latency counts: %w", err)
	}

	out := &StatsOutput{
		From:                from,
		To:                  to,
		ModelCounts:         models,
		TopTerms:            terms,
		ZeroResultQueries:   zero,
		LatencyDistribution: latency,
	}
	for _, n := range models {
		out.TotalSearches += n
	}
	return out, nil
}

func printStats(w io.Writer, s *StatsOutput) {
	fmt.Fprintln(w, "Search Statistics")
	fmt.Fprintln(w, "=================")
	fmt.Fprintf(w, "Period:         %s to %s\n", s.From, s.To)
	fmt.Fprintf(w, "Total Searches: %d\n", s.TotalSearches)
	fmt.Fprintln(w)

	if len(s.ModelCounts) > 0 {
		fmt.Fprintln(w, "Searches per Model:")
		labels := make([]string, 0, len(s.ModelCounts))
		for label := range s.ModelCounts {
			labels = append(labels, label)
		}
		sort.Strings(labels)
		for _, label := range labels {
			fmt.Fprintf(w, "  %s: %d\n", label, s.ModelCounts[label])
		}
		fmt.Fprintln(w)
	}

	if len(s.TopTerms) > 0 {
		fmt.Fprintln(w, "Top Query Terms:")
		for i, tc := range s.TopTerms {
			fmt.Fprintf(w, "  %d. %s (%d)\n", i+1, tc.Term, tc.Count)
		}
	} else {
		fmt.Fprintln(w, "Top Query Terms: (none recorded yet)")
	}
	fmt.Fprintln(w)

	if len(s.ZeroResultQueries) > 0 {
		fmt.Fprintln(w, "Recent Zero-Result Queries:")
		for _, q := range s.ZeroResultQueries {
			fmt.Fprintf(w, "  - %q\n", q)
		}
	} else {
		fmt.Fprintln(w, "Recent Zero-Result Queries: (none)")
	}
	fmt.Fprintln(w)

	if len(s.LatencyDistribution) > 0 {
		fmt.Fprintln(w, "Latency Distribution:")
		for _, b := range []telemetry.LatencyBucket{
			telemetry.BucketP10, telemetry.BucketP50, telemetry.BucketP100,
			telemetry.BucketP500, telemetry.BucketP1000,
		} {
			if n, ok := s.LatencyDistribution[b]; ok {
				fmt.Fprintf(w, "  %s: %d\n", b, n)
			}
		}
	}
}
