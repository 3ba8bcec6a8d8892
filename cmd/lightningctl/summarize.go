package main

import (
	"fmt"
	"os"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/spf13/cobra"

	"github.com/couchcryptid/storm-lightning-service/internal/adapter/telemetryfile"
	"github.com/couchcryptid/storm-lightning-service/internal/domain"
)

func newSummarizeCmd() *cobra.Command {
	var (
		file   string
		start  string
		end    string
		bin    time.Duration
		nodeID string
		region string
	)

	cmd := &cobra.Command{
		Use:   "summarize",
		Short: "Rebuild a storm summary from a telemetry file",
		Long: `Read strike records from a JSONL telemetry file and print the storm
summary for [--start, --end]. Without bounds, the first and last strike in
the file are used.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := os.Open(file)
			if err != nil {
				return fmt.Errorf("open telemetry: %w", err)
			}
			defer f.Close()

			records, skipped, err := telemetryfile.ReadAll(f)
			if err != nil {
				return err
			}

			var strikes []domain.Strike
			for _, rec := range records {
				if s, ok := domain.StrikeFromTelemetry(rec); ok {
					strikes = append(strikes, s)
				}
			}
			if len(strikes) == 0 {
				return fmt.Errorf("no strike records in %s", file)
			}

			first, last := strikeBounds(strikes)
			from, err := parseTimeFlag("start", start, first)
			if err != nil {
				return err
			}
			to, err := parseTimeFlag("end", end, last)
			if err != nil {
				return err
			}
			if to.Before(from) {
				return fmt.Errorf("--end %s is before --start %s", to.Format(time.RFC3339), from.Format(time.RFC3339))
			}

			history := domain.NewHistory(len(strikes))
			for _, s := range strikes {
				history.Record(s)
			}
			sum := domain.BuildSummary(history.Slice(from, to), from, to, bin)

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, domain.FormatSummary(sum, domain.NodeInfo{ID: nodeID, Region: region, Channel: "Atmospheric Telemetry"}))
			fmt.Fprintln(out)
			for i, label := range sum.BinLabels() {
				fmt.Fprintf(out, "%8s  %d\n", label, sum.Bins[i])
			}
			if skipped > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "skipped %d malformed lines\n", skipped)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "lightning_telemetry.jsonl", "telemetry JSONL file")
	cmd.Flags().StringVar(&start, "start", "", "window start, RFC 3339")
	cmd.Flags().StringVar(&end, "end", "", "window end, RFC 3339")
	cmd.Flags().DurationVar(&bin, "bin", domain.DefaultSummaryBin, "histogram bin width")
	cmd.Flags().StringVar(&nodeID, "node-id", sharedcfg.EnvOrDefault("NODE_ID", "PASS-LN-01"), "node id shown in the summary")
	cmd.Flags().StringVar(&region, "region", sharedcfg.EnvOrDefault("NODE_REGION", "Greater Harmony Hills"), "region shown in the summary")

	return cmd
}

func strikeBounds(strikes []domain.Strike) (first, last time.Time) {
	first, last = strikes[0].OccurredAt, strikes[0].OccurredAt
	for _, s := range strikes[1:] {
		if s.OccurredAt.Before(first) {
			first = s.OccurredAt
		}
		if s.OccurredAt.After(last) {
			last = s.OccurredAt
		}
	}
	return first, last
}
