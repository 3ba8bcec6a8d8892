package main

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/storm-lightning-service/internal/adapter/telemetryfile"
	"github.com/couchcryptid/storm-lightning-service/internal/domain"
)

var mockBase = time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)

// maxEnergy keeps generated energies inside the sensor's 20-bit range.
const maxEnergy = 1<<20 - 1

func newMockCmd() *cobra.Command {
	var (
		out      string
		start    string
		count    int
		interval time.Duration
		jitter   time.Duration
		seed     uint64
		nodeID   string
	)

	cmd := &cobra.Command{
		Use:   "mock",
		Short: "Generate a synthetic storm as strike telemetry (JSONL)",
		Long: `Write --count strike records spaced --interval apart (plus up to --jitter)
starting at --start. The same seed always yields the same file, so the output
can be checked in as a test fixture.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if count <= 0 {
				return fmt.Errorf("--count must be positive")
			}
			from, err := parseTimeFlag("start", start, mockBase)
			if err != nil {
				return err
			}

			if err := os.Remove(out); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("truncate %s: %w", out, err)
			}
			sink, err := telemetryfile.Open(out)
			if err != nil {
				return err
			}
			defer sink.Close()

			node := domain.NodeInfo{ID: nodeID, Region: "mock"}
			for _, s := range mockStrikes(from, count, interval, jitter, seed) {
				if err := sink.Emit(context.Background(), domain.NewStrikeTelemetry(node, s, s.OccurredAt)); err != nil {
					return err
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d strikes to %s\n", count, out)
			return sink.Close()
		},
	}

	cmd.Flags().StringVar(&out, "out", "testdata/mock_storm.jsonl", "output JSONL path (overwritten)")
	cmd.Flags().StringVar(&start, "start", "", "first strike time, RFC 3339 (default "+mockBase.Format(time.RFC3339)+")")
	cmd.Flags().IntVar(&count, "count", 30, "number of strikes")
	cmd.Flags().DurationVar(&interval, "interval", 40*time.Second, "base spacing between strikes")
	cmd.Flags().DurationVar(&jitter, "jitter", 20*time.Second, "maximum extra random spacing")
	cmd.Flags().Uint64Var(&seed, "seed", 1, "random seed")
	cmd.Flags().StringVar(&nodeID, "node-id", "mock-node", "node id stamped on records")

	return cmd
}

// mockStrikes builds a storm that approaches and then recedes: distances
// shrink toward the midpoint and grow again.
func mockStrikes(start time.Time, count int, interval, jitter time.Duration, seed uint64) []domain.Strike {
	rng := rand.New(rand.NewPCG(seed, seed))
	strikes := make([]domain.Strike, 0, count)
	at := start
	for i := range count {
		progress := float64(i) / float64(max(count-1, 1))
		closeness := 1 - 2*math.Abs(progress-0.5)
		distance := 40 - 35*closeness + rng.Float64()*3

		strikes = append(strikes, domain.Strike{
			OccurredAt: at,
			DistanceKM: float64(int(distance*10)) / 10,
			Energy:     uint32(rng.IntN(maxEnergy + 1)),
		})

		step := interval
		if jitter > 0 {
			step += time.Duration(rng.Int64N(int64(jitter)))
		}
		at = at.Add(step)
	}
	return strikes
}
