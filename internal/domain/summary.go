package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// DefaultSummaryBin is the width of one summary histogram bin.
const DefaultSummaryBin = 5 * time.Minute

// Summary is the binned activity profile of one storm session.
type Summary struct {
	Start    time.Time
	End      time.Time
	BinWidth time.Duration
	Bins     []int
	Duration time.Duration
	Total    int
	Peak     int
}

// BuildSummary bins strikes into fixed-width windows spanning [start, end].
// The bin count is ceil(max(end-start, binWidth) / binWidth); strikes whose
// index lands past the last bin are folded into it. An empty slice yields a
// zero-bin, zero-total summary. The result depends only on its inputs.
func BuildSummary(strikes []Strike, start, end time.Time, binWidth time.Duration) Summary {
	if binWidth <= 0 {
		binWidth = DefaultSummaryBin
	}
	duration := end.Sub(start)
	if duration < 0 {
		duration = 0
	}

	sum := Summary{
		Start:    start,
		End:      end,
		BinWidth: binWidth,
		Duration: duration,
	}
	if len(strikes) == 0 {
		return sum
	}

	span := max(duration, binWidth)
	numBins := max(1, int(math.Ceil(float64(span)/float64(binWidth))))
	bins := make([]int, numBins)

	for _, s := range strikes {
		idx := int(s.OccurredAt.Sub(start) / binWidth)
		if idx < 0 {
			idx = 0
		}
		if idx >= numBins {
			idx = numBins - 1
		}
		bins[idx]++
	}

	sum.Bins = bins
	sum.Total = len(strikes)
	for _, n := range bins {
		sum.Peak = max(sum.Peak, n)
	}
	return sum
}

// BinLabels returns "0-5m"-style labels for each bin, for chart axes.
func (s Summary) BinLabels() []string {
	labels := make([]string, len(s.Bins))
	for i := range s.Bins {
		from := time.Duration(i) * s.BinWidth
		to := time.Duration(i+1) * s.BinWidth
		labels[i] = fmt.Sprintf("%d-%dm", int(from.Minutes()), int(to.Minutes()))
	}
	return labels
}

// FormatSummary renders the human-readable storm summary posted after a session.
func FormatSummary(s Summary, node NodeInfo) string {
	if s.Total == 0 {
		return "Storm summary: no strikes recorded."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "⚡ %s · %s\n", node.ID, node.Region)
	fmt.Fprintf(&b, "Channel: %s\n", node.Channel)
	fmt.Fprintf(&b, "- Duration: %.0f minutes\n", s.Duration.Minutes())
	fmt.Fprintf(&b, "- Total lightning strikes: %d\n", s.Total)
	fmt.Fprintf(&b, "- Peak: %d strikes / %d min\n", s.Peak, int(s.BinWidth.Minutes()))
	b.WriteString("◦ Shardless atmospheric telemetry · CEU prototype")
	return b.String()
}
