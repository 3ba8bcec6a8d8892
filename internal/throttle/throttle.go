// Package throttle guards the outbound publish call against bursts within a
// single process run. Its state is in-memory only and lost on restart.
package throttle

import (
	"fmt"
	"sync"
	"time"
)

// Denial kinds, used as metric labels.
const (
	KindMinInterval = "min_interval"
	KindHourlyCap   = "hourly_cap"
)

// Denial explains why a publish was refused.
type Denial struct {
	Kind      string
	SinceLast time.Duration
	Wait      time.Duration
	Limit     int
}

func (d *Denial) Error() string {
	switch d.Kind {
	case KindMinInterval:
		return fmt.Sprintf("rate limit: last post was %ds ago; waiting another ~%ds before posting again",
			int(d.SinceLast.Seconds()), int(d.Wait.Seconds()))
	default:
		return fmt.Sprintf("rate limit: reached %d posts in the last hour; skipping to avoid spamming", d.Limit)
	}
}

// Throttle enforces a minimum spacing between publishes and a rolling hourly
// cap. It is safe for concurrent use.
type Throttle struct {
	mu          sync.Mutex
	minInterval time.Duration
	maxPerHour  int
	sent        []time.Time
}

// New creates a Throttle.
func New(minInterval time.Duration, maxPerHour int) *Throttle {
	return &Throttle{
		minInterval: minInterval,
		maxPerHour:  maxPerHour,
	}
}

// CanPublish trims the history to the trailing hour, then checks spacing and
// the hourly cap. On success now is recorded as an accepted publish.
func (t *Throttle) CanPublish(now time.Time) (bool, *Denial) {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := now.Add(-time.Hour)
	kept := t.sent[:0]
	for _, ts := range t.sent {
		if !ts.Before(cutoff) {
			kept = append(kept, ts)
		}
	}
	t.sent = kept

	if n := len(t.sent); n > 0 {
		sinceLast := now.Sub(t.sent[n-1])
		if sinceLast < t.minInterval {
			wait := min(t.minInterval-sinceLast, t.minInterval)
			return false, &Denial{Kind: KindMinInterval, SinceLast: max(sinceLast, 0), Wait: wait}
		}
	}

	if len(t.sent) >= t.maxPerHour {
		return false, &Denial{Kind: KindHourlyCap, Limit: t.maxPerHour}
	}

	t.sent = append(t.sent, now)
	return true, nil
}

// Len returns the number of accepted publishes currently retained.
func (t *Throttle) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sent)
}
