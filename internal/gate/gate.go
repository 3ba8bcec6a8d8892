// Package gate decides whether a detection may produce an outbound
// notification. It combines a startup grace period, a per-key dedupe window
// and rolling 15m/1h/24h caps, and persists its memory across restarts.
package gate

import (
	"log/slog"
	"sync"
	"time"
)

// Reason is the suppression code attached to every Decision.
type Reason string

const (
	ReasonOK            Reason = "ok"
	ReasonDryRun        Reason = "dry_run"
	ReasonStartupGrace  Reason = "startup_grace"
	ReasonDedupeWindow  Reason = "dedupe_window"
	ReasonRateLimit15m  Reason = "rate_limit_15m"
	ReasonRateLimitHour Reason = "rate_limit_hour"
	ReasonRateLimitDay  Reason = "rate_limit_day"
)

const (
	window15m    int64 = 15 * 60
	windowHour   int64 = 60 * 60
	windowDay    int64 = 24 * 60 * 60
	keyRetention int64 = 7 * 24 * 60 * 60

	// defaultDedupeKey is used when an event carries neither key nor type.
	defaultDedupeKey = "event"
)

// Decision is the outcome of ShouldPost. RetryAfter is a suggested wait in
// seconds and is never negative.
type Decision struct {
	Allow      bool
	Reason     Reason
	RetryAfter int64
}

// Event describes the notification candidate. DedupeKey groups related
// events; when empty, Type is used.
type Event struct {
	Type      string
	DedupeKey string
}

// Key returns the dedupe key for the event.
func (e Event) Key() string {
	switch {
	case e.DedupeKey != "":
		return e.DedupeKey
	case e.Type != "":
		return e.Type
	default:
		return defaultDedupeKey
	}
}

// Config holds the gate policy.
type Config struct {
	StartupGrace time.Duration
	DedupeWindow time.Duration
	MaxPer15m    int
	MaxPerHour   int
	MaxPerDay    int
	DryRun       bool
}

// DefaultConfig returns the production policy: 15m grace, 20m dedupe, at most
// 1 post per 15 minutes, 3 per hour, 10 per day.
func DefaultConfig() Config {
	return Config{
		StartupGrace: 15 * time.Minute,
		DedupeWindow: 20 * time.Minute,
		MaxPer15m:    1,
		MaxPerHour:   3,
		MaxPerDay:    10,
	}
}

type limit struct {
	window int64
	max    int
	reason Reason
}

// Gate is safe for concurrent use. Every decision and record is serialized
// under a single mutex.
type Gate struct {
	mu        sync.Mutex
	cfg       Config
	store     Store
	startedAt int64
	state     State
	logger    *slog.Logger

	// Approved posts whose publish has not finished yet, by dedupe key.
	pending      map[string]int
	pendingTotal int
}

// New creates a Gate and loads prior state from store. An unreadable state is
// logged and replaced by an empty one; it is never fatal.
func New(cfg Config, store Store, startedAt time.Time, logger *slog.Logger) *Gate {
	st, err := store.Load()
	if err != nil {
		logger.Warn("gate state unreadable, starting with empty history", "error", err)
		st = EmptyState()
	}
	st.normalize()

	return &Gate{
		cfg:       cfg,
		store:     store,
		startedAt: startedAt.Unix(),
		state:     st,
		logger:    logger,
		pending:   map[string]int{},
	}
}

// ShouldPost evaluates the policy in strict priority order: dry run, startup
// grace, dedupe window, then the 15m, hourly and daily caps. Pruning of stale
// timestamps happens here in memory only; nothing is written to disk.
func (g *Gate) ShouldPost(ev Event, now time.Time) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	ts := now.Unix()

	if g.cfg.DryRun {
		return Decision{Reason: ReasonDryRun}
	}

	grace := seconds(g.cfg.StartupGrace)
	if uptime := ts - g.startedAt; uptime < grace {
		return Decision{Reason: ReasonStartupGrace, RetryAfter: clamp(grace-uptime, grace)}
	}

	g.prune(ts)

	window := seconds(g.cfg.DedupeWindow)
	if last, ok := g.state.LastPostByKey[ev.Key()]; ok && last != 0 {
		if elapsed := ts - last; elapsed < window {
			return Decision{Reason: ReasonDedupeWindow, RetryAfter: clamp(window-elapsed, window)}
		}
	}
	if window > 0 && g.pending[ev.Key()] > 0 {
		return Decision{Reason: ReasonDedupeWindow, RetryAfter: window}
	}

	for _, l := range g.limits() {
		if g.countSince(ts, l.window)+g.pendingTotal >= l.max {
			return Decision{Reason: l.reason, RetryAfter: g.retryAfter(ts, l.window)}
		}
	}

	return Decision{Allow: true, Reason: ReasonOK}
}

// Reserve marks an approved post as in flight. Until it is recorded or
// released it counts toward every cap and blocks its dedupe key.
func (g *Gate) Reserve(ev Event) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.pending[ev.Key()]++
	g.pendingTotal++
}

// Release drops a reservation whose publish failed or never ran.
func (g *Gate) Release(ev Event) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.release(ev.Key())
}

// Pending returns the number of reserved, unrecorded posts.
func (g *Gate) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pendingTotal
}

// RecordPost registers a confirmed successful publish and persists the state.
// It must only be called after the external publish succeeded. A reservation
// for the same key, if any, is consumed.
func (g *Gate) RecordPost(ev Event, now time.Time) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.release(ev.Key())
	ts := now.Unix()
	g.state.PostTimestamps = append(g.state.PostTimestamps, ts)
	g.state.LastPostByKey[ev.Key()] = ts
	g.state.LastPostAt = ts

	return g.store.Save(g.state.clone())
}

// Reset clears all posting memory, in memory and on disk.
func (g *Gate) Reset() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.state = EmptyState()
	return g.store.Save(g.state.clone())
}

// Snapshot returns a copy of the current in-memory state.
func (g *Gate) Snapshot() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state.clone()
}

// Counts reports recorded posts inside the trailing 15m, hour and day.
func (g *Gate) Counts(now time.Time) (last15m, lastHour, lastDay int) {
	g.mu.Lock()
	defer g.mu.Unlock()

	ts := now.Unix()
	return g.countSince(ts, window15m), g.countSince(ts, windowHour), g.countSince(ts, windowDay)
}

func (g *Gate) release(key string) {
	n := g.pending[key]
	if n == 0 {
		return
	}
	if n == 1 {
		delete(g.pending, key)
	} else {
		g.pending[key] = n - 1
	}
	g.pendingTotal--
}

func (g *Gate) limits() []limit {
	return []limit{
		{window: window15m, max: g.cfg.MaxPer15m, reason: ReasonRateLimit15m},
		{window: windowHour, max: g.cfg.MaxPerHour, reason: ReasonRateLimitHour},
		{window: windowDay, max: g.cfg.MaxPerDay, reason: ReasonRateLimitDay},
	}
}

// prune keeps the last 24h of post timestamps and the last 7 days of keys.
func (g *Gate) prune(ts int64) {
	cutoff := ts - windowDay
	kept := g.state.PostTimestamps[:0]
	for _, p := range g.state.PostTimestamps {
		if p >= cutoff {
			kept = append(kept, p)
		}
	}
	g.state.PostTimestamps = kept

	keyCutoff := ts - keyRetention
	for k, v := range g.state.LastPostByKey {
		if v < keyCutoff {
			delete(g.state.LastPostByKey, k)
		}
	}
}

func (g *Gate) countSince(ts, window int64) int {
	cutoff := ts - window
	n := 0
	for _, p := range g.state.PostTimestamps {
		if p >= cutoff {
			n++
		}
	}
	return n
}

// retryAfter returns the seconds until the oldest post inside the window
// falls out of it, or 0 when the window is empty.
func (g *Gate) retryAfter(ts, window int64) int64 {
	cutoff := ts - window
	oldest, found := int64(0), false
	for _, p := range g.state.PostTimestamps {
		if p >= cutoff && (!found || p < oldest) {
			oldest, found = p, true
		}
	}
	if !found {
		return 0
	}
	return clamp(window-(ts-oldest), window)
}

func seconds(d time.Duration) int64 {
	return int64(d / time.Second)
}

// clamp bounds v to [0, upper]; a clock moving backwards must not produce a
// negative or oversized wait.
func clamp(v, upper int64) int64 {
	return max(0, min(v, upper))
}
