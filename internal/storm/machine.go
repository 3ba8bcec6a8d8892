// Package storm derives storm sessions from strike history. Onset reacts to
// strike density inside a trailing window; the end reacts to a quiet gap and
// is only evaluated on the periodic tick.
package storm

import (
	"sync"
	"time"

	"github.com/couchcryptid/storm-lightning-service/internal/domain"
)

// Config holds the session thresholds.
type Config struct {
	MinStrikes   int
	Window       time.Duration
	GapToEnd     time.Duration
	SummaryDelay time.Duration
}

// DefaultConfig returns 3 strikes in 10 minutes to start, 20 quiet minutes to
// end, and a summary one hour after the last strike.
func DefaultConfig() Config {
	return Config{
		MinStrikes:   3,
		Window:       10 * time.Minute,
		GapToEnd:     20 * time.Minute,
		SummaryDelay: time.Hour,
	}
}

// Session is the single live storm session. Zero times mean "unset".
type Session struct {
	Active          bool
	Start           time.Time
	LastActivity    time.Time
	End             time.Time
	SummaryPostedAt time.Time
}

// AwaitingSummary reports whether a finished session still owes a summary.
func (s Session) AwaitingSummary() bool {
	return !s.Active && !s.Start.IsZero() && !s.End.IsZero() && s.SummaryPostedAt.IsZero()
}

// SignalKind identifies a session transition.
type SignalKind int

const (
	SignalStarted SignalKind = iota + 1
	SignalEnded
	SignalSummaryDue
)

func (k SignalKind) String() string {
	switch k {
	case SignalStarted:
		return "start"
	case SignalEnded:
		return "end"
	case SignalSummaryDue:
		return "summary_due"
	default:
		return "unknown"
	}
}

// Signal is emitted on a transition together with the session bounds at that
// moment. For SignalStarted, End is zero.
type Signal struct {
	Kind  SignalKind
	Start time.Time
	End   time.Time
}

// Machine is safe for concurrent use; OnEvent and Tick serialize on one mutex.
type Machine struct {
	mu      sync.Mutex
	cfg     Config
	history *domain.History
	session Session
}

// NewMachine creates an idle machine over history.
func NewMachine(cfg Config, history *domain.History) *Machine {
	return &Machine{cfg: cfg, history: history}
}

// OnEvent is called once per recorded strike. While idle, reaching MinStrikes
// within the trailing window starts a session whose start is the earliest
// strike in that window. While active, it only extends LastActivity.
func (m *Machine) OnEvent(now time.Time) (Signal, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session.Active {
		if now.After(m.session.LastActivity) {
			m.session.LastActivity = now
		}
		return Signal{}, false
	}

	recent := m.history.Since(now, m.cfg.Window)
	if len(recent) < m.cfg.MinStrikes || len(recent) == 0 {
		return Signal{}, false
	}

	start := recent[0].OccurredAt
	for _, s := range recent[1:] {
		if s.OccurredAt.Before(start) {
			start = s.OccurredAt
		}
	}

	m.session = Session{
		Active:       true,
		Start:        start,
		LastActivity: now,
	}
	return Signal{Kind: SignalStarted, Start: start}, true
}

// Tick evaluates the end-of-session gap and the delayed one-shot summary.
// Both may fire in the same tick when the summary delay does not exceed the
// gap.
func (m *Machine) Tick(now time.Time) []Signal {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Signal

	if m.session.Active && now.Sub(m.session.LastActivity) >= m.cfg.GapToEnd {
		m.session.Active = false
		m.session.End = m.session.LastActivity
		m.session.SummaryPostedAt = time.Time{}
		out = append(out, Signal{Kind: SignalEnded, Start: m.session.Start, End: m.session.End})
	}

	if m.session.AwaitingSummary() && now.Sub(m.session.End) >= m.cfg.SummaryDelay {
		m.session.SummaryPostedAt = now
		out = append(out, Signal{Kind: SignalSummaryDue, Start: m.session.Start, End: m.session.End})
	}

	return out
}

// Session returns a copy of the current session.
func (m *Machine) Session() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// RecentStrikes returns the number of strikes inside the trailing onset
// window, for status display.
func (m *Machine) RecentStrikes(now time.Time) int {
	return len(m.history.Since(now, m.cfg.Window))
}
