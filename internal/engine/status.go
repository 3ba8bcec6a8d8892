package engine

import "time"

// Status is a point-in-time view of the engine for the status endpoint.
type Status struct {
	NodeID          string     `json:"node_id"`
	Region          string     `json:"region"`
	StormActive     bool       `json:"storm_active"`
	StormStart      *time.Time `json:"storm_start,omitempty"`
	LastActivity    *time.Time `json:"last_activity,omitempty"`
	StormEnd        *time.Time `json:"storm_end,omitempty"`
	SummaryPending  bool       `json:"summary_pending"`
	RecentStrikes   int        `json:"recent_strikes"`
	HistoryLen      int        `json:"history_len"`
	HistoryCap      int        `json:"history_capacity"`
	Posts15m        int        `json:"posts_15m"`
	PostsHour       int        `json:"posts_hour"`
	PostsDay        int        `json:"posts_day"`
	PostsInFlight   int        `json:"posts_in_flight"`
	LastPostAt      *time.Time `json:"last_post_at,omitempty"`
	ThrottleEntries int        `json:"throttle_entries"`
}

// Status reports the current session, history and posting counters.
func (e *Engine) Status() Status {
	now := e.clock.Now()

	e.mu.Lock()
	session := e.machine.Session()
	recent := e.machine.RecentStrikes(now)
	e.mu.Unlock()

	p15, ph, pd := e.gate.Counts(now)
	st := Status{
		NodeID:          e.cfg.Node.ID,
		Region:          e.cfg.Node.Region,
		StormActive:     session.Active,
		StormStart:      timePtr(session.Start),
		LastActivity:    timePtr(session.LastActivity),
		StormEnd:        timePtr(session.End),
		SummaryPending:  session.AwaitingSummary(),
		RecentStrikes:   recent,
		HistoryLen:      e.history.Len(),
		HistoryCap:      e.history.Cap(),
		Posts15m:        p15,
		PostsHour:       ph,
		PostsDay:        pd,
		PostsInFlight:   e.gate.Pending(),
		ThrottleEntries: e.throttle.Len(),
	}
	if last := e.gate.Snapshot().LastPostAt; last > 0 {
		t := time.Unix(last, 0).UTC()
		st.LastPostAt = &t
	}
	return st
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
