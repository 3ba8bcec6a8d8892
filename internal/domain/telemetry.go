package domain

import (
	"context"
	"time"
)

// Telemetry event names.
const (
	TelemetryNodeStart     = "node_start"
	TelemetryNodeShutdown  = "node_shutdown"
	TelemetryStrike        = "strike"
	TelemetryStormStart    = "storm_start"
	TelemetryStormEnd      = "storm_end"
	TelemetrySummaryPosted = "storm_summary_posted"
)

// Telemetry is one structured telemetry record, serialized as a flat JSON
// object (one per line in the file sink, one per message in Kafka).
type Telemetry struct {
	Event  string  `json:"event"`
	NodeID string  `json:"node_id"`
	Region string  `json:"region"`
	UnixTS float64 `json:"unix_ts"`
	TSISO  string  `json:"ts_iso"`

	DistanceKM *float64 `json:"distance_km,omitempty"`
	DistanceMI *float64 `json:"distance_mi,omitempty"`
	Energy     *uint32  `json:"energy,omitempty"`

	StormStart *float64 `json:"storm_start,omitempty"`
	StormEnd   *float64 `json:"storm_end,omitempty"`
	Total      *int     `json:"total,omitempty"`
}

// TelemetrySink receives telemetry records. Implementations must not block
// the caller on network I/O.
type TelemetrySink interface {
	Emit(ctx context.Context, rec Telemetry) error
}

// NewTelemetry builds a bare record of the given kind at ts, stamped at now.
func NewTelemetry(event string, node NodeInfo, ts, now time.Time) Telemetry {
	return Telemetry{
		Event:  event,
		NodeID: node.ID,
		Region: node.Region,
		UnixTS: unixSeconds(ts),
		TSISO:  now.UTC().Format("2006-01-02T15:04:05.000000Z"),
	}
}

// NewStrikeTelemetry builds a strike record keyed on the strike time.
func NewStrikeTelemetry(node NodeInfo, s Strike, now time.Time) Telemetry {
	rec := NewTelemetry(TelemetryStrike, node, s.OccurredAt, now)
	km, mi, energy := s.DistanceKM, s.DistanceMI(), s.Energy
	rec.DistanceKM = &km
	rec.DistanceMI = &mi
	rec.Energy = &energy
	return rec
}

// NewSessionTelemetry builds a storm_start or storm_end record. A zero end is
// omitted.
func NewSessionTelemetry(event string, node NodeInfo, start, end, now time.Time) Telemetry {
	rec := NewTelemetry(event, node, now, now)
	startTS := unixSeconds(start)
	rec.StormStart = &startTS
	if !end.IsZero() {
		endTS := unixSeconds(end)
		rec.StormEnd = &endTS
	}
	return rec
}

// NewSummaryTelemetry builds a storm_summary_posted record.
func NewSummaryTelemetry(node NodeInfo, sum Summary, now time.Time) Telemetry {
	rec := NewTelemetry(TelemetrySummaryPosted, node, now, now)
	start, end, total := unixSeconds(sum.Start), unixSeconds(sum.End), sum.Total
	rec.StormStart = &start
	rec.StormEnd = &end
	rec.Total = &total
	return rec
}

// StrikeFromTelemetry reconstructs a Strike from a strike record. The second
// return value is false for any other record kind.
func StrikeFromTelemetry(rec Telemetry) (Strike, bool) {
	if rec.Event != TelemetryStrike || rec.DistanceKM == nil || rec.Energy == nil {
		return Strike{}, false
	}
	return Strike{
		OccurredAt: fromUnixSeconds(rec.UnixTS),
		DistanceKM: *rec.DistanceKM,
		Energy:     *rec.Energy,
	}, true
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

func fromUnixSeconds(v float64) time.Time {
	return time.Unix(0, int64(v*float64(time.Second))).UTC()
}
