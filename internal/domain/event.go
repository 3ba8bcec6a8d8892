package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// kmToMiles converts sensor kilometres to statute miles for display.
const kmToMiles = 0.621371

// Strike is a single lightning detection. It is immutable once recorded.
type Strike struct {
	OccurredAt time.Time `json:"occurred_at"`
	DistanceKM float64   `json:"distance_km"`
	Energy     uint32    `json:"energy"`
}

// DistanceMI returns the strike distance in miles.
func (s Strike) DistanceMI() float64 {
	return s.DistanceKM * kmToMiles
}

// RawStrike represents an unprocessed message from a strike source.
type RawStrike struct {
	Key       []byte
	Value     []byte
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// Post is a notification handed to the publish shim. The engine posts text
// only; ImagePath is for callers that render their own chart, and nothing in
// the service sets it yet.
type Post struct {
	Kind      string // "strike" or "summary", used for metrics and logs
	Text      string
	ImagePath string // optional PNG attachment
}

// NodeInfo identifies the sensor node in notification texts and telemetry.
type NodeInfo struct {
	ID      string
	Region  string
	Channel string
}

// ParseStrike deserializes a RawStrike's value into a Strike. When the payload
// carries no occurred_at, the message timestamp is used instead.
func ParseStrike(raw RawStrike) (Strike, error) {
	var s Strike
	if err := json.Unmarshal(raw.Value, &s); err != nil {
		return Strike{}, fmt.Errorf("parse strike: %w", err)
	}
	if s.OccurredAt.IsZero() {
		s.OccurredAt = raw.Timestamp
	}
	if err := s.Validate(); err != nil {
		return Strike{}, err
	}
	return s, nil
}

// Validate rejects physically meaningless readings.
func (s Strike) Validate() error {
	if s.DistanceKM < 0 {
		return errors.New("parse strike: negative distance")
	}
	if s.Energy > 1<<20-1 {
		return fmt.Errorf("parse strike: energy %d exceeds 20 bits", s.Energy)
	}
	return nil
}
