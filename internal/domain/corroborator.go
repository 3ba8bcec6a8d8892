package domain

import (
	"context"
	"time"
)

// Corroboration is an advisory "storm plausible now?" signal from a weather
// service. It never confirms a strike.
type Corroboration struct {
	StormPositive bool
	Score         int // alerts add 3, forecast thunder adds 1
	Reasons       []string
	Alerts        []WeatherAlert
	ForecastHits  []ForecastHit
	FetchedAt     time.Time
}

// WeatherAlert is a simplified active alert that matched the storm whitelist.
type WeatherAlert struct {
	ID        string
	Event     string
	Headline  string
	Severity  string
	Certainty string
	Urgency   string
	Effective string
	Expires   string
}

// ForecastHit is an hourly forecast period that mentions thunder.
type ForecastHit struct {
	StartTime     string
	Temperature   float64
	WindSpeed     string
	ShortForecast string
}

// Corroborator checks storm plausibility for the node's location.
type Corroborator interface {
	Corroborate(ctx context.Context) (Corroboration, error)
}
