// Package nws corroborates lightning detections against the National Weather
// Service API (api.weather.gov): active alerts for the node's point and
// thunder mentions in the hourly forecast.
package nws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/couchcryptid/storm-lightning-service/internal/domain"
)

const (
	defaultBaseURL = "https://api.weather.gov"

	alertScore    = 3
	forecastScore = 1
)

// alertWhitelist lists the alert events that count as storm-positive.
var alertWhitelist = map[string]bool{
	"Severe Thunderstorm Warning": true,
	"Severe Thunderstorm Watch":   true,
	"Special Weather Statement":   true,
	"Flash Flood Warning":         true,
	"Flash Flood Watch":           true,
	"Flood Advisory":              true,
	"Flood Warning":               true,
	"Tornado Warning":             true,
	"Tornado Watch":               true,
}

var thunderKeywords = []string{"thunderstorm", "t-storm", "tstorm", "thunder"}

// Config configures the client. UserAgent must carry contact information
// (an email address or URL) per NWS policy.
type Config struct {
	UserAgent     string
	Lat           float64
	Lon           float64
	Timeout       time.Duration
	ForecastHours int
}

// Client implements domain.Corroborator against api.weather.gov.
type Client struct {
	cfg        Config
	httpClient *http.Client
	baseURL    string
	clock      clockwork.Clock
	logger     *slog.Logger

	points  *pointsCache
	lookups singleflight.Group
	breaker circuitbreaker.CircuitBreaker[[]byte]
}

// NewClient creates an NWS client. It fails when the user agent carries no
// contact information.
func NewClient(cfg Config, clock clockwork.Clock, logger *slog.Logger) (*Client, error) {
	ua := cfg.UserAgent
	if ua == "" || !(strings.Contains(ua, "@") || strings.Contains(ua, "http")) {
		return nil, errors.New("nws: user agent must include contact info, e.g. 'LightningDetector/1.0 (contact@example.com)'")
	}
	if cfg.ForecastHours <= 0 {
		cfg.ForecastHours = 2
	}

	breaker := circuitbreaker.NewBuilder[[]byte]().
		WithFailureThreshold(3).
		WithDelay(time.Minute).
		OnStateChanged(func(e circuitbreaker.StateChangedEvent) {
			logger.Warn("nws circuit breaker state change", "from", e.OldState, "to", e.NewState)
		}).
		Build()

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    defaultBaseURL,
		clock:      clock,
		logger:     logger,
		points:     newPointsCache(8),
		breaker:    breaker,
	}, nil
}

// Corroborate checks whether storm conditions are plausible at the configured
// point. Active whitelisted alerts score 3, hourly forecast thunder within the
// look-ahead scores 1; either signal makes the result positive. A partial
// failure degrades to the signals that could be fetched; only when nothing
// could be fetched is an error returned.
func (c *Client) Corroborate(ctx context.Context) (domain.Corroboration, error) {
	now := c.clock.Now().UTC()
	result := domain.Corroboration{FetchedAt: now}

	pts, pointsErr := c.lookupPoints(ctx)
	features, alertsErr := c.activeAlerts(ctx)
	if pointsErr != nil && alertsErr != nil {
		return domain.Corroboration{}, fmt.Errorf("nws lookup: %w", errors.Join(pointsErr, alertsErr))
	}

	if alertsErr != nil {
		c.logger.Warn("nws alerts lookup failed", "error", alertsErr)
	} else if alerts := filterAlerts(features); len(alerts) > 0 {
		result.Alerts = alerts
		result.Score += alertScore
		result.Reasons = append(result.Reasons, fmt.Sprintf("Active NWS alerts found (%d).", len(alerts)))
	}

	switch {
	case pointsErr != nil:
		c.logger.Warn("nws points lookup failed", "error", pointsErr)
	case pts.ForecastHourly == "":
		result.Reasons = append(result.Reasons, "No forecastHourly URL available from /points response.")
	default:
		hits, err := c.scanHourlyForecast(ctx, pts.ForecastHourly, now)
		if err != nil {
			c.logger.Warn("nws forecast lookup failed", "error", err)
		} else if len(hits) > 0 {
			result.ForecastHits = hits
			result.Score += forecastScore
			result.Reasons = append(result.Reasons,
				fmt.Sprintf("Hourly forecast mentions thunder within %dh.", c.cfg.ForecastHours))
		}
	}

	result.StormPositive = len(result.Alerts) > 0 || len(result.ForecastHits) > 0
	if result.StormPositive {
		result.Reasons = append(result.Reasons, "NOAA storm plausibility: POSITIVE (storm conditions likely).")
	} else {
		result.Reasons = append(result.Reasons, "NOAA storm plausibility: NEGATIVE (no storm signals detected).")
	}
	return result, nil
}

func (c *Client) pointKey() string {
	return fmt.Sprintf("%.4f,%.4f", c.cfg.Lat, c.cfg.Lon)
}

// lookupPoints returns the cached /points metadata, collapsing concurrent
// misses into one request.
func (c *Client) lookupPoints(ctx context.Context) (points, error) {
	key := c.pointKey()
	if p, ok := c.points.get(key); ok {
		return p, nil
	}

	v, err, _ := c.lookups.Do(key, func() (any, error) {
		var resp pointsResponse
		if err := c.getJSON(ctx, c.baseURL+"/points/"+key, &resp); err != nil {
			return points{}, err
		}
		p := resp.Properties
		c.points.put(key, p)
		return p, nil
	})
	if err != nil {
		return points{}, err
	}
	return v.(points), nil
}

func (c *Client) activeAlerts(ctx context.Context) ([]alertFeature, error) {
	u := c.baseURL + "/alerts/active?" + url.Values{"point": {c.pointKey()}}.Encode()
	var resp alertsResponse
	if err := c.getJSON(ctx, u, &resp); err != nil {
		return nil, err
	}
	return resp.Features, nil
}

func filterAlerts(features []alertFeature) []domain.WeatherAlert {
	var out []domain.WeatherAlert
	for _, f := range features {
		p := f.Properties
		event := strings.TrimSpace(p.Event)
		if !alertWhitelist[event] {
			continue
		}
		out = append(out, domain.WeatherAlert{
			ID:        f.ID,
			Event:     event,
			Headline:  p.Headline,
			Severity:  p.Severity,
			Certainty: p.Certainty,
			Urgency:   p.Urgency,
			Effective: p.Effective,
			Expires:   p.Expires,
		})
	}
	return out
}

// scanHourlyForecast returns the forecast periods starting within the
// look-ahead window whose text mentions thunder. Periods are chronological,
// so the scan stops at the first one past the cutoff.
func (c *Client) scanHourlyForecast(ctx context.Context, forecastURL string, now time.Time) ([]domain.ForecastHit, error) {
	var resp forecastResponse
	if err := c.getJSON(ctx, forecastURL, &resp); err != nil {
		return nil, err
	}

	cutoff := now.Add(time.Duration(c.cfg.ForecastHours) * time.Hour)
	var hits []domain.ForecastHit
	for _, p := range resp.Properties.Periods {
		start, err := time.Parse(time.RFC3339, p.StartTime)
		if err != nil {
			continue
		}
		if start.After(cutoff) {
			break
		}

		short := strings.TrimSpace(p.ShortForecast)
		text := strings.ToLower(short + " " + strings.TrimSpace(p.DetailedForecast))
		if !mentionsThunder(text) {
			continue
		}
		hits = append(hits, domain.ForecastHit{
			StartTime:     p.StartTime,
			Temperature:   p.Temperature,
			WindSpeed:     p.WindSpeed,
			ShortForecast: short,
		})
	}
	return hits, nil
}

func mentionsThunder(text string) bool {
	for _, k := range thunderKeywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}

// getJSON fetches u through the circuit breaker and decodes the body into out.
func (c *Client) getJSON(ctx context.Context, u string, out any) error {
	body, err := failsafe.With[[]byte](c.breaker).WithContext(ctx).Get(func() ([]byte, error) {
		return c.fetch(ctx, u)
	})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) fetch(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "application/geo+json, application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("nws request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("nws API error: status %d: %s", resp.StatusCode, body)
	}
	return body, nil
}

// NWS API response types.

type points struct {
	ForecastHourly string `json:"forecastHourly"`
	GridID         string `json:"gridId"`
}

type pointsResponse struct {
	Properties points `json:"properties"`
}

type alertsResponse struct {
	Features []alertFeature `json:"features"`
}

type alertFeature struct {
	ID         string `json:"id"`
	Properties struct {
		Event     string `json:"event"`
		Headline  string `json:"headline"`
		Severity  string `json:"severity"`
		Certainty string `json:"certainty"`
		Urgency   string `json:"urgency"`
		Effective string `json:"effective"`
		Expires   string `json:"expires"`
	} `json:"properties"`
}

type forecastResponse struct {
	Properties struct {
		Periods []forecastPeriod `json:"periods"`
	} `json:"properties"`
}

type forecastPeriod struct {
	StartTime        string  `json:"startTime"`
	Temperature      float64 `json:"temperature"`
	WindSpeed        string  `json:"windSpeed"`
	ShortForecast    string  `json:"shortForecast"`
	DetailedForecast string  `json:"detailedForecast"`
}
