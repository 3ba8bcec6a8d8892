package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Telemetry sink kinds.
const (
	TelemetryFile  = "file"
	TelemetryKafka = "kafka"
	TelemetryNone  = "none"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Node identity.
	NodeID      string
	NodeRegion  string
	NodeChannel string

	// Notification gate.
	StatePath    string
	StartupGrace time.Duration
	MaxPer15m    int
	MaxPerHour   int
	MaxPerDay    int
	DedupeWindow time.Duration
	DryRun       bool

	// Outbound throttle and dispatcher.
	PublishMinInterval time.Duration
	PublishMaxPerHour  int
	PublishWorkers     int
	PublishTimeout     time.Duration

	// Storm sessions.
	StormMinStrikes int
	StormWindow     time.Duration
	StormGapToEnd   time.Duration
	SummaryDelay    time.Duration
	SummaryBin      time.Duration
	HistoryCapacity int
	TickInterval    time.Duration

	// Bluesky publishing.
	BlueskyHandle      string
	BlueskyAppPassword string
	BlueskyPDSURL      string

	// NWS corroboration.
	NWSEnabled       bool
	NWSUserAgent     string
	NWSLat           float64
	NWSLon           float64
	NWSTimeout       time.Duration
	NWSForecastHours int

	// Kafka strike source and telemetry.
	KafkaEnabled        bool
	KafkaBrokers        []string
	KafkaStrikeTopic    string
	KafkaGroupID        string
	KafkaTelemetryTopic string

	TelemetrySink string
	TelemetryFile string
}

// credentialsFile is the layout of BLUESKY_CREDENTIALS_FILE.
type credentialsFile struct {
	Bluesky struct {
		Handle      string `toml:"handle"`
		AppPassword string `toml:"app_password"`
	} `toml:"bluesky"`
}

// envParser collects the first parse error so Load reads top to bottom.
type envParser struct {
	err error
}

func (p *envParser) duration(key, def string) time.Duration {
	s := sharedcfg.EnvOrDefault(key, def)
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		p.fail(fmt.Errorf("invalid %s: must be a non-negative duration", key))
		return 0
	}
	return d
}

func (p *envParser) positiveDuration(key, def string) time.Duration {
	d := p.duration(key, def)
	if d == 0 && p.err == nil {
		p.fail(fmt.Errorf("invalid %s: must be a positive duration", key))
	}
	return d
}

func (p *envParser) integer(key string, def, lo int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < lo {
		p.fail(fmt.Errorf("invalid %s: must be an integer >= %d", key, lo))
		return 0
	}
	return n
}

func (p *envParser) float(key string) float64 {
	s := os.Getenv(key)
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		p.fail(fmt.Errorf("invalid %s: must be a number", key))
		return 0
	}
	return v
}

func (p *envParser) boolean(key string) bool {
	s := os.Getenv(key)
	if s == "" {
		return false
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		p.fail(fmt.Errorf("invalid %s: must be a boolean", key))
		return false
	}
	return v
}

func (p *envParser) fail(err error) {
	if p.err == nil {
		p.err = err
	}
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	var p envParser
	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		NodeID:      sharedcfg.EnvOrDefault("NODE_ID", "PASS-LN-01"),
		NodeRegion:  sharedcfg.EnvOrDefault("NODE_REGION", "Greater Harmony Hills"),
		NodeChannel: sharedcfg.EnvOrDefault("NODE_CHANNEL", "Atmospheric Telemetry"),

		StatePath:    sharedcfg.EnvOrDefault("STATE_PATH", "state/posting_state.json"),
		StartupGrace: p.duration("STARTUP_GRACE", "15m"),
		MaxPer15m:    p.integer("MAX_POSTS_PER_15M", 1, 0),
		MaxPerHour:   p.integer("MAX_POSTS_PER_HOUR", 3, 0),
		MaxPerDay:    p.integer("MAX_POSTS_PER_DAY", 10, 0),
		DedupeWindow: p.duration("DEDUPE_WINDOW", "20m"),
		DryRun:       p.boolean("DRY_RUN"),

		PublishMinInterval: p.duration("PUBLISH_MIN_INTERVAL", "5m"),
		PublishMaxPerHour:  p.integer("PUBLISH_MAX_PER_HOUR", 20, 0),
		PublishWorkers:     p.integer("PUBLISH_WORKERS", 4, 1),
		PublishTimeout:     p.positiveDuration("PUBLISH_TIMEOUT", "30s"),

		StormMinStrikes: p.integer("STORM_MIN_STRIKES", 3, 1),
		StormWindow:     p.positiveDuration("STORM_WINDOW", "10m"),
		StormGapToEnd:   p.positiveDuration("STORM_GAP_TO_END", "20m"),
		SummaryDelay:    p.duration("SUMMARY_DELAY", "1h"),
		SummaryBin:      p.positiveDuration("SUMMARY_BIN", "5m"),
		HistoryCapacity: p.integer("HISTORY_CAPACITY", 2000, 1),
		TickInterval:    p.positiveDuration("TICK_INTERVAL", "10s"),

		BlueskyHandle:      os.Getenv("BLUESKY_HANDLE"),
		BlueskyAppPassword: os.Getenv("BLUESKY_APP_PASSWORD"),
		BlueskyPDSURL:      sharedcfg.EnvOrDefault("BLUESKY_PDS_URL", "https://bsky.social"),

		NWSEnabled:       p.boolean("NWS_ENABLED"),
		NWSUserAgent:     os.Getenv("NWS_USER_AGENT"),
		NWSLat:           p.float("NWS_LAT"),
		NWSLon:           p.float("NWS_LON"),
		NWSTimeout:       p.positiveDuration("NWS_TIMEOUT", "8s"),
		NWSForecastHours: p.integer("NWS_FORECAST_HOURS", 2, 1),

		KafkaEnabled:        p.boolean("KAFKA_ENABLED"),
		KafkaBrokers:        sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaStrikeTopic:    sharedcfg.EnvOrDefault("KAFKA_STRIKE_TOPIC", "lightning-strikes"),
		KafkaGroupID:        sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "storm-lightning"),
		KafkaTelemetryTopic: sharedcfg.EnvOrDefault("KAFKA_TELEMETRY_TOPIC", "lightning-telemetry"),

		TelemetrySink: strings.ToLower(sharedcfg.EnvOrDefault("TELEMETRY_SINK", TelemetryFile)),
		TelemetryFile: sharedcfg.EnvOrDefault("TELEMETRY_FILE", "lightning_telemetry.jsonl"),
	}
	if p.err != nil {
		return nil, p.err
	}

	if path := os.Getenv("BLUESKY_CREDENTIALS_FILE"); path != "" {
		if err := cfg.loadCredentialsFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadCredentialsFile fills Bluesky credentials from a TOML file. Values
// already set through the environment take precedence.
func (c *Config) loadCredentialsFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read credentials file: %w", err)
	}

	var cf credentialsFile
	if _, err := toml.Decode(string(data), &cf); err != nil {
		return fmt.Errorf("parse credentials file %s: %w", path, err)
	}

	if c.BlueskyHandle == "" {
		c.BlueskyHandle = strings.TrimSpace(cf.Bluesky.Handle)
	}
	if c.BlueskyAppPassword == "" {
		c.BlueskyAppPassword = strings.TrimSpace(cf.Bluesky.AppPassword)
	}
	return nil
}

func (c *Config) validate() error {
	if !c.DryRun && (c.BlueskyHandle == "" || c.BlueskyAppPassword == "") {
		return errors.New("BLUESKY_HANDLE and BLUESKY_APP_PASSWORD are required unless DRY_RUN is set")
	}

	if c.NWSEnabled {
		ua := c.NWSUserAgent
		if ua == "" || !(strings.Contains(ua, "@") || strings.Contains(ua, "http")) {
			return errors.New("NWS_ENABLED is true but NWS_USER_AGENT does not include contact info (email or URL)")
		}
		if os.Getenv("NWS_LAT") == "" || os.Getenv("NWS_LON") == "" {
			return errors.New("NWS_ENABLED is true but NWS_LAT and NWS_LON are not set")
		}
		if c.NWSLat < -90 || c.NWSLat > 90 || c.NWSLon < -180 || c.NWSLon > 180 {
			return errors.New("NWS_LAT/NWS_LON out of range")
		}
	}

	switch c.TelemetrySink {
	case TelemetryFile, TelemetryNone:
	case TelemetryKafka:
		if c.KafkaTelemetryTopic == "" {
			return errors.New("KAFKA_TELEMETRY_TOPIC is required when TELEMETRY_SINK is kafka")
		}
	default:
		return fmt.Errorf("invalid TELEMETRY_SINK %q: must be file, kafka or none", c.TelemetrySink)
	}

	if (c.KafkaEnabled || c.TelemetrySink == TelemetryKafka) && len(c.KafkaBrokers) == 0 {
		return errors.New("KAFKA_BROKERS is required")
	}
	if c.KafkaEnabled && c.KafkaStrikeTopic == "" {
		return errors.New("KAFKA_STRIKE_TOPIC is required")
	}
	return nil
}
