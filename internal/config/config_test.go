package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	defaultBroker   = "localhost:9092"
	testHandle      = "node.example.social"
	testAppPassword = "abcd-efgh-ijkl-mnop"
)

// withCredentials sets the minimum environment for a non-dry-run Load.
func withCredentials(t *testing.T) {
	t.Helper()
	t.Setenv("BLUESKY_HANDLE", testHandle)
	t.Setenv("BLUESKY_APP_PASSWORD", testAppPassword)
}

func TestLoad_Defaults(t *testing.T) {
	withCredentials(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)

	assert.Equal(t, "PASS-LN-01", cfg.NodeID)
	assert.Equal(t, "Greater Harmony Hills", cfg.NodeRegion)
	assert.Equal(t, "Atmospheric Telemetry", cfg.NodeChannel)

	assert.Equal(t, "state/posting_state.json", cfg.StatePath)
	assert.Equal(t, 15*time.Minute, cfg.StartupGrace)
	assert.Equal(t, 1, cfg.MaxPer15m)
	assert.Equal(t, 3, cfg.MaxPerHour)
	assert.Equal(t, 10, cfg.MaxPerDay)
	assert.Equal(t, 20*time.Minute, cfg.DedupeWindow)
	assert.False(t, cfg.DryRun)

	assert.Equal(t, 5*time.Minute, cfg.PublishMinInterval)
	assert.Equal(t, 20, cfg.PublishMaxPerHour)
	assert.Equal(t, 4, cfg.PublishWorkers)
	assert.Equal(t, 30*time.Second, cfg.PublishTimeout)

	assert.Equal(t, 3, cfg.StormMinStrikes)
	assert.Equal(t, 10*time.Minute, cfg.StormWindow)
	assert.Equal(t, 20*time.Minute, cfg.StormGapToEnd)
	assert.Equal(t, time.Hour, cfg.SummaryDelay)
	assert.Equal(t, 5*time.Minute, cfg.SummaryBin)
	assert.Equal(t, 2000, cfg.HistoryCapacity)
	assert.Equal(t, 10*time.Second, cfg.TickInterval)

	assert.Equal(t, "https://bsky.social", cfg.BlueskyPDSURL)
	assert.False(t, cfg.NWSEnabled)
	assert.Equal(t, 8*time.Second, cfg.NWSTimeout)
	assert.Equal(t, 2, cfg.NWSForecastHours)

	assert.False(t, cfg.KafkaEnabled)
	assert.Equal(t, []string{defaultBroker}, cfg.KafkaBrokers)
	assert.Equal(t, "lightning-strikes", cfg.KafkaStrikeTopic)
	assert.Equal(t, "storm-lightning", cfg.KafkaGroupID)
	assert.Equal(t, "lightning-telemetry", cfg.KafkaTelemetryTopic)
	assert.Equal(t, TelemetryFile, cfg.TelemetrySink)
	assert.Equal(t, "lightning_telemetry.jsonl", cfg.TelemetryFile)
}

func TestLoad_CustomEnv(t *testing.T) {
	withCredentials(t)
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")
	t.Setenv("NODE_ID", "LN-TEST")
	t.Setenv("STARTUP_GRACE", "0s")
	t.Setenv("MAX_POSTS_PER_15M", "2")
	t.Setenv("MAX_POSTS_PER_HOUR", "6")
	t.Setenv("MAX_POSTS_PER_DAY", "24")
	t.Setenv("DEDUPE_WINDOW", "30m")
	t.Setenv("PUBLISH_WORKERS", "8")
	t.Setenv("STORM_MIN_STRIKES", "5")
	t.Setenv("SUMMARY_DELAY", "90m")
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", "broker1:9092,broker2:9092")
	t.Setenv("TELEMETRY_SINK", "Kafka")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "LN-TEST", cfg.NodeID)
	assert.Zero(t, cfg.StartupGrace)
	assert.Equal(t, 2, cfg.MaxPer15m)
	assert.Equal(t, 6, cfg.MaxPerHour)
	assert.Equal(t, 24, cfg.MaxPerDay)
	assert.Equal(t, 30*time.Minute, cfg.DedupeWindow)
	assert.Equal(t, 8, cfg.PublishWorkers)
	assert.Equal(t, 5, cfg.StormMinStrikes)
	assert.Equal(t, 90*time.Minute, cfg.SummaryDelay)
	assert.True(t, cfg.KafkaEnabled)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, TelemetryKafka, cfg.TelemetrySink)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"SHUTDOWN_TIMEOUT", "not-a-duration"},
		{"SHUTDOWN_TIMEOUT", "-1s"},
		{"STARTUP_GRACE", "soon"},
		{"DEDUPE_WINDOW", "-5m"},
		{"MAX_POSTS_PER_HOUR", "many"},
		{"MAX_POSTS_PER_DAY", "-1"},
		{"PUBLISH_WORKERS", "0"},
		{"PUBLISH_TIMEOUT", "0s"},
		{"STORM_MIN_STRIKES", "0"},
		{"TICK_INTERVAL", "0s"},
		{"HISTORY_CAPACITY", "0"},
		{"DRY_RUN", "maybe"},
		{"TELEMETRY_SINK", "syslog"},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			withCredentials(t)
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func TestLoad_MissingCredentials(t *testing.T) {
	t.Setenv("BLUESKY_HANDLE", "")
	t.Setenv("BLUESKY_APP_PASSWORD", "")
	t.Setenv("BLUESKY_CREDENTIALS_FILE", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BLUESKY_HANDLE")
}

func TestLoad_DryRunWithoutCredentials(t *testing.T) {
	t.Setenv("BLUESKY_HANDLE", "")
	t.Setenv("BLUESKY_APP_PASSWORD", "")
	t.Setenv("DRY_RUN", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.DryRun)
}

func TestLoad_CredentialsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[bluesky]
handle = "file.example.social"
app_password = "from-file"
`), 0o600))

	t.Setenv("BLUESKY_HANDLE", "")
	t.Setenv("BLUESKY_APP_PASSWORD", "")
	t.Setenv("BLUESKY_CREDENTIALS_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "file.example.social", cfg.BlueskyHandle)
	assert.Equal(t, "from-file", cfg.BlueskyAppPassword)
}

func TestLoad_EnvOverridesCredentialsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.toml")
	require.NoError(t, os.WriteFile(path, []byte("[bluesky]\nhandle = \"file.example.social\"\napp_password = \"from-file\"\n"), 0o600))

	withCredentials(t)
	t.Setenv("BLUESKY_CREDENTIALS_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, testHandle, cfg.BlueskyHandle)
	assert.Equal(t, testAppPassword, cfg.BlueskyAppPassword)
}

func TestLoad_BadCredentialsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.toml")
	require.NoError(t, os.WriteFile(path, []byte("[bluesky\nhandle = "), 0o600))
	t.Setenv("BLUESKY_CREDENTIALS_FILE", path)

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "credentials file")
}

func TestLoad_NWSValidation(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "missing contact",
			env:     map[string]string{"NWS_USER_AGENT": "lightning-node", "NWS_LAT": "45.5", "NWS_LON": "-73.6"},
			wantErr: "NWS_USER_AGENT",
		},
		{
			name:    "missing coordinates",
			env:     map[string]string{"NWS_USER_AGENT": "lightning-node (ops@example.com)"},
			wantErr: "NWS_LAT",
		},
		{
			name:    "out of range",
			env:     map[string]string{"NWS_USER_AGENT": "https://example.com", "NWS_LAT": "95", "NWS_LON": "-73.6"},
			wantErr: "out of range",
		},
		{
			name: "valid",
			env:  map[string]string{"NWS_USER_AGENT": "lightning-node (ops@example.com)", "NWS_LAT": "45.5", "NWS_LON": "-73.6"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withCredentials(t)
			t.Setenv("NWS_ENABLED", "true")
			t.Setenv("NWS_LAT", "")
			t.Setenv("NWS_LON", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := Load()
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, 45.5, cfg.NWSLat, 1e-9)
			assert.InDelta(t, -73.6, cfg.NWSLon, 1e-9)
		})
	}
}
