package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/storm-lightning-service/internal/gate"
)

var t0 = time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// seedState writes a state with one "lightning" post a minute before t0.
func seedState(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "posting_state.json")
	posted := t0.Add(-time.Minute).Unix()
	require.NoError(t, gate.NewFileStore(path).Save(gate.State{
		PostTimestamps: []int64{posted},
		LastPostByKey:  map[string]int64{"lightning": posted},
		LastPostAt:     posted,
	}))
	return path
}

func TestStateShow(t *testing.T) {
	path := seedState(t)

	out, err := execute(t, "state", "show", "--state", path)
	require.NoError(t, err)

	var got struct {
		Path  string     `json:"path"`
		State gate.State `json:"state"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, path, got.Path)
	want := gate.State{
		PostTimestamps: []int64{t0.Add(-time.Minute).Unix()},
		LastPostByKey:  map[string]int64{"lightning": t0.Add(-time.Minute).Unix()},
		LastPostAt:     t0.Add(-time.Minute).Unix(),
	}
	if diff := cmp.Diff(want, got.State); diff != "" {
		t.Errorf("state mismatch (-want +got):\n%s", diff)
	}
}

func TestStateShow_MissingFile(t *testing.T) {
	out, err := execute(t, "state", "show", "--state", filepath.Join(t.TempDir(), "none.json"))
	require.NoError(t, err)
	assert.Contains(t, out, `"posts_15m": 0`)
}

func TestStateReset(t *testing.T) {
	path := seedState(t)

	out, err := execute(t, "state", "reset", "--state", path)
	require.NoError(t, err)
	assert.Contains(t, out, "state reset")

	st, err := gate.NewFileStore(path).Load()
	require.NoError(t, err)
	assert.Empty(t, st.PostTimestamps)
	assert.Empty(t, st.LastPostByKey)
	assert.Zero(t, st.LastPostAt)
}

func TestDecide(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{
			name: "dedupe",
			args: []string{"--at", t0.Format(time.RFC3339)},
			want: "allow=false reason=dedupe_window retry_after=19m0s",
		},
		{
			name: "other key hits 15m cap",
			args: []string{"--key", "other", "--at", t0.Format(time.RFC3339)},
			want: "allow=false reason=rate_limit_15m retry_after=14m0s",
		},
		{
			name: "after dedupe window",
			args: []string{"--at", t0.Add(21 * time.Minute).Format(time.RFC3339)},
			want: "allow=true reason=ok retry_after=0s",
		},
		{
			name: "relaxed caps",
			args: []string{"--key", "other", "--max-15m", "5", "--at", t0.Format(time.RFC3339)},
			want: "allow=true reason=ok retry_after=0s",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := seedState(t)
			out, err := execute(t, append([]string{"decide", "--state", path}, tt.args...)...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, strings.TrimSpace(out))

			st, err := gate.NewFileStore(path).Load()
			require.NoError(t, err)
			assert.Len(t, st.PostTimestamps, 1, "decide must not record")
		})
	}
}

func TestDecide_BadTime(t *testing.T) {
	_, err := execute(t, "decide", "--state", filepath.Join(t.TempDir(), "s.json"), "--at", "yesterday")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid --at")
}

func TestMockThenSummarize(t *testing.T) {
	file := filepath.Join(t.TempDir(), "storm.jsonl")

	out, err := execute(t, "mock", "--out", file, "--count", "3", "--interval", "1m", "--jitter", "0")
	require.NoError(t, err)
	assert.Contains(t, out, "wrote 3 strikes")

	out, err = execute(t, "summarize", "--file", file, "--node-id", "N1", "--region", "QC")
	require.NoError(t, err)
	assert.Contains(t, out, "⚡ N1 · QC")
	assert.Contains(t, out, "- Duration: 2 minutes")
	assert.Contains(t, out, "- Total lightning strikes: 3")
	assert.Contains(t, out, "- Peak: 3 strikes / 5 min")
	assert.Contains(t, out, "0-5m  3")
}

func TestMock_Overwrites(t *testing.T) {
	file := filepath.Join(t.TempDir(), "storm.jsonl")
	for range 2 {
		_, err := execute(t, "mock", "--out", file, "--count", "4", "--jitter", "0")
		require.NoError(t, err)
	}

	out, err := execute(t, "summarize", "--file", file)
	require.NoError(t, err)
	assert.Contains(t, out, "- Total lightning strikes: 4")
}

func TestSummarize_Window(t *testing.T) {
	file := filepath.Join(t.TempDir(), "storm.jsonl")
	_, err := execute(t, "mock", "--out", file, "--count", "3", "--interval", "1m", "--jitter", "0")
	require.NoError(t, err)

	out, err := execute(t, "summarize", "--file", file,
		"--start", t0.Add(30*time.Second).Format(time.RFC3339),
		"--end", t0.Add(10*time.Minute).Format(time.RFC3339))
	require.NoError(t, err)
	assert.Contains(t, out, "- Total lightning strikes: 2")
	assert.Contains(t, out, "5-10m  0")
}

func TestSummarize_Errors(t *testing.T) {
	file := filepath.Join(t.TempDir(), "storm.jsonl")
	_, err := execute(t, "mock", "--out", file, "--count", "2", "--jitter", "0")
	require.NoError(t, err)

	_, err = execute(t, "summarize", "--file", file,
		"--start", t0.Add(time.Hour).Format(time.RFC3339),
		"--end", t0.Format(time.RFC3339))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "before --start")

	_, err = execute(t, "summarize", "--file", filepath.Join(t.TempDir(), "missing.jsonl"))
	require.Error(t, err)
}

func TestMockStrikes_Deterministic(t *testing.T) {
	a := mockStrikes(t0, 25, 30*time.Second, 15*time.Second, 7)
	b := mockStrikes(t0, 25, 30*time.Second, 15*time.Second, 7)
	if diff := cmp.Diff(a, b); diff != "" {
		t.Fatalf("same seed produced different strikes:\n%s", diff)
	}

	for i, s := range a {
		assert.LessOrEqual(t, s.Energy, uint32(maxEnergy))
		assert.Positive(t, s.DistanceKM)
		if i > 0 {
			assert.True(t, s.OccurredAt.After(a[i-1].OccurredAt))
		}
	}
	assert.Less(t, a[12].DistanceKM, a[0].DistanceKM, "storm approaches toward the midpoint")
}
