package throttle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)

func TestCanPublish_FirstCallAllowed(t *testing.T) {
	th := New(5*time.Minute, 20)

	ok, denial := th.CanPublish(t0)
	assert.True(t, ok)
	assert.Nil(t, denial)
	assert.Equal(t, 1, th.Len())
}

func TestCanPublish_MinInterval(t *testing.T) {
	th := New(5*time.Minute, 20)
	ok, _ := th.CanPublish(t0)
	require.True(t, ok)

	ok, denial := th.CanPublish(t0.Add(2 * time.Minute))
	assert.False(t, ok)
	require.NotNil(t, denial)
	assert.Equal(t, KindMinInterval, denial.Kind)
	assert.Equal(t, 3*time.Minute, denial.Wait)
	assert.Contains(t, denial.Error(), "120s ago")
	assert.Contains(t, denial.Error(), "~180s")
	assert.Equal(t, 1, th.Len(), "denied calls are not recorded")

	ok, _ = th.CanPublish(t0.Add(5 * time.Minute))
	assert.True(t, ok)
}

func TestCanPublish_HourlyCap(t *testing.T) {
	th := New(time.Minute, 3)
	for i := 0; i < 3; i++ {
		ok, _ := th.CanPublish(t0.Add(time.Duration(i) * 10 * time.Minute))
		require.True(t, ok)
	}

	ok, denial := th.CanPublish(t0.Add(40 * time.Minute))
	assert.False(t, ok)
	require.NotNil(t, denial)
	assert.Equal(t, KindHourlyCap, denial.Kind)
	assert.Contains(t, denial.Error(), "reached 3 posts")

	// Once the first publish is older than an hour, it is trimmed.
	ok, _ = th.CanPublish(t0.Add(time.Hour + time.Second))
	assert.True(t, ok)
	assert.Equal(t, 3, th.Len())
}

func TestCanPublish_ClockBackwardsIsClamped(t *testing.T) {
	th := New(5*time.Minute, 20)
	ok, _ := th.CanPublish(t0)
	require.True(t, ok)

	ok, denial := th.CanPublish(t0.Add(-time.Minute))
	assert.False(t, ok)
	require.NotNil(t, denial)
	assert.Equal(t, 5*time.Minute, denial.Wait)
	assert.Equal(t, time.Duration(0), denial.SinceLast)
}

func TestCanPublish_ZeroCapDeniesEverything(t *testing.T) {
	th := New(0, 0)
	ok, denial := th.CanPublish(t0)
	assert.False(t, ok)
	require.NotNil(t, denial)
	assert.Equal(t, KindHourlyCap, denial.Kind)
}
