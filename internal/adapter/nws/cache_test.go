package nws

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPointsCache_BasicGetPut(t *testing.T) {
	c := newPointsCache(3)

	c.put("a", points{GridID: "A"})
	c.put("b", points{GridID: "B"})

	v, ok := c.get("a")
	require.True(t, ok)
	assert.Equal(t, "A", v.GridID)

	_, ok = c.get("missing")
	assert.False(t, ok)
}

func TestPointsCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := newPointsCache(2)

	c.put("a", points{GridID: "A"})
	c.put("b", points{GridID: "B"})
	_, _ = c.get("a") // a is now most recent
	c.put("c", points{GridID: "C"})

	_, ok := c.get("b")
	assert.False(t, ok, "b should be evicted")
	_, ok = c.get("a")
	assert.True(t, ok)
	_, ok = c.get("c")
	assert.True(t, ok)
	assert.Equal(t, 2, c.len())
}

func TestPointsCache_UpdateExisting(t *testing.T) {
	c := newPointsCache(2)

	c.put("a", points{GridID: "A"})
	c.put("a", points{GridID: "A2"})

	v, ok := c.get("a")
	require.True(t, ok)
	assert.Equal(t, "A2", v.GridID)
	assert.Equal(t, 1, c.len())
}

func TestPointsCache_MinimumCapacity(t *testing.T) {
	c := newPointsCache(0)
	c.put("a", points{})
	c.put("b", points{})
	assert.Equal(t, 1, c.len())
}
