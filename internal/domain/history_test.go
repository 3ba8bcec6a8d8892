package domain

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)

func strikeAt(sec int) Strike {
	return Strike{OccurredAt: base.Add(time.Duration(sec) * time.Second), DistanceKM: 10, Energy: uint32(sec)}
}

func TestHistory_Empty(t *testing.T) {
	h := NewHistory(5)
	assert.Equal(t, 0, h.Len())
	assert.Equal(t, 5, h.Cap())
	assert.Empty(t, h.all())
	assert.Empty(t, h.Since(base, time.Hour))
	assert.Empty(t, h.Slice(base, base.Add(time.Hour)))
}

func TestHistory_MinimumCapacity(t *testing.T) {
	h := NewHistory(0)
	h.Record(strikeAt(1))
	h.Record(strikeAt(2))
	assert.Equal(t, 1, h.Cap())
	assert.Equal(t, []Strike{strikeAt(2)}, h.all())
}

func TestHistory_EvictsOldest(t *testing.T) {
	h := NewHistory(3)
	for i := 1; i <= 5; i++ {
		h.Record(strikeAt(i))
	}

	assert.Equal(t, 3, h.Len())
	assert.Equal(t, []Strike{strikeAt(3), strikeAt(4), strikeAt(5)}, h.all())
}

func TestHistory_Since(t *testing.T) {
	h := NewHistory(10)
	for _, sec := range []int{0, 100, 400, 600} {
		h.Record(strikeAt(sec))
	}

	now := base.Add(700 * time.Second)
	got := h.Since(now, 600*time.Second)
	assert.Equal(t, []Strike{strikeAt(100), strikeAt(400), strikeAt(600)}, got, "cutoff is inclusive")
}

func TestHistory_SliceInclusive(t *testing.T) {
	h := NewHistory(10)
	for _, sec := range []int{0, 60, 120, 180} {
		h.Record(strikeAt(sec))
	}

	got := h.Slice(base.Add(60*time.Second), base.Add(120*time.Second))
	assert.Equal(t, []Strike{strikeAt(60), strikeAt(120)}, got)
}

func TestHistory_ConcurrentRecord(t *testing.T) {
	h := NewHistory(DefaultHistoryCapacity)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				h.Record(strikeAt(i))
				_ = h.Since(base, time.Hour)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 800, h.Len())
}
