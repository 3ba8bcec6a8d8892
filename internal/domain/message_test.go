package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatusIcon(t *testing.T) {
	assert.Equal(t, StatusStorm, StatusIcon(true, 0))
	assert.Equal(t, StatusStorm, StatusIcon(true, 5))
	assert.Equal(t, StatusMonitoring, StatusIcon(false, 1))
	assert.Equal(t, StatusIdle, StatusIcon(false, 0))
}

func TestFormatStrikeMessage(t *testing.T) {
	msg := FormatStrikeMessage(StatusMonitoring, Strike{DistanceKM: 14, Energy: 52311})

	assert.Equal(t,
		"🟡 Lightning detected! Energy: 52311 — distance: 14 km (8.7 mi) "+
			"| Éclair détecté ! Puissance : 52311 — distance : 14 km (8.7 mi)",
		msg)
}

func TestTimestamped(t *testing.T) {
	now := time.Date(2025, time.June, 1, 9, 5, 7, 0, time.UTC)
	assert.Equal(t, "2025-06-01 09:05:07 — hello", Timestamped(now, "hello"))
}
