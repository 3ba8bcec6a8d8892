package domain

import (
	"fmt"
	"math"
	"time"
)

// Status icons prefixed to notification lines.
const (
	StatusIdle       = "🟢"
	StatusMonitoring = "🟡"
	StatusStorm      = "🔴"
)

// StatusIcon picks the icon for the current storm state: storm while a
// session is active, monitoring when recent strikes exist without a session.
func StatusIcon(stormActive bool, recentStrikes int) string {
	switch {
	case stormActive:
		return StatusStorm
	case recentStrikes > 0:
		return StatusMonitoring
	default:
		return StatusIdle
	}
}

// FormatStrikeMessage renders the bilingual (EN/FR) per-strike notification.
func FormatStrikeMessage(icon string, s Strike) string {
	km := round1(s.DistanceKM)
	mi := round1(s.DistanceMI())
	return fmt.Sprintf(
		"%s Lightning detected! Energy: %d — distance: %g km (%g mi) "+
			"| Éclair détecté ! Puissance : %d — distance : %g km (%g mi)",
		icon, s.Energy, km, mi, s.Energy, km, mi,
	)
}

// Timestamped prefixes a message with a local wall-clock timestamp.
func Timestamped(now time.Time, msg string) string {
	return now.Format("2006-01-02 15:04:05") + " — " + msg
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
