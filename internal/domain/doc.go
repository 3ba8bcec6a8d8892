// Package domain models lightning detections reported by an AS3935 sensor and
// the storm sessions derived from them.
//
// # Data Source
//
// Detections originate from an AS3935 Franklin lightning sensor read over I2C
// by a separate sensor daemon. On every "lightning" interrupt (interrupt
// source 0x08) the daemon reads the distance and energy registers and forwards
// one Strike to this service, either as JSON over HTTP or as a Kafka message.
// Noise (0x01) and disturber (0x04) interrupts are handled entirely by the
// daemon and never reach this package.
//
// # Sensor Conventions
//
// Distance:
//
//	Estimated distance to the storm front in kilometres, 6 bits (1..63).
//	A value of 1 means "storm overhead", 0x3F means "out of range".
//	Miles are derived as km * 0.621371 for display only; km is canonical.
//
// Energy:
//
//	20-bit dimensionless value: E3[4:0] << 16 | E2 << 8 | E1. It has no
//	physical unit and is only meaningful relative to other strikes from the
//	same sensor.
//
// # Storm Sessions
//
// A storm session starts when [History] holds at least a minimum number of
// strikes inside a trailing window and ends after a sustained quiet gap. The
// session start is the earliest strike inside the window that triggered it,
// not the strike that tipped the count. Summaries are built from the strikes
// recorded between session start and end by [BuildSummary].
package domain
