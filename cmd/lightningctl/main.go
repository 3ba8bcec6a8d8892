// Command lightningctl inspects and manipulates lightning node state offline:
// the persisted gate memory, dry gate decisions, storm summaries rebuilt
// from telemetry files, and synthetic strike fixtures.
//
// Usage:
//
//	lightningctl state show --state state/posting_state.json
//	lightningctl decide --key lightning --at 2025-06-01T12:00:00Z
//	lightningctl summarize --file lightning_telemetry.jsonl
//	lightningctl mock --count 40 --out testdata/storm.jsonl
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
