package main

import (
	"fmt"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "lightningctl",
		Short:         "Operator tool for the lightning notification service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("state", sharedcfg.EnvOrDefault("STATE_PATH", "state/posting_state.json"), "path to the gate state file")

	root.AddCommand(newStateCmd())
	root.AddCommand(newDecideCmd())
	root.AddCommand(newSummarizeCmd())
	root.AddCommand(newMockCmd())

	return root
}

// parseTimeFlag parses an RFC 3339 flag value, returning def when empty.
func parseTimeFlag(name, value string, def time.Time) (time.Time, error) {
	if value == "" {
		return def, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --%s: %w", name, err)
	}
	return t.UTC(), nil
}
