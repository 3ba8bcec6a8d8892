package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/storm-lightning-service/internal/gate"
)

func newStateCmd() *cobra.Command {
	state := &cobra.Command{
		Use:   "state",
		Short: "Inspect or reset the persisted gate state",
	}
	state.AddCommand(newStateShowCmd())
	state.AddCommand(newStateResetCmd())
	return state
}

func newStateShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the gate state and trailing post counts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			g, path, err := openGate(cmd, gate.Config{})
			if err != nil {
				return err
			}
			last15m, lastHour, lastDay := g.Counts(time.Now())

			out := struct {
				Path    string     `json:"path"`
				State   gate.State `json:"state"`
				Last15m int        `json:"posts_15m"`
				Hour    int        `json:"posts_hour"`
				Day     int        `json:"posts_day"`
			}{path, g.Snapshot(), last15m, lastHour, lastDay}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
}

func newStateResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Clear all posting memory",
		RunE: func(cmd *cobra.Command, _ []string) error {
			g, path, err := openGate(cmd, gate.Config{})
			if err != nil {
				return err
			}
			if err := g.Reset(); err != nil {
				return fmt.Errorf("reset state: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "state reset: %s\n", path)
			return nil
		},
	}
}

// openGate loads the gate from the --state file. Corrupt files are reported
// on stderr and treated as empty, the same as the service does.
func openGate(cmd *cobra.Command, cfg gate.Config) (*gate.Gate, string, error) {
	path, err := cmd.Flags().GetString("state")
	if err != nil {
		return nil, "", err
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), nil))
	store := gate.NewFileStore(path)
	return gate.New(cfg, store, time.Unix(0, 0), logger), store.Path(), nil
}
