package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/storm-lightning-service/internal/gate"
)

func newDecideCmd() *cobra.Command {
	def := gate.DefaultConfig()
	var (
		key    string
		at     string
		dedupe time.Duration
		max15m int
		maxHr  int
		maxDay int
	)

	cmd := &cobra.Command{
		Use:   "decide",
		Short: "Evaluate the gate against the state file without recording a post",
		Long: `Evaluate whether a notification would be allowed right now (or at --at)
given the persisted posting history. The startup grace period is not applied
and the state file is never written.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			now, err := parseTimeFlag("at", at, time.Now().UTC())
			if err != nil {
				return err
			}
			g, _, err := openGate(cmd, gate.Config{
				DedupeWindow: dedupe,
				MaxPer15m:    max15m,
				MaxPerHour:   maxHr,
				MaxPerDay:    maxDay,
			})
			if err != nil {
				return err
			}

			d := g.ShouldPost(gate.Event{DedupeKey: key}, now)
			fmt.Fprintf(cmd.OutOrStdout(), "allow=%t reason=%s retry_after=%s\n",
				d.Allow, d.Reason, time.Duration(d.RetryAfter)*time.Second)
			return nil
		},
	}

	cmd.Flags().StringVar(&key, "key", "lightning", "dedupe key")
	cmd.Flags().StringVar(&at, "at", "", "evaluation time, RFC 3339 (default now)")
	cmd.Flags().DurationVar(&dedupe, "dedupe", def.DedupeWindow, "dedupe window")
	cmd.Flags().IntVar(&max15m, "max-15m", def.MaxPer15m, "max posts per 15 minutes")
	cmd.Flags().IntVar(&maxHr, "max-hour", def.MaxPerHour, "max posts per hour")
	cmd.Flags().IntVar(&maxDay, "max-day", def.MaxPerDay, "max posts per day")

	return cmd
}
