package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"mendgate/internal/breaker"
	"mendgate/internal/config"
)

var breakerCmd = &cobra.Command{
	Use:   "breaker",
	Short: "Inspect or control the circuit breaker",
}

var breakerStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the breaker state and recent reverts",
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openBreaker()
		if err != nil {
			return err
		}
		snap := b.Snapshot()

		// Read-only view; ShouldAllowFix would start a half-open trial.
		out, err := json.MarshalIndent(struct {
			breaker.Snapshot
			FixesAllowed bool `json:"fixes_allowed"`
		}{snap, snap.State == breaker.StateClosed}, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

var breakerResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Force the breaker back to closed and clear revert history",
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openBreaker()
		if err != nil {
			return err
		}
		b.Reset()
		fmt.Println("breaker reset to closed")
		return nil
	},
}

var breakerRevertCmd = &cobra.Command{
	Use:   "revert",
	Short: "Record that an applied fix was reverted",
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := openBreaker()
		if err != nil {
			return err
		}
		b.RecordRevert()
		fmt.Printf("revert recorded, breaker is %s\n", b.State())
		return nil
	},
}

func init() {
	breakerCmd.AddCommand(breakerStatusCmd)
	breakerCmd.AddCommand(breakerResetCmd)
	breakerCmd.AddCommand(breakerRevertCmd)
}

func openBreaker() (*breaker.Breaker, error) {
	store, err := breaker.NewFileStore(cfg.Storage.StateDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open breaker store: %w", err)
	}
	return breaker.New(
		breaker.WithMaxReverts(cfg.Breaker.MaxRevertsPerHour),
		breaker.WithCooldown(config.Duration(cfg.Breaker.Cooldown, breaker.DefaultCooldown)),
		breaker.WithStore(store),
	), nil
}
