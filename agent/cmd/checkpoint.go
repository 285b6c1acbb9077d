package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/logship/agent/internal/checkpoint"
	"github.com/telhawk-systems/logship/agent/pkg/output"
)

var checkpointCmd = &cobra.Command{
	Use:   "checkpoint",
	Short: "Inspect or change the shipping checkpoint",
	Long:  "The checkpoint is the timestamp of the newest line the collector has accepted.",
}

var checkpointShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the current checkpoint",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := checkpointStore()
		if err != nil {
			return err
		}
		ts, found, err := store.Load()
		if err != nil {
			return err
		}
		if !found {
			output.Warn("No checkpoint at %s; next run starts from %s", store.Path(), ts.Format(checkpoint.Layout))
			return nil
		}
		output.Info("%s", ts.Format(checkpoint.Layout))
		return nil
	},
}

var checkpointSetCmd = &cobra.Command{
	Use:     "set <YYYY-MM-DD HH:MM:SS>",
	Short:   "Set the checkpoint",
	Example: `  logship-agent checkpoint set 2024-03-05 10:20:30`,
	Args:    cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ts, err := time.Parse(checkpoint.Layout, strings.Join(args, " "))
		if err != nil {
			return fmt.Errorf("invalid checkpoint %q: expected %s", strings.Join(args, " "), checkpoint.Layout)
		}
		store, err := checkpointStore()
		if err != nil {
			return err
		}
		if err := store.Save(ts); err != nil {
			return err
		}
		output.Success("Checkpoint set to %s", ts.Format(checkpoint.Layout))
		return nil
	},
}

var checkpointResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Remove the checkpoint",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := checkpointStore()
		if err != nil {
			return err
		}
		if err := store.Reset(); err != nil {
			return err
		}
		output.Success("Checkpoint removed; next run starts %s back", store.Lookback())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkpointCmd)
	checkpointCmd.AddCommand(checkpointShowCmd, checkpointSetCmd, checkpointResetCmd)
}

func checkpointStore() (*checkpoint.Store, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return checkpoint.NewStore(cfg.Checkpoint.Path, cfg.Checkpoint.Lookback), nil
}
