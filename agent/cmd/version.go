package cmd

import (
	"runtime"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/logship/agent/pkg/output"
)

// Set with -ldflags "-X github.com/telhawk-systems/logship/agent/cmd.Version=...".
var (
	Version = "0.1.0"
	Commit  = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the agent version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		output.Info("logship-agent %s (commit %s, %s %s/%s)", Version, Commit, runtime.Version(), runtime.GOOS, runtime.GOARCH)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
