package cmd

import (
	"github.com/spf13/cobra"

	"github.com/telhawk-systems/logship/agent/internal/deviceid"
	"github.com/telhawk-systems/logship/agent/pkg/output"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration commands",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long:  "Print the configuration after defaults, file and environment are merged. Secrets are masked.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}

		shown := cfg.Redacted()
		if shown.Device.ID == "" {
			if id, err := deviceid.Resolve("", cfg.Device.CPUInfoPath); err == nil {
				shown.Device.ID = id
			}
		}
		return output.YAML(shown)
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
}
