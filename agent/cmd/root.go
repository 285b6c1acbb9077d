package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/logship/agent/internal/config"
	"github.com/telhawk-systems/logship/agent/pkg/output"
	"github.com/telhawk-systems/logship/common/logging"
)

var (
	cfgFile  string
	envFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "logship-agent",
	Short: "Ship syslog lines to a logship collector",
	Long: `logship-agent reads the lines appended to a syslog file since the last
run and posts them to the logship collector, which stores them and raises
alerts for unusual severities.

Run it from cron with 'logship-agent run', or keep it running with
'logship-agent follow'.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		output.Error("%v", err)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./agent.yaml or /etc/logship/agent.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file to load before reading the environment (default: .env)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level")
}

// loadConfig reads configuration and installs the process logger.
func loadConfig() (*config.Config, *logging.Logger, error) {
	cfg, err := config.Load(cfgFile, envFile)
	if err != nil {
		return nil, nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	logger := logging.NewWithWriter(
		os.Stderr,
		logging.ParseLevel(cfg.Logging.Level),
		cfg.Logging.Format,
	).With(logging.Service("agent"))
	logging.SetDefault(logger)

	return cfg, logger, nil
}
