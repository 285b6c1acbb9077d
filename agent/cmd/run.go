package cmd

import (
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/logship/agent/internal/checkpoint"
	"github.com/telhawk-systems/logship/agent/internal/config"
	"github.com/telhawk-systems/logship/agent/internal/deviceid"
	"github.com/telhawk-systems/logship/agent/internal/reader"
	"github.com/telhawk-systems/logship/agent/internal/runner"
	"github.com/telhawk-systems/logship/agent/internal/shipper"
	"github.com/telhawk-systems/logship/agent/pkg/output"
	"github.com/telhawk-systems/logship/common/devicetoken"
	"github.com/telhawk-systems/logship/common/logging"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Ship new lines once and exit",
	Long: `Read every line newer than the checkpoint, post it to the collector and
advance the checkpoint. Intended to be run from cron or a systemd timer.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		r, err := newRunner(cfg, logger)
		if err != nil {
			return err
		}

		report, err := r.RunOnce(ctx)
		if report != nil && report.Skipped > 0 {
			output.Warn("Skipped %d unparseable line(s)", report.Skipped)
		}
		if err != nil {
			return err
		}

		if report.Shipped == 0 {
			output.Info("No new lines since %s", report.Since.Format(checkpoint.Layout))
			return nil
		}
		output.Success("Shipped %d line(s) in %d batch(es), %d unusual", report.Shipped, len(report.PartitionKeys), report.Unusual)
		output.Info("Stored as %s", strings.Join(report.PartitionKeys, ", "))
		output.Info("Checkpoint %s", report.Checkpoint.Format(checkpoint.Layout))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func newRunner(cfg *config.Config, logger *logging.Logger) (*runner.Runner, error) {
	id, err := deviceid.Resolve(cfg.Device.ID, cfg.Device.CPUInfoPath)
	if err != nil {
		return nil, err
	}

	var tokens shipper.TokenSource
	if cfg.Auth.Secret != "" {
		signer, err := devicetoken.NewSigner(cfg.Auth.Secret, cfg.Auth.TokenTTL)
		if err != nil {
			return nil, err
		}
		tokens = signer
	}

	return runner.New(
		runner.Config{DeviceID: id, MaxLines: cfg.Collector.MaxLines},
		reader.New(cfg.Source.Path),
		shipper.New(cfg.Collector.URL, cfg.Collector.Timeout, tokens),
		checkpoint.NewStore(cfg.Checkpoint.Path, cfg.Checkpoint.Lookback),
		logger,
	), nil
}

