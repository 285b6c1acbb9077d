package cmd

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/logship/agent/internal/watcher"
)

var followCmd = &cobra.Command{
	Use:   "follow",
	Short: "Keep shipping as the log file grows",
	Long: `Ship new lines whenever the syslog file changes, and at least once per
follow.poll_interval. Runs until interrupted.`,
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

		w, err := watcher.New(cfg.Source.Path, logger)
		if err != nil {
			return err
		}
		go w.Start(ctx)

		logger.Info("Following log file",
			slog.String("path", cfg.Source.Path),
			slog.Duration("poll_interval", cfg.Follow.PollInterval),
		)
		return r.Follow(ctx, w.Changes(), cfg.Follow.PollInterval, cfg.Follow.Debounce)
	},
}

func init() {
	rootCmd.AddCommand(followCmd)
}
