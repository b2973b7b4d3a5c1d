package cli

import (
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ogulcanaydogan/gasfree-sentinel/internal/server"
	"github.com/ogulcanaydogan/gasfree-sentinel/pkg/model"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the monitoring loop and command server",
	RunE:  runMonitor,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringP("listen", "l", "", "Command server listen address (default from config)")
	runCmd.Flags().Bool("no-server", false, "Do not start the command server")
}

func runMonitor(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
		cfg.Server.Listen = listen
	}
	if noServer, _ := cmd.Flags().GetBool("no-server"); noServer {
		cfg.Server.Enabled = false
	}

	logger := newLogger(cfg)

	sched, store, err := initScheduler(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return sched.Run(gctx)
	})

	if cfg.Server.Enabled {
		srv := server.NewServer(sched, store, logger)
		g.Go(func() error {
			return srv.ListenAndServe(gctx, cfg.Server.Listen)
		})
	}

	g.Go(func() error {
		if err := os.MkdirAll(filepath.Dir(store.Path()), 0o755); err != nil {
			logger.Warn("threshold watcher disabled", "error", err)
			return nil
		}
		err := store.Watch(gctx, func(th model.Thresholds) {
			logger.Info("thresholds in force",
				"balance_min", th.BalanceMin,
				"balance_ratio", th.BalanceRatio,
				"energy_ratio", th.EnergyRatio,
				"bandwidth_ratio", th.BandwidthRatio)
		})
		if err != nil {
			logger.Warn("threshold watcher stopped", "error", err)
		}
		return nil
	})

	logger.Info("sentinel started", "version", Version, "source", cfg.Resource.Source)
	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("sentinel stopped")
	return nil
}
