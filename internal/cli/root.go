package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ogulcanaydogan/gasfree-sentinel/internal/config"
	"github.com/ogulcanaydogan/gasfree-sentinel/internal/metrics"
	"github.com/ogulcanaydogan/gasfree-sentinel/pkg/alerts"
	"github.com/ogulcanaydogan/gasfree-sentinel/pkg/monitor"
	"github.com/ogulcanaydogan/gasfree-sentinel/pkg/ratelimit"
	"github.com/ogulcanaydogan/gasfree-sentinel/pkg/ratequery"
	"github.com/ogulcanaydogan/gasfree-sentinel/pkg/report"
	"github.com/ogulcanaydogan/gasfree-sentinel/pkg/resource"
	"github.com/ogulcanaydogan/gasfree-sentinel/pkg/storage"
	"github.com/ogulcanaydogan/gasfree-sentinel/pkg/threshold"
)

// Version is set at build time via ldflags.
var Version = "dev"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "sentinel",
	Short: "GasFree Sentinel - resource monitoring and alerting for the GasFree provider",
	Long: `GasFree Sentinel polls the provisioning account's balance, energy and
bandwidth, alerts on-call channels when they run low, and sends a scheduled
business digest built from the transfer ledger.`,
	SilenceUsage: true,
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./sentinel.yaml or ~/.sentinel/sentinel.yaml)")
}

// loadConfig loads and validates the configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger creates a structured logger from config.
func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var out io.Writer = os.Stderr
	if cfg.Logging.File != "" {
		out = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename: cfg.Logging.File,
			MaxAge:   cfg.Logging.MaxAgeDays,
			Compress: true,
		})
	}

	var handler slog.Handler
	if cfg.Logging.Format == "text" {
		handler = log.NewWithOptions(out, log.Options{
			Level:           log.Level(level),
			ReportTimestamp: true,
			Prefix:          "sentinel",
		})
	} else {
		handler = slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})
	}

	return slog.New(handler)
}

// initThresholds creates the threshold store seeded with configured defaults.
func initThresholds(cfg *config.Config, logger *slog.Logger) *threshold.Store {
	return threshold.NewStore(cfg.Monitor.ThresholdsFile, cfg.Thresholds.Model(), logger)
}

// initRoutes creates notifiers from config, in a fixed channel order.
func initRoutes(cfg *config.Config, logger *slog.Logger) alerts.Routes {
	var routes alerts.Routes
	ch := cfg.Channels

	if tg := ch.Telegram; tg.Enabled && tg.Token != "" {
		if tg.Digests && tg.DigestChatID != "" && tg.DigestChatID != tg.ChatID {
			routes = append(routes,
				alerts.Route{Notifier: alerts.NewTelegramNotifier(tg.APIURL, tg.Token, tg.ChatID), Alerts: tg.Alerts},
				alerts.Route{Notifier: alerts.NewTelegramNotifier(tg.APIURL, tg.Token, tg.DigestChatID), Digests: true},
			)
		} else {
			routes = append(routes, alerts.Route{
				Notifier: alerts.NewTelegramNotifier(tg.APIURL, tg.Token, tg.ChatID),
				Alerts:   tg.Alerts,
				Digests:  tg.Digests,
			})
		}
	}

	if sl := ch.Slack; sl.Enabled && sl.Token != "" {
		routes = append(routes, alerts.Route{
			Notifier: alerts.NewSlackNotifier(sl.APIURL, sl.Token, sl.Channel),
			Alerts:   sl.Alerts,
			Digests:  sl.Digests,
		})
	}

	if wh := ch.Webhook; wh.Enabled && wh.URL != "" {
		routes = append(routes, alerts.Route{
			Notifier: alerts.NewWebhookNotifier(wh.URL, wh.Secret, wh.Mentions),
			Alerts:   wh.Alerts,
			Digests:  wh.Digests,
		})
	}

	if em := ch.Email; em.Enabled && em.APIKey != "" {
		routes = append(routes, alerts.Route{
			Notifier: alerts.NewResendNotifier(em.APIKey, alerts.EmailConfig{
				From:          em.From,
				To:            em.To,
				Cc:            em.Cc,
				Bcc:           em.Bcc,
				SubjectPrefix: em.SubjectPrefix,
				BodyType:      em.BodyType,
				Attachments:   em.Attachments,
			}, logger),
			Alerts:  em.Alerts,
			Digests: em.Digests,
		})
	}

	return routes
}

// initDispatcher creates a dispatcher that reports every attempt to metrics.
func initDispatcher(cfg *config.Config, logger *slog.Logger) *alerts.Dispatcher {
	d := alerts.NewDispatcher(alerts.RetryPolicy{
		Attempts: cfg.Channels.Retry.Attempts,
		Delay:    cfg.Channels.Retry.Delay,
	}, logger)
	d.OnAttempt(metrics.ObserveAttempt)
	return d
}

// initDigest creates the aggregator and trigger, or nils when reports are off.
func initDigest(cfg *config.Config, logger *slog.Logger) (*report.Aggregator, *report.Trigger, error) {
	if !cfg.Report.Enabled {
		return nil, nil, nil
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, nil, err
	}
	genesis, err := cfg.Genesis()
	if err != nil {
		return nil, nil, err
	}

	trigger, err := report.NewTrigger(cfg.Report.Schedule, loc)
	if err != nil {
		return nil, nil, err
	}

	driver, dsn := cfg.Datastore.Driver, cfg.Datastore.DSN
	open := func(ctx context.Context) (report.Ledger, error) {
		return storage.Open(ctx, driver, dsn)
	}

	agg := report.NewAggregator(open, report.Options{
		Title:       cfg.Report.Title,
		Genesis:     genesis,
		LargeAmount: cfg.Report.LargeAmount,
		Partners:    cfg.PartnerNames(),
		RankLimit:   cfg.Report.RankLimit,
		Location:    loc,
		Timeout:     cfg.Report.Timeout,
	}, logger)

	return agg, trigger, nil
}

// initScheduler wires the full monitoring pipeline.
func initScheduler(cfg *config.Config, logger *slog.Logger) (*monitor.Scheduler, *threshold.Store, error) {
	fetcher, err := resource.New(cfg.Resource.Source, cfg.Resource.URL, cfg.Resource.Timeout)
	if err != nil {
		return nil, nil, err
	}

	store := initThresholds(cfg, logger)

	agg, trigger, err := initDigest(cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("init digest: %w", err)
	}

	opts := monitor.Options{
		Fetcher:      fetcher,
		Thresholds:   store,
		Limiter:      ratelimit.New(),
		Dispatcher:   initDispatcher(cfg, logger),
		Routes:       initRoutes(cfg, logger),
		PollInterval: cfg.Monitor.PollInterval,
		Cooldown:     cfg.Monitor.AlertCooldown,
	}
	if agg != nil {
		opts.Digests = agg
		opts.Trigger = trigger
	}
	if cfg.Rate.Enabled {
		rates, err := ratequery.New(cfg.Rate.URL, cfg.Rate.Query, cfg.Rate.Label, cfg.Rate.Timeout)
		if err != nil {
			return nil, nil, err
		}
		opts.Rates = rates
	}

	if len(opts.Routes) == 0 {
		logger.Warn("no notification channels configured")
	}

	return monitor.New(opts, logger), store, nil
}
