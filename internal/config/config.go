package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
	_ "time/tzdata" // report.timezone must resolve on hosts without zoneinfo

	"github.com/spf13/viper"

	"github.com/ogulcanaydogan/gasfree-sentinel/pkg/alerts"
	"github.com/ogulcanaydogan/gasfree-sentinel/pkg/model"
	"github.com/ogulcanaydogan/gasfree-sentinel/pkg/resource"
	"github.com/ogulcanaydogan/gasfree-sentinel/pkg/storage"
	"github.com/ogulcanaydogan/gasfree-sentinel/pkg/threshold"
)

// Config holds all GasFree Sentinel configuration.
type Config struct {
	Monitor    MonitorConfig    `mapstructure:"monitor"`
	Thresholds ThresholdsConfig `mapstructure:"thresholds"`
	Resource   ResourceConfig   `mapstructure:"resource"`
	Rate       RateConfig       `mapstructure:"rate"`
	Report     ReportConfig     `mapstructure:"report"`
	Datastore  DatastoreConfig  `mapstructure:"datastore"`
	Channels   ChannelsConfig   `mapstructure:"channels"`
	Server     ServerConfig     `mapstructure:"server"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// MonitorConfig defines the polling loop.
type MonitorConfig struct {
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	AlertCooldown  time.Duration `mapstructure:"alert_cooldown"`
	ThresholdsFile string        `mapstructure:"thresholds_file"`
}

// ThresholdsConfig seeds the threshold file when it does not exist yet.
type ThresholdsConfig struct {
	BalanceMin       float64 `mapstructure:"balance_min"`
	BalanceReference float64 `mapstructure:"balance_reference"`
	BalanceRatio     float64 `mapstructure:"balance_ratio"`
	EnergyRatio      float64 `mapstructure:"energy_ratio"`
	BandwidthRatio   float64 `mapstructure:"bandwidth_ratio"`
}

// Model converts to the evaluator's threshold set.
func (t ThresholdsConfig) Model() model.Thresholds {
	return model.Thresholds{
		BalanceMin:       t.BalanceMin,
		BalanceReference: t.BalanceReference,
		BalanceRatio:     t.BalanceRatio,
		EnergyRatio:      t.EnergyRatio,
		BandwidthRatio:   t.BandwidthRatio,
	}
}

// ResourceConfig defines where snapshots come from.
type ResourceConfig struct {
	Source  string        `mapstructure:"source"` // tronscan or exposition
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// RateConfig defines the request-rate query used by the digest.
type RateConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	URL     string        `mapstructure:"url"`
	Query   string        `mapstructure:"query"`
	Label   string        `mapstructure:"label"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// ReportConfig defines the scheduled digest.
type ReportConfig struct {
	Enabled     bool            `mapstructure:"enabled"`
	Schedule    string          `mapstructure:"schedule"`
	Timezone    string          `mapstructure:"timezone"`
	Title       string          `mapstructure:"title"`
	Genesis     string          `mapstructure:"genesis"` // YYYY-MM-DD
	LargeAmount int64           `mapstructure:"large_amount"`
	RankLimit   int             `mapstructure:"rank_limit"`
	Timeout     time.Duration   `mapstructure:"timeout"`
	Partners    []PartnerConfig `mapstructure:"partners"`
}

// PartnerConfig maps an integrator API key to its display name.
type PartnerConfig struct {
	Key  string `mapstructure:"key"`
	Name string `mapstructure:"name"`
}

// DatastoreConfig defines the ledger connection.
type DatastoreConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// ChannelsConfig defines notification channels.
type ChannelsConfig struct {
	Retry    RetryConfig    `mapstructure:"retry"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Slack    SlackConfig    `mapstructure:"slack"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	Email    EmailConfig    `mapstructure:"email"`
}

// RetryConfig defines the per-channel retry schedule.
type RetryConfig struct {
	Attempts int           `mapstructure:"attempts"`
	Delay    time.Duration `mapstructure:"delay"`
}

// TelegramConfig defines Telegram bot settings. DigestChatID, when set,
// receives digests instead of ChatID.
type TelegramConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	APIURL       string `mapstructure:"api_url"`
	Token        string `mapstructure:"token"`
	ChatID       string `mapstructure:"chat_id"`
	DigestChatID string `mapstructure:"digest_chat_id"`
	Alerts       bool   `mapstructure:"alerts"`
	Digests      bool   `mapstructure:"digests"`
}

// SlackConfig defines Slack bot settings.
type SlackConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIURL  string `mapstructure:"api_url"`
	Token   string `mapstructure:"token"`
	Channel string `mapstructure:"channel"`
	Alerts  bool   `mapstructure:"alerts"`
	Digests bool   `mapstructure:"digests"`
}

// WebhookConfig defines generic webhook settings.
type WebhookConfig struct {
	Enabled  bool     `mapstructure:"enabled"`
	URL      string   `mapstructure:"url"`
	Secret   string   `mapstructure:"secret"`
	Mentions []string `mapstructure:"mentions"`
	Alerts   bool     `mapstructure:"alerts"`
	Digests  bool     `mapstructure:"digests"`
}

// EmailConfig defines Resend email settings.
type EmailConfig struct {
	Enabled       bool     `mapstructure:"enabled"`
	APIKey        string   `mapstructure:"api_key"`
	From          string   `mapstructure:"from"`
	To            []string `mapstructure:"to"`
	Cc            []string `mapstructure:"cc"`
	Bcc           []string `mapstructure:"bcc"`
	SubjectPrefix string   `mapstructure:"subject_prefix"`
	BodyType      string   `mapstructure:"body_type"`
	Attachments   []string `mapstructure:"attachments"`
	Alerts        bool     `mapstructure:"alerts"`
	Digests       bool     `mapstructure:"digests"`
}

// ServerConfig defines the command server.
type ServerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// Load reads configuration from file and environment variables.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("find home directory: %w", err)
		}

		v.AddConfigPath(".")
		v.AddConfigPath(filepath.Join(home, ".sentinel"))
		v.SetConfigName("sentinel")
		v.SetConfigType("yaml")
	}

	// Defaults
	home, _ := os.UserHomeDir()
	v.SetDefault("monitor.poll_interval", "60s")
	v.SetDefault("monitor.alert_cooldown", "600s")
	v.SetDefault("monitor.thresholds_file", filepath.Join(home, ".sentinel", "thresholds.yaml"))
	v.SetDefault("thresholds.balance_min", 1000)
	v.SetDefault("thresholds.balance_reference", 0)
	v.SetDefault("thresholds.balance_ratio", 0.2)
	v.SetDefault("thresholds.energy_ratio", 0.2)
	v.SetDefault("thresholds.bandwidth_ratio", 0.2)
	v.SetDefault("resource.source", resource.SourceTronscan)
	v.SetDefault("resource.url", "")
	v.SetDefault("resource.timeout", "10s")
	v.SetDefault("rate.enabled", false)
	v.SetDefault("rate.url", "")
	v.SetDefault("rate.timeout", "10s")
	v.SetDefault("report.enabled", true)
	v.SetDefault("report.schedule", "0 * * * *")
	v.SetDefault("report.timezone", "Asia/Shanghai")
	v.SetDefault("report.title", "GasFree Provider digest")
	v.SetDefault("report.genesis", "2025-03-04")
	v.SetDefault("report.large_amount", 50_000_000)
	v.SetDefault("report.rank_limit", 3)
	v.SetDefault("report.timeout", "30s")
	v.SetDefault("datastore.driver", storage.DriverPostgres)
	v.SetDefault("datastore.dsn", "")
	v.SetDefault("channels.retry.attempts", 10)
	v.SetDefault("channels.retry.delay", "1s")
	// Secrets usually arrive through the environment, which viper only
	// consults for keys it already knows.
	v.SetDefault("channels.telegram.enabled", false)
	v.SetDefault("channels.telegram.token", "")
	v.SetDefault("channels.telegram.chat_id", "")
	v.SetDefault("channels.telegram.digest_chat_id", "")
	v.SetDefault("channels.slack.enabled", false)
	v.SetDefault("channels.slack.token", "")
	v.SetDefault("channels.slack.channel", "")
	v.SetDefault("channels.webhook.enabled", false)
	v.SetDefault("channels.webhook.url", "")
	v.SetDefault("channels.webhook.secret", "")
	v.SetDefault("channels.email.enabled", false)
	v.SetDefault("channels.email.api_key", "")
	v.SetDefault("channels.email.from", "")
	v.SetDefault("channels.email.to", []string{})
	v.SetDefault("channels.telegram.alerts", true)
	v.SetDefault("channels.telegram.digests", true)
	v.SetDefault("channels.slack.alerts", true)
	v.SetDefault("channels.webhook.alerts", true)
	v.SetDefault("channels.email.digests", true)
	v.SetDefault("channels.email.body_type", alerts.BodyText)
	v.SetDefault("server.enabled", true)
	v.SetDefault("server.listen", "127.0.0.1:8090")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.max_age_days", 30)

	// Environment variables
	v.SetEnvPrefix("SENTINEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate reports every setting the process cannot start with.
func (c *Config) Validate() error {
	var errs []error

	if c.Monitor.PollInterval <= 0 {
		errs = append(errs, errors.New("monitor.poll_interval must be positive"))
	}
	if c.Monitor.AlertCooldown < 0 {
		errs = append(errs, errors.New("monitor.alert_cooldown must not be negative"))
	}
	if err := threshold.Validate(c.Thresholds.Model()); err != nil {
		errs = append(errs, err)
	}

	if !slices.Contains([]string{resource.SourceTronscan, resource.SourceExposition}, c.Resource.Source) {
		errs = append(errs, fmt.Errorf("resource.source %q is not tronscan or exposition", c.Resource.Source))
	}
	if c.Resource.URL == "" {
		errs = append(errs, errors.New("resource.url is required"))
	}
	if c.Rate.Enabled && c.Rate.URL == "" {
		errs = append(errs, errors.New("rate.url is required when rate.enabled"))
	}

	if c.Report.Enabled {
		if _, err := c.Location(); err != nil {
			errs = append(errs, err)
		}
		if _, err := c.Genesis(); err != nil {
			errs = append(errs, err)
		}
		if !slices.Contains([]string{storage.DriverPostgres, storage.DriverMySQL, storage.DriverSQLite}, c.Datastore.Driver) {
			errs = append(errs, fmt.Errorf("datastore.driver %q is not postgres, mysql or sqlite", c.Datastore.Driver))
		}
		if c.Datastore.DSN == "" {
			errs = append(errs, errors.New("datastore.dsn is required when report.enabled"))
		}
	}

	if c.Channels.Retry.Attempts < 1 {
		errs = append(errs, errors.New("channels.retry.attempts must be at least 1"))
	}
	if e := c.Channels.Email; e.Enabled && e.BodyType != alerts.BodyText && e.BodyType != alerts.BodyHTML {
		errs = append(errs, fmt.Errorf("channels.email.body_type %q is not text or html", e.BodyType))
	}

	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		errs = append(errs, fmt.Errorf("logging.format %q is not json or text", c.Logging.Format))
	}

	if len(errs) == 0 {
		return nil
	}
	return model.ConfigError("config", errors.Join(errs...))
}

// Location returns the digest time zone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Report.Timezone)
	if err != nil {
		return nil, fmt.Errorf("report.timezone: %w", err)
	}
	return loc, nil
}

// Genesis returns the all-time window start.
func (c *Config) Genesis() (time.Time, error) {
	t, err := time.Parse(time.DateOnly, c.Report.Genesis)
	if err != nil {
		return time.Time{}, fmt.Errorf("report.genesis: %w", err)
	}
	return t, nil
}

// PartnerNames returns the API key to display name mapping.
func (c *Config) PartnerNames() map[string]string {
	names := make(map[string]string, len(c.Report.Partners))
	for _, p := range c.Report.Partners {
		names[p.Key] = p.Name
	}
	return names
}
