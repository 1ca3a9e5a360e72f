package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Await-d/maple-blog-sub005/internal/database"
	"github.com/Await-d/maple-blog-sub005/internal/logging"
	"github.com/Await-d/maple-blog-sub005/internal/monitoring"
	"github.com/Await-d/maple-blog-sub005/internal/probe"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. MAPLEMON_MONITOR_COLLECTION_INTERVAL.
const EnvPrefix = "MAPLEMON"

// Config はアプリケーション全体の設定
type Config struct {
	Logging       logging.Config     `mapstructure:"logging"`
	Monitor       monitoring.Config  `mapstructure:"monitor"`
	API           APIConfig          `mapstructure:"api"`
	System        SystemProbeConfig  `mapstructure:"system"`
	Databases     []DatabaseConfig   `mapstructure:"databases"`
	Rules         []RuleConfig       `mapstructure:"rules"`
	Notifications NotificationConfig `mapstructure:"notifications"`
}

// APIConfig はAPI設定
type APIConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	ListenAddr      string        `mapstructure:"listen_addr"`
	RateLimit       float64       `mapstructure:"rate_limit"`
	RateBurst       int           `mapstructure:"rate_burst"`
	EnableGzip      bool          `mapstructure:"enable_gzip"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// SystemProbeConfig enables host resource collection.
type SystemProbeConfig struct {
	Enabled            bool `mapstructure:"enabled"`
	probe.SystemConfig `mapstructure:",squash"`
}

// DatabaseConfig describes one monitored database and the probes run against it.
type DatabaseConfig struct {
	database.Config `mapstructure:",squash"`

	ProbePool  bool              `mapstructure:"probe_pool"`
	QueryProbe probe.QueryConfig `mapstructure:"query_probe"`
}

// RuleConfig is the file form of an alert rule.
type RuleConfig struct {
	Name               string  `mapstructure:"name"`
	Metric             string  `mapstructure:"metric"`
	Operator           string  `mapstructure:"operator"`
	Threshold          float64 `mapstructure:"threshold"`
	Level              string  `mapstructure:"level"`
	Message            string  `mapstructure:"message"`
	AlertOnMissingData bool    `mapstructure:"alert_on_missing_data"`
	Enabled            *bool   `mapstructure:"enabled"`
}

// NotificationConfig configures notifiers beyond the log.
type NotificationConfig struct {
	Webhook WebhookConfig `mapstructure:"webhook"`
}

// WebhookConfig enables the webhook notifier.
type WebhookConfig struct {
	Enabled                  bool `mapstructure:"enabled"`
	monitoring.WebhookConfig `mapstructure:",squash"`
}

// Load は設定ファイルを読み込む
//
// An empty path loads defaults and environment overrides only.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	// デフォルト値設定
	setDefaults(v)

	// 環境変数のバインド
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults はデフォルト値を設定
func setDefaults(v *viper.Viper) {
	logDefaults := logging.DefaultConfig()
	v.SetDefault("logging.level", logDefaults.Level)
	v.SetDefault("logging.format", logDefaults.Format)
	v.SetDefault("logging.output_path", logDefaults.OutputPath)
	v.SetDefault("logging.enable_caller", logDefaults.EnableCaller)
	v.SetDefault("logging.enable_stacktrace", logDefaults.EnableStacktrace)
	v.SetDefault("logging.rotation.max_size_mb", logDefaults.Rotation.MaxSize)
	v.SetDefault("logging.rotation.max_age_days", logDefaults.Rotation.MaxAge)
	v.SetDefault("logging.rotation.max_backups", logDefaults.Rotation.MaxBackups)
	v.SetDefault("logging.rotation.compress", logDefaults.Rotation.Compress)
	v.SetDefault("logging.rotation.local_time", logDefaults.Rotation.LocalTime)
	v.SetDefault("logging.sampling.enabled", false)
	v.SetDefault("logging.sampling.initial", logDefaults.Sampling.Initial)
	v.SetDefault("logging.sampling.thereafter", logDefaults.Sampling.Thereafter)
	v.SetDefault("logging.initial_fields", logDefaults.InitialFields)

	// モニタリング設定
	monDefaults := monitoring.DefaultConfig()
	v.SetDefault("monitor.collection_interval", monDefaults.CollectionInterval)
	v.SetDefault("monitor.retention_duration", monDefaults.RetentionDuration)
	v.SetDefault("monitor.collect_timeout", time.Duration(0))
	v.SetDefault("monitor.stop_grace_period", monDefaults.StopGracePeriod)
	v.SetDefault("monitor.regression_multiplier", monDefaults.RegressionMultiplier)
	v.SetDefault("monitor.stable_tolerance", monDefaults.StableTolerance)
	v.SetDefault("monitor.alert_expiry_window", monDefaults.AlertExpiryWindow)
	v.SetDefault("monitor.immediate_first_tick", monDefaults.ImmediateFirstTick)
	v.SetDefault("monitor.notification_queue_size", monDefaults.NotificationQueueSize)

	// API設定
	v.SetDefault("api.enabled", true)
	v.SetDefault("api.listen_addr", ":9400")
	v.SetDefault("api.rate_limit", 50.0)
	v.SetDefault("api.rate_burst", 100)
	v.SetDefault("api.enable_gzip", true)
	v.SetDefault("api.read_timeout", "10s")
	v.SetDefault("api.write_timeout", "30s")
	v.SetDefault("api.shutdown_timeout", "15s")

	v.SetDefault("system.enabled", true)
	v.SetDefault("system.disk_path", "/")
	v.SetDefault("system.collect_network", false)

	v.SetDefault("notifications.webhook.enabled", false)
	v.SetDefault("notifications.webhook.timeout", "10s")
}

// Validate は設定値を検証
func (c *Config) Validate() error {
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if err := c.Monitor.Validate(); err != nil {
		return fmt.Errorf("monitor: %w", err)
	}

	if c.API.Enabled {
		if c.API.ListenAddr == "" {
			return errors.New("api: listen_addr is required when API is enabled")
		}
		if c.API.RateLimit < 0 || c.API.RateBurst < 0 {
			return errors.New("api: rate_limit and rate_burst cannot be negative")
		}
		if c.API.RateLimit > 0 && c.API.RateBurst == 0 {
			return errors.New("api: rate_burst must be positive when rate_limit is set")
		}
		if c.API.ShutdownTimeout < 0 {
			return errors.New("api: shutdown_timeout cannot be negative")
		}
	}

	names := make(map[string]struct{}, len(c.Databases))
	for _, db := range c.Databases {
		if err := db.Validate(); err != nil {
			return fmt.Errorf("databases: %w", err)
		}
		if _, dup := names[db.Name]; dup {
			return fmt.Errorf("databases: duplicate name %s", db.Name)
		}
		names[db.Name] = struct{}{}
		if err := db.QueryProbe.Validate(); err != nil {
			return fmt.Errorf("databases: %s: %w", db.Name, err)
		}
	}

	if _, err := c.AlertRules(); err != nil {
		return fmt.Errorf("rules: %w", err)
	}

	if c.Notifications.Webhook.Enabled && c.Notifications.Webhook.URL == "" {
		return errors.New("notifications: webhook url is required when enabled")
	}

	return nil
}

// AlertRules converts the configured rules.
func (c *Config) AlertRules() ([]monitoring.AlertRule, error) {
	rules := make([]monitoring.AlertRule, 0, len(c.Rules))
	ids := make(map[string]struct{}, len(c.Rules))

	for _, rc := range c.Rules {
		rule, err := rc.AlertRule()
		if err != nil {
			return nil, err
		}
		if _, dup := ids[rule.ID()]; dup {
			return nil, fmt.Errorf("duplicate rule %s", rule.ID())
		}
		ids[rule.ID()] = struct{}{}
		rules = append(rules, rule)
	}

	return rules, nil
}

// AlertRule converts and validates one rule.
func (rc RuleConfig) AlertRule() (monitoring.AlertRule, error) {
	level := monitoring.LevelWarning
	if rc.Level != "" {
		parsed, err := monitoring.ParseAlertLevel(rc.Level)
		if err != nil {
			return monitoring.AlertRule{}, fmt.Errorf("rule %s: %w", rc.Name, err)
		}
		level = parsed
	}

	rule := monitoring.AlertRule{
		Name:               rc.Name,
		Metric:             rc.Metric,
		Operator:           rc.Operator,
		Threshold:          rc.Threshold,
		Level:              level,
		Message:            rc.Message,
		AlertOnMissingData: rc.AlertOnMissingData,
		Disabled:           rc.Enabled != nil && !*rc.Enabled,
	}
	if err := rule.Validate(); err != nil {
		return monitoring.AlertRule{}, err
	}
	return rule, nil
}
