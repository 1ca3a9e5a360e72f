package monitoring

import "time"

const (
	DefaultCollectionInterval    = 60 * time.Second
	DefaultRetentionDuration     = 24 * time.Hour
	DefaultStopGracePeriod       = 10 * time.Second
	DefaultAlertExpiryWindow     = 5 * time.Minute
	DefaultNotificationQueueSize = 64

	// collectTimeoutRatio bounds collectors to a share of the interval so a
	// slow collector cannot run into the next tick.
	collectTimeoutRatio = 0.8
)

// Config holds the pipeline settings.
type Config struct {
	CollectionInterval    time.Duration `mapstructure:"collection_interval"`
	RetentionDuration     time.Duration `mapstructure:"retention_duration"`
	CollectTimeout        time.Duration `mapstructure:"collect_timeout"`
	StopGracePeriod       time.Duration `mapstructure:"stop_grace_period"`
	RegressionMultiplier  float64       `mapstructure:"regression_multiplier"`
	StableTolerance       float64       `mapstructure:"stable_tolerance"`
	AlertExpiryWindow     time.Duration `mapstructure:"alert_expiry_window"`
	ImmediateFirstTick    bool          `mapstructure:"immediate_first_tick"`
	NotificationQueueSize int           `mapstructure:"notification_queue_size"`
}

// DefaultConfig returns the default pipeline settings.
func DefaultConfig() Config {
	return Config{
		CollectionInterval:    DefaultCollectionInterval,
		RetentionDuration:     DefaultRetentionDuration,
		StopGracePeriod:       DefaultStopGracePeriod,
		RegressionMultiplier:  DefaultRegressionMultiplier,
		StableTolerance:       DefaultStableTolerance,
		AlertExpiryWindow:     DefaultAlertExpiryWindow,
		ImmediateFirstTick:    true,
		NotificationQueueSize: DefaultNotificationQueueSize,
	}
}

// Validate rejects settings the pipeline cannot start with.
func (c Config) Validate() error {
	if c.CollectionInterval <= 0 {
		return configError("collection interval must be positive, got %s", c.CollectionInterval)
	}
	if c.RetentionDuration <= 0 {
		return configError("retention duration must be positive, got %s", c.RetentionDuration)
	}
	if c.RetentionDuration < c.CollectionInterval {
		return configError("retention duration %s is shorter than collection interval %s",
			c.RetentionDuration, c.CollectionInterval)
	}
	if c.CollectTimeout < 0 {
		return configError("collect timeout cannot be negative")
	}
	if c.CollectTimeout > c.CollectionInterval {
		return configError("collect timeout %s exceeds collection interval %s",
			c.CollectTimeout, c.CollectionInterval)
	}
	if c.StopGracePeriod < 0 {
		return configError("stop grace period cannot be negative")
	}
	if c.RegressionMultiplier < 0 {
		return configError("regression multiplier cannot be negative")
	}
	if c.StableTolerance < 0 || c.StableTolerance >= 1 {
		return configError("stable tolerance must be in [0, 1), got %g", c.StableTolerance)
	}
	if c.AlertExpiryWindow < 0 {
		return configError("alert expiry window cannot be negative, got %s", c.AlertExpiryWindow)
	}
	if c.NotificationQueueSize < 0 {
		return configError("notification queue size cannot be negative")
	}
	return nil
}

// withDefaults fills the optional settings left at zero.
func (c Config) withDefaults() Config {
	if c.CollectTimeout == 0 {
		c.CollectTimeout = time.Duration(float64(c.CollectionInterval) * collectTimeoutRatio)
	}
	if c.StopGracePeriod == 0 {
		c.StopGracePeriod = DefaultStopGracePeriod
	}
	if c.AlertExpiryWindow == 0 {
		c.AlertExpiryWindow = DefaultAlertExpiryWindow
	}
	if c.NotificationQueueSize == 0 {
		c.NotificationQueueSize = DefaultNotificationQueueSize
	}
	return c
}
