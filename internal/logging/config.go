package logging

import (
	"fmt"

	"go.uber.org/zap/zapcore"
)

// Config defines all settings for logging.
type Config struct {
	// Level is the minimum log level that will be captured.
	Level string `mapstructure:"level"`

	// Format specifies the log output format. Can be "json" or "console".
	Format string `mapstructure:"format"`

	// OutputPath is "stdout", "stderr" or a file path rotated by lumberjack.
	OutputPath string `mapstructure:"output_path"`

	Rotation RotationConfig `mapstructure:"rotation"`

	// ModuleLevels overrides Level for named loggers.
	ModuleLevels map[string]string `mapstructure:"module_levels"`

	EnableCaller     bool `mapstructure:"enable_caller"`
	EnableStacktrace bool `mapstructure:"enable_stacktrace"`
	Development      bool `mapstructure:"development"`

	Sampling SamplingConfig `mapstructure:"sampling"`

	// InitialFields are added to all log entries.
	InitialFields map[string]interface{} `mapstructure:"initial_fields"`
}

// RotationConfig defines the settings for log file rotation.
type RotationConfig struct {
	MaxSize    int  `mapstructure:"max_size_mb"`
	MaxAge     int  `mapstructure:"max_age_days"`
	MaxBackups int  `mapstructure:"max_backups"`
	Compress   bool `mapstructure:"compress"`
	LocalTime  bool `mapstructure:"local_time"`
}

// SamplingConfig defines the settings for log sampling.
type SamplingConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	Initial    int  `mapstructure:"initial"`
	Thereafter int  `mapstructure:"thereafter"`
}

// DefaultConfig returns a new Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		Level:      "info",
		Format:     "json",
		OutputPath: "stdout",
		Rotation: RotationConfig{
			MaxSize:    100,
			MaxAge:     30,
			MaxBackups: 10,
			Compress:   true,
			LocalTime:  true,
		},
		ModuleLevels:     make(map[string]string),
		EnableCaller:     true,
		EnableStacktrace: true,
		Sampling: SamplingConfig{
			Initial:    100,
			Thereafter: 100,
		},
		InitialFields: map[string]interface{}{
			"service": "maplemon",
		},
	}
}

// Validate checks levels and format.
func (c *Config) Validate() error {
	if _, err := zapcore.ParseLevel(c.Level); err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.Level, err)
	}
	for module, lvl := range c.ModuleLevels {
		if _, err := zapcore.ParseLevel(lvl); err != nil {
			return fmt.Errorf("invalid log level %q for module %s: %w", lvl, module, err)
		}
	}
	switch c.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid log format %q", c.Format)
	}
	if c.OutputPath == "" {
		return fmt.Errorf("log output path cannot be empty")
	}
	if c.Sampling.Enabled && (c.Sampling.Initial <= 0 || c.Sampling.Thereafter <= 0) {
		return fmt.Errorf("log sampling requires positive initial and thereafter")
	}
	return nil
}

// buildEncoderConfig creates a zapcore.EncoderConfig from the logger config.
func (c *Config) buildEncoderConfig() zapcore.EncoderConfig {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stack",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	if c.Development {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	if !c.EnableCaller {
		encoderConfig.CallerKey = zapcore.OmitKey
	}

	return encoderConfig
}
