package database

import (
	"fmt"
	"time"
)

// Config holds the settings for one monitored database connection.
type Config struct {
	Name            string        `mapstructure:"name"`
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
}

// DefaultConfig returns a configuration with sensible default values
func DefaultConfig() Config {
	return Config{
		Name:            "main",
		Driver:          "sqlite3",
		DSN:             "./data/maple.db",
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		ConnectTimeout:  5 * time.Second,
	}
}

// Validate checks the connection settings.
func (c Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("database name cannot be empty")
	}
	if _, err := DriverName(c.Driver); err != nil {
		return fmt.Errorf("database %s: %w", c.Name, err)
	}
	if c.DSN == "" {
		return fmt.Errorf("database %s: dsn cannot be empty", c.Name)
	}
	if c.MaxOpenConns < 0 || c.MaxIdleConns < 0 {
		return fmt.Errorf("database %s: connection limits cannot be negative", c.Name)
	}
	if c.MaxOpenConns > 0 && c.MaxIdleConns > c.MaxOpenConns {
		return fmt.Errorf("database %s: max_idle_conns (%d) exceeds max_open_conns (%d)",
			c.Name, c.MaxIdleConns, c.MaxOpenConns)
	}
	return nil
}
