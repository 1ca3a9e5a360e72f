package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"              // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3"    // SQLite driver
	_ "github.com/microsoft/go-mssqldb" // SQL Server driver
	"go.uber.org/zap"
)

// DB is a named, pooled connection to a monitored database.
type DB struct {
	logger *zap.Logger
	name   string
	driver string
	db     *sqlx.DB

	timeout time.Duration
}

// DefaultConnectTimeout bounds the initial ping.
const DefaultConnectTimeout = 5 * time.Second

// DriverName maps a configured driver to the registered database/sql name.
func DriverName(driver string) (string, error) {
	switch strings.ToLower(driver) {
	case "postgres", "postgresql":
		return "postgres", nil
	case "mysql", "mariadb":
		return "mysql", nil
	case "sqlite", "sqlite3":
		return "sqlite3", nil
	case "mssql", "sqlserver":
		return "sqlserver", nil
	default:
		return "", fmt.Errorf("unsupported database driver: %s", driver)
	}
}

// VersionQuery returns the statement that reports the server version.
func VersionQuery(driver string) string {
	name, _ := DriverName(driver)
	switch name {
	case "postgres", "mysql":
		return "SELECT version()"
	case "sqlite3":
		return "SELECT sqlite_version()"
	case "sqlserver":
		return "SELECT @@VERSION"
	default:
		return ""
	}
}

// Connect opens a pool and applies its limits without touching the network.
// The first connection is made lazily, so an unreachable server is reported
// by Ping rather than here.
func Connect(logger *zap.Logger, config Config) (*DB, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	driver, _ := DriverName(config.Driver)

	db, err := sqlx.Open(driver, config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", config.Name, err)
	}

	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(config.MaxIdleConns)
	}
	if config.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(config.ConnMaxLifetime)
	}
	if config.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(config.ConnMaxIdleTime)
	}

	return &DB{
		logger:  logger,
		name:    config.Name,
		driver:  driver,
		db:      db,
		timeout: config.ConnectTimeout,
	}, nil
}

// Open connects, applies pool limits and verifies the connection with a ping.
func Open(ctx context.Context, logger *zap.Logger, config Config) (*DB, error) {
	d, err := Connect(logger, config)
	if err != nil {
		return nil, err
	}

	if err := d.PingTimeout(ctx); err != nil {
		d.Close()
		return nil, fmt.Errorf("failed to ping database %s: %w", config.Name, err)
	}

	logger.Info("Database connected",
		zap.String("name", config.Name),
		zap.String("driver", d.driver),
		zap.Int("max_open_conns", config.MaxOpenConns),
	)
	return d, nil
}

// PingTimeout pings bounded by the configured connect timeout.
func (d *DB) PingTimeout(ctx context.Context) error {
	timeout := d.timeout
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return d.db.PingContext(pingCtx)
}

// Wrap adopts an existing handle, mainly for tests and shared pools.
func Wrap(logger *zap.Logger, name, driver string, db *sql.DB) *DB {
	normalized, err := DriverName(driver)
	if err != nil {
		normalized = driver
	}
	return &DB{
		logger: logger,
		name:   name,
		driver: normalized,
		db:     sqlx.NewDb(db, normalized),
	}
}

func (d *DB) Name() string { return d.name }

func (d *DB) Driver() string { return d.driver }

// SQLX exposes the underlying handle.
func (d *DB) SQLX() *sqlx.DB { return d.db }

// Ping checks database connectivity
func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// Version queries the server version string.
func (d *DB) Version(ctx context.Context) (string, error) {
	var version string
	if err := d.db.GetContext(ctx, &version, VersionQuery(d.driver)); err != nil {
		return "", fmt.Errorf("failed to query version: %w", err)
	}
	return version, nil
}

// Stats returns connection pool statistics.
func (d *DB) Stats() sql.DBStats {
	return d.db.Stats()
}

// Close closes the database connection
func (d *DB) Close() error {
	return d.db.Close()
}
