package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Await-d/maple-blog-sub005/internal/api"
	"github.com/Await-d/maple-blog-sub005/internal/config"
	"github.com/Await-d/maple-blog-sub005/internal/database"
	"github.com/Await-d/maple-blog-sub005/internal/logging"
	"github.com/Await-d/maple-blog-sub005/internal/monitoring"
	"github.com/Await-d/maple-blog-sub005/internal/probe"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	ShutdownTimeout = 30 * time.Second
	ReloadDebounce  = time.Second
)

// Application wires configuration, collectors, the pipeline and the API.
type Application struct {
	logger     *zap.Logger
	loggers    *logging.LoggerFactory
	config     *config.Config
	configPath string

	registry  *prometheus.Registry
	monitor   *monitoring.Monitor
	server    *api.Server
	watcher   *config.ConfigWatcher
	databases []*database.DB
}

// Option customises New.
type Option func(*options)

type options struct {
	configPath string
	reader     probe.ResourceReader
	clock      monitoring.Clock
}

// WithConfigPath enables hot reload of alert rules from path.
func WithConfigPath(path string) Option {
	return func(o *options) { o.configPath = path }
}

// WithResourceReader replaces the host reader used by the system probe.
func WithResourceReader(reader probe.ResourceReader) Option {
	return func(o *options) { o.reader = reader }
}

// WithClock replaces the pipeline clock.
func WithClock(clock monitoring.Clock) Option {
	return func(o *options) { o.clock = clock }
}

// New creates a new application instance. Component loggers come from
// loggers so module level overrides apply.
func New(ctx context.Context, loggers *logging.LoggerFactory, cfg *config.Config, opts ...Option) (*Application, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a := &Application{
		logger:     loggers.GetLogger("app"),
		loggers:    loggers,
		config:     cfg,
		configPath: o.configPath,
		registry:   prometheus.NewRegistry(),
	}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	monOpts := []monitoring.Option{monitoring.WithRegisterer(a.registry)}
	if o.clock != nil {
		monOpts = append(monOpts, monitoring.WithClock(o.clock))
	}
	if wh := cfg.Notifications.Webhook; wh.Enabled {
		monOpts = append(monOpts, monitoring.WithNotifiers(monitoring.NewWebhookNotifier(wh.WebhookConfig)))
	}

	monitor, err := monitoring.NewMonitor(loggers.GetLogger("monitor"), cfg.Monitor, monOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create monitor: %w", err)
	}
	a.monitor = monitor

	if err := a.registry.Register(monitoring.NewSnapshotCollector(monitor)); err != nil {
		return nil, fmt.Errorf("failed to register snapshot exporter: %w", err)
	}

	if err := a.registerCollectors(ctx, o.reader); err != nil {
		a.closeDatabases()
		return nil, err
	}

	rules, err := cfg.AlertRules()
	if err != nil {
		a.closeDatabases()
		return nil, fmt.Errorf("invalid alert rules: %w", err)
	}
	for _, rule := range rules {
		if err := monitor.RegisterAlertRule(rule); err != nil {
			a.closeDatabases()
			return nil, fmt.Errorf("failed to register rule %s: %w", rule.ID(), err)
		}
	}

	if cfg.API.Enabled {
		server, err := api.NewServer(api.Config{
			Enabled:      true,
			ListenAddr:   cfg.API.ListenAddr,
			RateLimit:    cfg.API.RateLimit,
			RateBurst:    cfg.API.RateBurst,
			EnableGzip:   cfg.API.EnableGzip,
			ReadTimeout:  cfg.API.ReadTimeout,
			WriteTimeout: cfg.API.WriteTimeout,
		}, loggers.GetLogger("api"), monitor, a.registry)
		if err != nil {
			a.closeDatabases()
			return nil, fmt.Errorf("failed to create API server: %w", err)
		}
		a.server = server
	}

	if a.configPath != "" {
		configLogger := loggers.GetLogger("config")
		watcher, err := config.NewConfigWatcher(configLogger, a.configPath, ReloadDebounce,
			config.RuleReloader(configLogger, monitor))
		if err != nil {
			a.closeDatabases()
			return nil, fmt.Errorf("failed to create config watcher: %w", err)
		}
		a.watcher = watcher
	}

	return a, nil
}

// registerCollectors builds probes for the host and every configured database.
func (a *Application) registerCollectors(ctx context.Context, reader probe.ResourceReader) error {
	if a.config.System.Enabled {
		sys := probe.NewSystemProbe(a.loggers.GetLogger("probe.system"), reader, a.config.System.SystemConfig)
		if err := a.monitor.RegisterCollector(sys.Name(), sys); err != nil {
			return err
		}
	}

	for _, dbCfg := range a.config.Databases {
		db, err := database.Connect(a.loggers.GetLogger("database"), dbCfg.Config)
		if err != nil {
			return fmt.Errorf("database %s: %w", dbCfg.Name, err)
		}
		a.databases = append(a.databases, db)

		// A database that is down at startup is still probed.
		if err := db.PingTimeout(ctx); err != nil {
			a.logger.Warn("Database unreachable at startup",
				zap.String("name", dbCfg.Name),
				zap.String("driver", db.Driver()),
				zap.Error(err),
			)
		}

		logger := a.loggers.GetLogger("probe.db")
		probes := []monitoring.Collector{probe.NewDatabaseProbe(logger, db)}
		names := []string{"db_" + dbCfg.Name}
		if dbCfg.ProbePool {
			probes = append(probes, probe.NewPoolProbe(db))
			names = append(names, "pool_"+dbCfg.Name)
		}
		if len(dbCfg.QueryProbe.Queries) > 0 {
			probes = append(probes, probe.NewQueryProbe(logger, dbCfg.Name, db.SQLX(), dbCfg.QueryProbe))
			names = append(names, "query_"+dbCfg.Name)
		}

		for i, c := range probes {
			if err := a.monitor.RegisterCollector(names[i], c); err != nil {
				return err
			}
		}
	}

	return nil
}

// Start starts all application components
func (a *Application) Start(ctx context.Context) error {
	a.logger.Info("Starting maplemon",
		zap.Int("databases", len(a.databases)),
		zap.Strings("collectors", a.monitor.Collectors()),
		zap.Int("rules", len(a.monitor.Rules())),
	)

	if err := a.monitor.Start(ctx); err != nil {
		return fmt.Errorf("failed to start monitor: %w", err)
	}

	if a.server != nil {
		if err := a.server.Start(ctx); err != nil {
			a.monitor.Stop()
			return fmt.Errorf("failed to start API server: %w", err)
		}
	}

	if a.watcher != nil {
		if err := a.watcher.Start(); err != nil {
			a.logger.Warn("Config hot reload disabled", zap.Error(err))
			a.watcher = nil
		}
	}

	a.logger.Info("maplemon started")
	return nil
}

// Shutdown gracefully shuts down all components
func (a *Application) Shutdown(ctx context.Context) error {
	a.logger.Info("Shutting down maplemon")

	ctx, cancel := context.WithTimeout(ctx, ShutdownTimeout)
	defer cancel()

	var errs error

	if a.watcher != nil {
		a.watcher.Stop()
	}

	if a.server != nil {
		timeout := a.config.API.ShutdownTimeout
		if timeout <= 0 {
			timeout = ShutdownTimeout
		}
		apiCtx, apiCancel := context.WithTimeout(ctx, timeout)
		err := a.server.Shutdown(apiCtx)
		apiCancel()
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("api: %w", err))
		}
	}

	if err := a.monitor.Stop(); err != nil && !errors.Is(err, monitoring.ErrNotStarted) {
		errs = multierr.Append(errs, fmt.Errorf("monitor: %w", err))
	}

	errs = multierr.Append(errs, a.closeDatabases())
	if errs != nil {
		return errs
	}
	a.logger.Info("Application shutdown complete")
	return nil
}

func (a *Application) closeDatabases() error {
	var errs error
	for _, db := range a.databases {
		if err := db.Close(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("database %s: %w", db.Name(), err))
		}
	}
	a.databases = nil
	return errs
}

// Monitor returns the pipeline.
func (a *Application) Monitor() *monitoring.Monitor { return a.monitor }

// Registry returns the Prometheus registry served on /metrics.
func (a *Application) Registry() *prometheus.Registry { return a.registry }

// APIAddr returns the bound API address, or "" when the API is disabled.
func (a *Application) APIAddr() string {
	if a.server == nil {
		return ""
	}
	return a.server.Addr()
}
