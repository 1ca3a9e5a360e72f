package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/Await-d/maple-blog-sub005/internal/app"
	"github.com/Await-d/maple-blog-sub005/internal/config"
	"github.com/Await-d/maple-blog-sub005/internal/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the collection pipeline and API",
		Long: `Start collecting metrics with the specified configuration.

Examples:
  # Start with defaults
  maplemon start

  # Start with a config file; alert rules reload when it changes
  maplemon start --config maplemon.yaml

  # Override the listen address and interval
  maplemon start --listen :9500 --interval 30s`,
		Args: cobra.NoArgs,
		RunE: runStart,
	}

	cmd.Flags().String("listen", "", "API listen address (overrides config)")
	cmd.Flags().Duration("interval", 0, "collection interval (overrides config)")
	cmd.Flags().String("log-level", "", "log level (overrides config)")
	return cmd
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := applyStartOverrides(cmd, cfg); err != nil {
		return err
	}

	factory, err := logging.NewLoggerFactory(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer factory.Sync()
	logger := factory.Root()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting maplemon",
		zap.String("version", Version),
		zap.String("config", cfgFile),
	)

	var opts []app.Option
	if cfgFile != "" {
		opts = append(opts, app.WithConfigPath(cfgFile))
	}

	application, err := app.New(ctx, factory, cfg, opts...)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	// Signals drive the ordered Shutdown below, not the scheduler context.
	if err := application.Start(context.Background()); err != nil {
		application.Shutdown(context.Background())
		return fmt.Errorf("failed to start application: %w", err)
	}

	if addr := application.APIAddr(); addr != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "maplemon %s listening on %s\n", Version, addr)
	}

	<-ctx.Done()
	logger.Info("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.ShutdownTimeout)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
		return err
	}
	return nil
}

func applyStartOverrides(cmd *cobra.Command, cfg *config.Config) error {
	if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
		cfg.API.ListenAddr = listen
	}
	if interval, _ := cmd.Flags().GetDuration("interval"); interval > 0 {
		cfg.Monitor.CollectionInterval = interval
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid overrides: %w", err)
	}
	return nil
}
