// Package main is the entry point for the warden binary. It stands up two
// listeners: the data listener, where the validation interceptor fronts the
// sample projects API, and the admin listener serving health and metrics.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/warden-proxy/warden/internal/app"
	"github.com/warden-proxy/warden/pkg/config"
	"github.com/warden-proxy/warden/pkg/logging"
	"github.com/warden-proxy/warden/pkg/middleware"
	"github.com/warden-proxy/warden/pkg/storage"
	"github.com/warden-proxy/warden/pkg/telemetry"
)

const defaultLogLevel = "info"

// CLIConfig holds the parsed CLI configuration
type CLIConfig struct {
	Config      string
	Listen      string
	AdminListen string
	LogLevel    string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd creates the root command for warden
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "warden",
		Short: "HTTP security validation gateway",
		Long: `Warden fronts an HTTP application and validates every inbound request
before application logic runs. Headers, query parameters, and bodies are
checked against size limits and a precompiled signature library; requests
that fail any check are rejected with a uniform 400 response.

Example:
  warden --config warden.yaml --listen :8080 --admin-listen :9090`,
		RunE: runServer,
	}

	rootCmd.Flags().StringP("config", "c", "", "Path to configuration file (YAML)")
	rootCmd.Flags().String("listen", "", "Data listener address (overrides config)")
	rootCmd.Flags().String("admin-listen", "", "Admin listener address (overrides config)")
	rootCmd.Flags().StringP("log-level", "l", defaultLogLevel, "Log level (debug, info, warn, error)")

	return rootCmd
}

// parseCLIConfig parses command line arguments and returns a CLIConfig
func parseCLIConfig(cmd *cobra.Command) (*CLIConfig, error) {
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, fmt.Errorf("failed to get config flag: %w", err)
	}
	listen, err := cmd.Flags().GetString("listen")
	if err != nil {
		return nil, fmt.Errorf("failed to get listen flag: %w", err)
	}
	adminListen, err := cmd.Flags().GetString("admin-listen")
	if err != nil {
		return nil, fmt.Errorf("failed to get admin-listen flag: %w", err)
	}
	logLevel, err := cmd.Flags().GetString("log-level")
	if err != nil {
		return nil, fmt.Errorf("failed to get log-level flag: %w", err)
	}

	return &CLIConfig{
		Config:      configPath,
		Listen:      listen,
		AdminListen: adminListen,
		LogLevel:    logLevel,
	}, nil
}

// runServer is the main entry point for the warden command
func runServer(cmd *cobra.Command, _ []string) error {
	cliConfig, err := parseCLIConfig(cmd)
	if err != nil {
		return err
	}

	cfg, err := config.Load(cliConfig.Config)
	if err != nil {
		return err
	}

	// CLI flags override config file values
	if cliConfig.Listen != "" {
		cfg.Server.DataAddress = cliConfig.Listen
	}
	if cliConfig.AdminListen != "" {
		cfg.Server.AdminAddress = cliConfig.AdminListen
	}
	if cmd.Flags().Changed("log-level") || cfg.Logging.Level == "" {
		cfg.Logging.Level = cliConfig.LogLevel
	}

	logger := logging.NewLogger(logging.Config{
		Level:  cfg.Logging.Level,
		Pretty: cfg.Logging.Pretty,
	})
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTelemetry, err := telemetry.SetupProvider(ctx, telemetry.Config{
		ServiceName: cfg.Telemetry.ServiceName,
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
		Environment: cfg.Telemetry.Environment,
		Insecure:    cfg.Telemetry.Insecure,
	})
	if err != nil {
		logger.Error("Failed to initialise telemetry", "error", err)
		return err
	}

	provider, closeProvider, err := buildProvider(cliConfig.Config, cfg, logger)
	if err != nil {
		logger.Error("Failed to compile validation configuration", "error", err)
		return err
	}
	defer closeProvider()

	store := storage.NewMemoryProjectStore()
	defer func() { _ = store.Close() }()

	metrics := middleware.NewMetrics()
	interceptor := middleware.New(middleware.Options{
		Provider: provider,
		Sink:     middleware.NewSlogSink(logger),
		Metrics:  metrics,
		Logger:   logger,
	})

	application := app.New(store, logger)
	dataHandler := otelhttp.NewHandler(interceptor.Wrap(application.Handler()), "warden.data")

	dataServer := &http.Server{
		Addr:              cfg.Server.DataAddress,
		Handler:           dataHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	adminMux := http.NewServeMux()
	adminMux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	adminMux.Handle("/metrics", metrics.Handler())
	adminServer := &http.Server{
		Addr:              cfg.Server.AdminAddress,
		Handler:           adminMux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Starting warden",
		"data_address", cfg.Server.DataAddress,
		"admin_address", cfg.Server.AdminAddress,
		"log_level", cfg.Logging.Level,
	)

	errCh := make(chan error, 2)
	go func() {
		if err := dataServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("data listener: %w", err)
		}
	}()
	go func() {
		if err := adminServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("admin listener: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		logger.Error("Listener error", "error", err)
		return err
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", "signal", sig.String())
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := dataServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during data listener shutdown", "error", err)
	}
	if err := adminServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during admin listener shutdown", "error", err)
	}
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		logger.Error("Error during telemetry shutdown", "error", err)
	}

	logger.Info("Warden stopped")
	return nil
}

// buildProvider selects the file-watching provider when a config path is
// given, otherwise compiles the loaded configuration once.
func buildProvider(path string, cfg *config.Config, logger *slog.Logger) (config.Provider, func(), error) {
	if path != "" {
		fp, err := config.NewFileProvider(path, logger)
		if err != nil {
			return nil, nil, err
		}
		return fp, func() { _ = fp.Close() }, nil
	}

	snap, err := cfg.Validation.Compile(1)
	if err != nil {
		return nil, nil, err
	}
	return config.NewStaticProvider(snap), func() {}, nil
}
