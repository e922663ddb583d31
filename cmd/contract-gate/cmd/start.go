package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Sentinel-Gate/Contractgate/internal/adapter/inbound/http"
	"github.com/Sentinel-Gate/Contractgate/internal/adapter/outbound/telemetry"
	"github.com/Sentinel-Gate/Contractgate/internal/config"
	"github.com/Sentinel-Gate/Contractgate/internal/service"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the gate",
	Long: `Start the Contract Gate server.

The server exposes:
  POST /v1/access   verify a data access against its agreement
  GET  /healthz     health of the store and the enforcement sweep
  GET  /metrics     Prometheus metrics

When sweep.enabled is true, deletion duties are enforced on sweep.schedule.

Examples:
  # Start with config file settings
  contract-gate start

  # Start without a config file, with in-memory storage and debug logging
  contract-gate start --dev

  # Start with a specific config file
  contract-gate --config /path/to/config.yaml start`,
	RunE: runStart,
}

var devMode bool

func init() {
	startCmd.Flags().BoolVar(&devMode, "dev", false, "Enable development mode (debug logging, default connector id)")
	rootCmd.AddCommand(startCmd)
}

// loadConfig loads, defaults and validates the configuration.
func loadConfig() (*config.GateConfig, error) {
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if devMode {
		cfg.DevMode = true
	}
	cfg.SetDevDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// newLogger writes text logs to stderr. DevMode always forces debug.
func newLogger(cfg *config.GateConfig) *slog.Logger {
	level := parseLogLevel(cfg.Server.LogLevel)
	if cfg.DevMode {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// stop() restores default signal handling so a second Ctrl+C kills.
	ctx, stop := signal.NotifyContext(context.Background(), gracefulSignals()...)
	go func() {
		<-ctx.Done()
		stop()
	}()

	logger := newLogger(cfg)
	if configFile := config.ConfigFileUsed(); configFile != "" {
		logger.Info("loaded config", "file", configFile)
	}
	if cfg.DevMode {
		logger.Warn("development mode enabled", "connector_id", cfg.Connector.ID)
	}

	pidPath := pidFilePath()
	if err := writePIDFile(pidPath); err != nil {
		logger.Warn("failed to write PID file", "path", pidPath, "error", err)
	} else {
		defer os.Remove(pidPath)
	}

	if err := run(ctx, cfg, logger); err != nil {
		return err
	}
	logger.Info("contract-gate stopped")
	return nil
}

// run wires the gate and serves until ctx is cancelled.
func run(ctx context.Context, cfg *config.GateConfig, logger *slog.Logger) error {
	server := http.NewServer(http.WithAddr(cfg.Server.HTTPAddr), http.WithLogger(logger))

	stats := service.NewStatsService()
	recorder := service.Recorders(server.Metrics(), stats)
	if cfg.Tracing.Enabled {
		providers, err := telemetry.Setup(os.Stderr, 0)
		if err != nil {
			return fmt.Errorf("failed to set up telemetry: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := providers.Shutdown(shutdownCtx); err != nil {
				logger.Warn("telemetry shutdown failed", "error", err)
			}
		}()
		otelRecorder, err := telemetry.NewRecorder(providers.Meter)
		if err != nil {
			return fmt.Errorf("failed to create telemetry recorder: %w", err)
		}
		recorder = service.Recorders(server.Metrics(), stats, otelRecorder)
		logger.Info("telemetry enabled", "exporter", "stdout")
	}

	g, err := buildGate(ctx, cfg, recorder, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := g.Close(); err != nil {
			logger.Warn("failed to close gate", "error", err)
		}
	}()

	var store http.Pinger
	if g.db != nil {
		store = g.db
	}
	var scheduler http.SchedulerStatus
	if cfg.Sweep.Enabled {
		if err := g.scheduler.Start(ctx); err != nil {
			return fmt.Errorf("failed to start enforcement sweep: %w", err)
		}
		defer g.scheduler.Stop()
		scheduler = g.scheduler
	}

	server.Configure(
		http.WithVerifier(g.verifier),
		http.WithHealthChecker(http.NewHealthChecker(store, scheduler, Version).WithStats(stats)),
	)

	logger.Info("contract-gate started",
		"connector_id", cfg.Connector.ID,
		"addr", cfg.Server.HTTPAddr,
		"storage", cfg.Storage.Driver,
		"sweep", cfg.Sweep.Enabled,
	)
	return server.Start(ctx)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// pidFilePath returns where the running server records its PID.
func pidFilePath() string {
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, ".contract-gate", "server.pid")
	}
	return filepath.Join(os.TempDir(), "contract-gate-server.pid")
}

// writePIDFile writes the current PID, creating parent directories.
func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0644)
}
