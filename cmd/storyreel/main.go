package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/skypro1111/storyreel/internal/config"
	"github.com/skypro1111/storyreel/internal/history"
	"github.com/skypro1111/storyreel/internal/metrics"
	"github.com/skypro1111/storyreel/internal/pipeline"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "storyreel"
	serviceVersion    = "1.0.0"
)

var (
	configPathFlag string
	baseURLFlag    string
	logLevelFlag   string
)

// app holds the components shared by all commands
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	client   *pipeline.Client
	history  *history.Store // nil when history is disabled
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:           serviceName,
		Short:         "Turn a story, a photo and your voice into a narrated video",
		Version:       serviceVersion,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPathFlag, "config", "c", defaultConfigPath, "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&baseURLFlag, "base-url", "", "Pipeline service base URL (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Log level: debug, info, warn, error (overrides config)")

	rootCmd.AddCommand(
		newRecordCmd(a),
		newGenerateCmd(a),
		newLogsCmd(a),
		newStylesCmd(a),
		newHistoryCmd(a),
	)

	return rootCmd
}

// init loads configuration and builds the shared components
func (a *app) init() error {
	if err := config.LoadDotEnv(".env", ".env.local"); err != nil {
		return err
	}

	cfg, err := config.Load(configPathFlag, configPathFlag == defaultConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if baseURLFlag != "" {
		cfg.Service.BaseURL = baseURLFlag
	}
	if logLevelFlag != "" {
		cfg.Logging.Level = logLevelFlag
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	a.cfg = cfg

	a.logger = initLogger(cfg.Logging)
	a.logger.Debug("Configuration loaded",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", configPathFlag),
		slog.String("base_url", cfg.Service.BaseURL),
		slog.Duration("poll_interval", cfg.Service.GetPollInterval()),
		slog.String("history_path", cfg.History.Path),
	)

	a.registry = prometheus.NewRegistry()
	a.metrics = metrics.NewMetrics(a.registry)

	a.client, err = pipeline.NewClient(pipeline.Config{
		BaseURL:         cfg.Service.BaseURL,
		RequestTimeout:  cfg.Service.GetRequestTimeout(),
		GenerateTimeout: cfg.Service.GetGenerateTimeout(),
		UserAgent:       serviceName + "/" + serviceVersion,
	})
	if err != nil {
		return fmt.Errorf("failed to create pipeline client: %w", err)
	}

	if cfg.History.Path != "" {
		a.history, err = history.Open(cfg.History.Path)
		if err != nil {
			a.logger.Warn("Run history disabled",
				slog.String("path", cfg.History.Path),
				slog.String("error", err.Error()),
			)
			a.history = nil
		}
	}

	return nil
}

func (a *app) close() {
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			a.logger.Warn("Failed to close history", slog.String("error", err.Error()))
		}
	}
}

// initLogger initializes the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	// Logs go to stderr by default so stdout stays free for command output
	var output *os.File
	switch cfg.Output {
	case "stdout":
		output = os.Stdout
	case "stderr", "":
		output = os.Stderr
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stderr\n", cfg.Output, err)
			output = os.Stderr
		} else {
			output = file
		}
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}

// formatDuration renders d as mm:ss
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	return fmt.Sprintf("%02d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}
