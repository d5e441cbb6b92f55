package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jordanhubbard/mmgen/internal/logging"
	"github.com/jordanhubbard/mmgen/internal/metrics"
	"github.com/jordanhubbard/mmgen/internal/telemetry"
	"github.com/jordanhubbard/mmgen/pkg/config"
)

var (
	configPath string
	logLevel   string

	cfg  *config.Config
	logs *logging.Manager
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	releaseOnDone(ctx, stop)

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// releaseOnDone restores default signal handling once ctx is cancelled, so
// a second interrupt during the final flush ends the process.
func releaseOnDone(ctx context.Context, stop context.CancelFunc) <-chan struct{} {
	released := make(chan struct{})
	go func() {
		<-ctx.Done()
		stop()
		close(released)
	}()
	return released
}

func newRootCommand() *cobra.Command {
	var shutdown func(context.Context) error

	rootCmd := &cobra.Command{
		Use:   "mmgen",
		Short: "Generate tool-use datasets and MCP wrappers for model-management servers",
		Long: `mmgen builds balanced, resumable instruction datasets for EMF and ATL tool
servers, and generates or serves MCP wrappers from OpenAPI documents and
transformation lists.`,
		Version:       telemetry.Version,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logging.NewLogger(logLevel, os.Stderr)
			if err != nil {
				return err
			}
			logs = logging.NewManager(logger)
			logs.AddHandler(func(e logging.LogEntry) {
				metrics.NewMetrics().RecordLogEntry(e.Level, e.Source)
			})
			logs.InstallLogInterceptor()

			cfg, err = config.Load(configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			shutdown, err = telemetry.InitTelemetry(cmd.Context(), cfg.Telemetry.ServiceName, cfg.Telemetry.OTLPEndpoint)
			if err != nil {
				log.Printf("[Main] Warning: Failed to initialize telemetry: %v", err)
				shutdown = nil
			}

			if addr := cfg.Metrics.ListenAddr; addr != "" {
				go func() {
					if err := metrics.Serve(cmd.Context(), addr); err != nil {
						log.Printf("[Main] Warning: metrics listener stopped: %v", err)
					}
				}()
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if shutdown != nil {
				if err := shutdown(context.Background()); err != nil {
					log.Printf("[Main] Error shutting down telemetry: %v", err)
				}
			}
			if logs != nil {
				_ = logs.Sync()
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to configuration file (default $"+config.EnvConfigPath+")")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(newGenerateCommand())
	rootCmd.AddCommand(newMergeCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newDiscoverCommand())
	rootCmd.AddCommand(newMCPGenCommand())
	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newExportCommand())
	rootCmd.AddCommand(newVersionCommand())
	return rootCmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "mmgen %s\n", telemetry.Version)
			return nil
		},
	}
}
