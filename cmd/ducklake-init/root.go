package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Semprini/data-products/ducklake-init/internal/config"
	"github.com/Semprini/data-products/ducklake-init/internal/telemetry"
)

// cli carries the flag values and the loaded config between the persistent
// pre-run and the subcommands.
type cli struct {
	cfgFile  string
	logLevel string
	cfg      *config.Config
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:   "ducklake-init",
		Short: "Bootstrap a DuckLake catalog and keep the container alive",
		Long: `ducklake-init renders ~/.duckdbrc, waits for Postgres and the S3-compatible
object store, ensures the lake bucket exists, attaches the DuckLake catalog
and then idles until it receives SIGINT or SIGTERM.

Any failure before the lake is attached exits non-zero.`,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBootstrap(cmd.Context(), c.cfg)
		},
	}

	root.PersistentFlags().StringVar(&c.cfgFile, "config", "", "path to config file (YAML)")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	root.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		initLogger(c.logLevel)

		cfg, err := config.Load(c.cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		// --log-level wins over the config file.
		if cmd.Flags().Changed("log-level") {
			cfg.Telemetry.LogLevel = c.logLevel
		} else if cfg.Telemetry.LogLevel != "" {
			initLogger(cfg.Telemetry.LogLevel)
		}

		// Nothing touches the network before this check passes.
		if err := cfg.Validate(); err != nil {
			return err
		}

		c.cfg = cfg
		return nil
	}

	root.AddCommand(newRenderCmd(c))
	return root
}

// Execute is the entry point called by main.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func initLogger(level string) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(telemetry.NewTraceHandler(handler)))
}
