// Package cmd provides the CLI commands for extsearch.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	exterrors "github.com/Aman-CERP/extsearch/internal/errors"
	"github.com/Aman-CERP/extsearch/internal/logging"
	"github.com/Aman-CERP/extsearch/pkg/version"
)

// Global flags
var (
	debugMode      bool
	dbPath         string
	configPath     string
	loggingCleanup func()
)

// NewRootCmd creates the root command for the extsearch CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extsearch",
		Short: "Build and run extended search queries for workspace models",
		Long: `extsearch builds boosted query trees for indexed workspace models
from layered search settings, compiles them to Elasticsearch/OpenSearch
query DSL and runs them against a local bleve index or a cluster.

Settings resolve from the database overrides, SEARCH_EXTENDED__* environment
variables, field declarations, the config file and built-in defaults, in
that order.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("extsearch version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.extsearch/logs/")
	cmd.PersistentFlags().StringVar(&dbPath, "db", "", "Settings database path (overrides storage.database_path)")
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: user config + .extsearch.yaml)")

	cmd.PersistentPreRunE = startLogging
	cmd.PersistentPostRunE = stopLogging

	cmd.AddCommand(newQueryCmd())
	cmd.AddCommand(newMappingCmd())
	cmd.AddCommand(newSettingsCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// startLogging installs the debug file logger when --debug is set.
func startLogging(_ *cobra.Command, _ []string) error {
	if !debugMode {
		return nil
	}
	logger, cleanup, err := logging.Setup(logging.DebugConfig())
	if err != nil {
		return fmt.Errorf("failed to setup debug logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	slog.Info("debug_logging_enabled",
		slog.String("log_file", logging.DefaultLogPath()),
		slog.String("version", version.Version))
	return nil
}

func stopLogging(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		slog.Info("debug_logging_stopped")
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// Execute runs the root command and prints any error for the terminal.
func Execute() error {
	cmd := NewRootCmd()
	err := cmd.Execute()
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), exterrors.FormatForCLI(err))
	}
	return err
}
