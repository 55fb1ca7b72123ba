// Package main is the entry point for the config-manager CLI.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/szaher/config-manager/internal/config"
	"github.com/szaher/config-manager/internal/telemetry"
)

// Version information set at build time.
var version = "0.1.0"

// Global flags.
var (
	configFile string
	docsDir    string
	stateFile  string
	logFormat  string
	debug      bool
)

// errBatchFailed reports a batch whose summary has already been printed.
var errBatchFailed = errors.New("one or more documents failed")

func newRootCmd() *cobra.Command {
	var dryRun bool

	root := &cobra.Command{
		Use:   "config-manager",
		Short: "Converge this host to its declarative configuration documents",
		Long: `config-manager reads YAML configuration documents from a directory and
converges the host to them: packages are removed and installed, files are
written with their ownership and mode, and services are started and enabled.
Documents whose content has not changed since the last successful run are
skipped.

Without a subcommand it behaves like "config-manager apply".`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(cmd, dryRun)
		},
	}

	root.PersistentFlags().StringVar(&configFile, "config", config.DefaultPath, "Path to the tool configuration file")
	root.PersistentFlags().StringVarP(&docsDir, "config-dir", "c", "", "Directory containing configuration documents")
	root.PersistentFlags().StringVar(&stateFile, "state-file", "", "Path to the fingerprint state file")
	root.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format (text or json)")
	root.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	root.Flags().BoolVar(&dryRun, "dry-run", false, "Print the plan without changing the host")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newApplyCmd())
	root.AddCommand(newPlanCmd())
	root.AddCommand(newValidateCmd())
	root.AddCommand(newStatusCmd())
	root.AddCommand(newWatchCmd())

	return root
}

// loadConfig resolves the configuration file, environment and flags,
// in increasing precedence, and builds the logger.
func loadConfig(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configFile, cmd.Flags().Changed("config"))
	if err != nil {
		return nil, nil, err
	}
	if docsDir != "" {
		cfg.Documents.Dir = docsDir
	}
	if stateFile != "" {
		cfg.State.File = stateFile
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	if debug {
		cfg.Log.Level = "debug"
	}

	level, err := config.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, nil, err
	}
	format, err := telemetry.ParseFormat(cfg.Log.Format)
	if err != nil {
		return nil, nil, err
	}
	return cfg, telemetry.NewLogger(cmd.ErrOrStderr(), level, format), nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errBatchFailed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		stop()
		os.Exit(1)
	}
}
