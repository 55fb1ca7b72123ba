// Package main is the entry point for config-sync, which keeps the
// document directory in step with a remote git repository or S3 prefix.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/szaher/config-manager/internal/config"
	"github.com/szaher/config-manager/internal/docsync"
	"github.com/szaher/config-manager/internal/runtime"
	"github.com/szaher/config-manager/internal/telemetry"
)

var version = "0.1.0"

type syncFlags struct {
	configFile string
	repoURL    string
	localPath  string
	branch     string
	interval   int
	schedule   string
	once       bool
	apply      bool
	debug      bool

	source   string
	bucket   string
	prefix   string
	region   string
	endpoint string
}

func newRootCmd() *cobra.Command {
	var f syncFlags

	cmd := &cobra.Command{
		Use:     "config-sync",
		Short:   "Keep the configuration documents in sync with a remote source",
		Version: version,
		Long: `config-sync polls a git repository (or an S3 prefix) and updates the
local document directory when the remote changes. With --apply it runs a
config-manager batch after every sync that changed the documents.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, f)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.configFile, "config", config.DefaultPath, "Path to the tool configuration file")
	fl.StringVarP(&f.repoURL, "repo-url", "r", "", "Git repository URL")
	fl.StringVarP(&f.localPath, "local-path", "l", "", "Local clone path")
	fl.StringVarP(&f.branch, "branch", "b", "", "Branch to track")
	fl.IntVarP(&f.interval, "interval", "i", 0, "Sync interval in minutes")
	fl.StringVar(&f.schedule, "schedule", "", "Cron expression or descriptor; overrides --interval")
	fl.BoolVar(&f.once, "once", false, "Sync once and exit")
	fl.BoolVar(&f.apply, "apply", false, "Run a batch after a sync that changed the documents")
	fl.BoolVarP(&f.debug, "debug", "d", false, "Enable debug logging")
	fl.StringVar(&f.source, "source", "", "Document source (git or s3)")
	fl.StringVar(&f.bucket, "bucket", "", "S3 bucket")
	fl.StringVar(&f.prefix, "prefix", "", "S3 key prefix")
	fl.StringVar(&f.region, "region", "", "S3 region")
	fl.StringVar(&f.endpoint, "endpoint", "", "S3-compatible endpoint URL")
	return cmd
}

func (f syncFlags) overlay(cfg *config.Config) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&cfg.Sync.RepoURL, f.repoURL)
	set(&cfg.Sync.Branch, f.branch)
	set(&cfg.Sync.Schedule, f.schedule)
	set(&cfg.Sync.Source, f.source)
	set(&cfg.Sync.S3.Bucket, f.bucket)
	set(&cfg.Sync.S3.Prefix, f.prefix)
	set(&cfg.Sync.S3.Region, f.region)
	set(&cfg.Sync.S3.Endpoint, f.endpoint)
	if f.localPath != "" {
		cfg.SetLocalPath(f.localPath)
	}
	if f.interval > 0 {
		cfg.Sync.IntervalMinutes = f.interval
	}
	if f.debug {
		cfg.Log.Level = "debug"
	}
}

func run(cmd *cobra.Command, f syncFlags) error {
	cfg, err := config.Load(f.configFile, cmd.Flags().Changed("config"))
	if err != nil {
		return err
	}
	f.overlay(cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	level, err := config.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	format, err := telemetry.ParseFormat(cfg.Log.Format)
	if err != nil {
		return err
	}
	logger := telemetry.NewLogger(cmd.ErrOrStderr(), level, format)

	ctx := cmd.Context()
	source, err := newSource(ctx, cfg, logger)
	if err != nil {
		return err
	}

	schedule := cfg.Sync.Schedule
	if schedule == "" {
		schedule = docsync.EverySchedule(cfg.Sync.IntervalMinutes)
	}
	poller := &docsync.Poller{
		Source:   source,
		Schedule: schedule,
		Once:     f.once,
		Logger:   logger,
	}

	if f.apply {
		rt, err := runtime.New(cfg, runtime.Options{Logger: logger})
		if err != nil {
			return err
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := rt.Shutdown(sctx); err != nil {
				logger.Warn("shutdown", "error", err)
			}
		}()
		poller.OnChange = func(ctx context.Context) error {
			report, err := rt.RunShared(ctx)
			if err != nil {
				return err
			}
			logger.Info("batch finished",
				"run_id", report.RunID,
				"succeeded", report.Succeeded(),
				"failed", report.Failed(),
				"committed", report.Committed)
			return nil
		}
	}

	return poller.Run(ctx)
}

// newSource builds the configured document source. The git source keeps
// a clone at sync.local_path; the S3 source writes straight into the
// document directory.
func newSource(ctx context.Context, cfg *config.Config, logger *slog.Logger) (docsync.Source, error) {
	switch cfg.Sync.Source {
	case "", "git":
		return docsync.NewGitSource(cfg.Sync.RepoURL, cfg.Sync.LocalPath, cfg.Sync.Branch, nil, logger), nil
	case "s3":
		s3cfg := cfg.Sync.S3
		client, err := docsync.NewS3Client(ctx, docsync.S3ClientConfig{
			Region:          s3cfg.Region,
			Endpoint:        s3cfg.Endpoint,
			AccessKeyID:     s3cfg.AccessKeyID,
			SecretAccessKey: s3cfg.SecretAccessKey,
			UsePathStyle:    s3cfg.UsePathStyle,
		})
		if err != nil {
			return nil, err
		}
		return docsync.NewS3Source(client, s3cfg.Bucket, s3cfg.Prefix, cfg.Documents.Dir, cfg.Documents.Extensions, logger), nil
	default:
		return nil, fmt.Errorf("%w: %q", docsync.ErrUnknownSource, cfg.Sync.Source)
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
