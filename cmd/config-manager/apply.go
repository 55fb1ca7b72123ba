package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/szaher/config-manager/internal/batch"
	"github.com/szaher/config-manager/internal/runtime"
)

func newApplyCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Converge the host to every document in the directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(cmd, dryRun)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the plan without changing the host")
	return cmd
}

func runApply(cmd *cobra.Command, dryRun bool) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if dryRun {
		return runPlan(cmd, cfg, "text")
	}

	rt, err := runtime.New(cfg, runtime.Options{Logger: logger})
	if err != nil {
		return err
	}
	defer shutdown(rt, logger)

	refs, err := rt.Orchestrator().Discover(cfg.Documents.Dir)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Found %d document(s)\n\n", len(refs))

	report := rt.Orchestrator().RunRefs(cmd.Context(), refs)
	printReport(out, report)
	if !report.OK() {
		return errBatchFailed
	}
	return nil
}

// printReport writes the batch summary followed by one line per document.
func printReport(w io.Writer, report *batch.Report) {
	fmt.Fprintf(w, "Processed %d documents: %d succeeded, %d failed\n",
		len(report.Results), report.Succeeded(), report.Failed())
	for _, res := range report.Results {
		status := "OK"
		if !res.Succeeded {
			status = "FAILED"
		}
		fmt.Fprintf(w, "[%s] %s: %s\n", status, res.Key, res.Message)
	}
}

func shutdown(rt *runtime.Runtime, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rt.Shutdown(ctx); err != nil {
		logger.Warn("shutdown", "error", err)
	}
}
