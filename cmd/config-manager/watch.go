package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/szaher/config-manager/internal/runtime"
	"github.com/szaher/config-manager/internal/watch"
)

func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Apply once, then re-apply whenever the document directory changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			rt, err := runtime.New(cfg, runtime.Options{Logger: logger})
			if err != nil {
				return err
			}
			defer shutdown(rt, logger)
			if err := rt.StartMetrics(); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			reconcile := func(ctx context.Context) {
				report, err := rt.RunShared(ctx)
				if err != nil {
					logger.Warn("batch not run", "error", err)
					return
				}
				printReport(out, report)
				fmt.Fprintln(out)
			}

			reconcile(cmd.Context())
			w := &watch.Watcher{
				Dir:        cfg.Documents.Dir,
				Extensions: cfg.Documents.Extensions,
				Debounce:   cfg.Watch.Debounce,
				Trigger:    reconcile,
				Logger:     logger,
			}
			return w.Run(cmd.Context())
		},
	}
	return cmd
}
