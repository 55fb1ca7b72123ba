package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/szaher/config-manager/internal/document"
	"github.com/szaher/config-manager/internal/plan"
	"github.com/szaher/config-manager/internal/state"
)

func newStatusCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Compare the documents against the recorded fingerprints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			refs, err := document.Discover(cfg.Documents.Dir, cfg.Documents.Extensions)
			if err != nil {
				return err
			}
			store, err := state.NewLocalBackend(cfg.State.File, nil).Snapshot()
			if err != nil {
				return fmt.Errorf("read state: %w", err)
			}

			s, err := plan.FormatStatus(plan.DetectDrift(refs, store), output)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), s)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "text", "Output format (text, json or yaml)")
	return cmd
}
