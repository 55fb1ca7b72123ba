package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/szaher/config-manager/internal/batch"
	"github.com/szaher/config-manager/internal/config"
	"github.com/szaher/config-manager/internal/document"
	"github.com/szaher/config-manager/internal/expr"
	"github.com/szaher/config-manager/internal/plan"
	"github.com/szaher/config-manager/internal/state"
)

func newPlanCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show what apply would change without running any command",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runPlan(cmd, cfg, format)
		},
	}

	cmd.Flags().StringVar(&format, "format", "text", "Output format (text or json)")
	return cmd
}

// runPlan prints the plan for the document directory. The fingerprint
// store is read but never created.
func runPlan(cmd *cobra.Command, cfg *config.Config, format string) error {
	refs, err := discover(cfg)
	if err != nil {
		return err
	}
	store, err := state.NewLocalBackend(cfg.State.File, nil).Snapshot()
	if err != nil {
		return fmt.Errorf("read state: %w", err)
	}

	p := plan.ComputePlan(refs, store, expr.CurrentFacts())
	out := cmd.OutOrStdout()
	switch format {
	case "json":
		s, err := plan.FormatJSON(p)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, s)
	case "text", "":
		fmt.Fprint(out, plan.FormatText(p))
	default:
		return fmt.Errorf("unknown format %q (want text or json)", format)
	}

	if p.Invalid > 0 {
		return fmt.Errorf("%d invalid document(s)", p.Invalid)
	}
	return nil
}

func discover(cfg *config.Config) ([]document.Ref, error) {
	refs, err := document.Discover(cfg.Documents.Dir, cfg.Documents.Extensions)
	if err != nil {
		return nil, err
	}
	if len(refs) == 0 {
		return nil, fmt.Errorf("%w in %s", batch.ErrNoDocuments, cfg.Documents.Dir)
	}
	return refs, nil
}
