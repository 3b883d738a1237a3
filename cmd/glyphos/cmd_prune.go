package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"glyphos/pkg/consolidate"
)

// printPruneResult writes the report locations and counts of a run. It runs
// on failed runs too, since reports are written even when a run aborts.
func printPruneResult(w io.Writer, res consolidate.Result) {
	if res.RunID == "" {
		return
	}
	fmt.Fprintf(w, "run: %s\n", res.RunID)
	if res.DryRunReport != "" {
		fmt.Fprintf(w, "dry-run report: %s\n", res.DryRunReport)
	}
	if res.ReviewReport != "" {
		fmt.Fprintf(w, "review report: %s\n", res.ReviewReport)
	}
	if res.BackupPath != "" {
		fmt.Fprintf(w, "backup: %s\n", res.BackupPath)
	}
	if res.PostReport != "" {
		fmt.Fprintf(w, "post report: %s\n", res.PostReport)
		fmt.Fprintf(w, "archived: %d\n", len(res.Archived))
	}
	for _, f := range res.Failures {
		fmt.Fprintf(w, "failed: glyph %d: %v\n", f.GlyphID, f.Err)
	}
	if res.Partial {
		fmt.Fprintln(w, "run stopped early; the post report lists what was archived")
	}
}

// newPruneCmd creates the "glyphos prune" subcommand.
func newPruneCmd(flags *globalFlags) *cobra.Command {
	var (
		dryRun   bool
		apply    bool
		gateCaps bool
		noStrict bool
	)

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Plan or apply consolidation of noisy and duplicate glyphs",
		Long: "Plan a consolidation run and write its CSV reports (--dry-run, the default),\n" +
			"or back up the database and archive every planned glyph (--apply).\n" +
			"--gate-caps adds advisory per-gate caps from the config. Archived glyphs\n" +
			"can be brought back with \"glyphos restore\".",
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			if dryRun && apply {
				return usageError("--dry-run and --apply are mutually exclusive")
			}
			opts := consolidate.Options{Strict: !noStrict, GateCaps: gateCaps}
			if !opts.Strict && !opts.GateCaps {
				return usageError("nothing to plan: --no-strict without --gate-caps")
			}

			a, err := loadApp(cmd, flags)
			if err != nil {
				return err
			}
			defer a.close()

			ctx := ctxOf(cmd)
			out := cmd.OutOrStdout()
			p := a.pruner(ctx)

			if !apply {
				plan, res, err := p.DryRun(ctx, opts)
				printPruneResult(out, res)
				if err != nil {
					return fmt.Errorf("prune: %w", err)
				}
				fmt.Fprintf(out, "candidates: %d in %d rows, %d flagged for review\n",
					plan.RemoveCount(), len(plan.Rows), len(plan.Review))
				return nil
			}

			res, err := p.Apply(ctx, opts)
			printPruneResult(out, res)
			if err != nil {
				return fmt.Errorf("prune: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "write reports only (default)")
	cmd.Flags().BoolVar(&apply, "apply", false, "back up, then archive the planned glyphs")
	cmd.Flags().BoolVar(&gateCaps, "gate-caps", false, "also enforce per-gate caps")
	cmd.Flags().BoolVar(&noStrict, "no-strict", false, "skip strict duplicate pruning")
	return cmd
}
