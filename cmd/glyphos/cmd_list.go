package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"glyphos/pkg/lexicon"
)

// newListCmd creates the "glyphos list" subcommand.
func newListCmd(flags *globalFlags) *cobra.Command {
	var (
		gate     string
		limit    int
		offset   int
		archived bool
		reason   string
		runID    string
		key      string
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List active or archived glyphs",
		Long: "List active glyphs ordered by id, optionally filtered by gate. With --archived,\n" +
			"list archived rows filtered by --reason, --run or --key instead.",
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(cmd, flags)
			if err != nil {
				return err
			}
			defer a.close()

			ctx := ctxOf(cmd)
			out := cmd.OutOrStdout()

			if archived {
				rows, err := a.store.ListArchived(ctx, lexicon.ArchivedOpts{NormalizedKey: key, Reason: reason, RunID: runID})
				if err != nil {
					return fmt.Errorf("list: %w", err)
				}
				if asJSON {
					return writeJSON(out, rows)
				}
				fmt.Fprint(out, formatArchivedTable(rows))
				return nil
			}

			if gate != "" && !a.cfg.HasGate(gate) {
				return usageError(fmt.Sprintf("unknown gate %q", gate))
			}
			glyphs, err := a.store.List(ctx, lexicon.ListOpts{Gate: gate, Limit: limit, Offset: offset})
			if err != nil {
				return fmt.Errorf("list: %w", err)
			}
			if asJSON {
				return writeJSON(out, glyphs)
			}
			fmt.Fprint(out, formatGlyphTable(glyphs))
			return nil
		},
	}

	cmd.Flags().StringVar(&gate, "gate", "", "filter by gate")
	cmd.Flags().IntVar(&limit, "limit", 50, "max rows (0 for all)")
	cmd.Flags().IntVar(&offset, "offset", 0, "rows to skip")
	cmd.Flags().BoolVar(&archived, "archived", false, "list archived rows")
	cmd.Flags().StringVar(&reason, "reason", "", "archived: filter by archive reason")
	cmd.Flags().StringVar(&runID, "run", "", "archived: filter by run id")
	cmd.Flags().StringVar(&key, "key", "", "archived: filter by normalized key")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}
