package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// newSearchCmd creates the "glyphos search" subcommand.
func newSearchCmd(flags *globalFlags) *cobra.Command {
	var (
		limit  int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "search <term>...",
		Short: "Full-text search over glyph names and keywords",
		Args:  minArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd, flags)
			if err != nil {
				return err
			}
			defer a.close()

			terms := strings.Fields(strings.Join(args, " "))
			glyphs, err := a.store.Search(ctxOf(cmd), terms, limit)
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), glyphs)
			}
			fmt.Fprint(cmd.OutOrStdout(), formatGlyphTable(glyphs))
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "max results")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}
