package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"glyphos/pkg/protocol"
)

// formatHistory renders a version trail, oldest first.
func formatHistory(versions []protocol.GlyphVersion) string {
	if len(versions) == 0 {
		return "No history found.\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-6s %-8s %-20s %s\n", "SEQ", "CHANGE", "AT", "RUN")
	for _, v := range versions {
		fmt.Fprintf(&b, "%-6d %-8s %-20s %s\n",
			v.Seq, v.Change, v.CreatedAt.UTC().Format("2006-01-02 15:04:05"), v.RunID)
	}
	return b.String()
}

// newHistoryCmd creates the "glyphos history" subcommand.
func newHistoryCmd(flags *globalFlags) *cobra.Command {
	var snapshots bool

	cmd := &cobra.Command{
		Use:   "history <glyph-id>",
		Short: "Show the version trail of a glyph",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := protocol.ParseID(args[0])
			if err != nil {
				return err
			}

			a, err := loadApp(cmd, flags)
			if err != nil {
				return err
			}
			defer a.close()

			versions, err := a.store.Versions(ctxOf(cmd), id)
			if err != nil {
				return fmt.Errorf("history: %w", err)
			}
			if snapshots {
				return writeJSON(cmd.OutOrStdout(), versions)
			}
			fmt.Fprint(cmd.OutOrStdout(), formatHistory(versions))
			return nil
		},
	}

	cmd.Flags().BoolVar(&snapshots, "snapshots", false, "print every version with its JSON snapshot")
	return cmd
}
