package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newRestoreCmd creates the "glyphos restore" subcommand.
func newRestoreCmd(flags *globalFlags) *cobra.Command {
	var archivedID int64

	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Move an archived glyph back into the active lexicon",
		Long: "Restore the archived row with --archived-id under its original glyph id.\n" +
			"Fails with a dedup conflict when a newer active glyph holds the same key.",
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			if archivedID <= 0 {
				return usageError("--archived-id must be a positive integer")
			}

			a, err := loadApp(cmd, flags)
			if err != nil {
				return err
			}
			defer a.close()

			g, err := a.store.Restore(ctxOf(cmd), archivedID)
			if err != nil {
				return fmt.Errorf("restore: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Restored glyph %d: %s\n", g.ID, g.Name)
			return nil
		},
	}

	cmd.Flags().Int64Var(&archivedID, "archived-id", 0, "archived row id (see \"glyphos list --archived\")")
	return cmd
}
