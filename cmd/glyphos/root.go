package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"glyphos/internal/appversion"
)

// newRootCmd creates the root glyphos command with all subcommands attached.
func newRootCmd() *cobra.Command {
	flags := &globalFlags{}
	cmd := &cobra.Command{
		Use:           "glyphos",
		Short:         "Glyph lexicon lifecycle",
		Long:          "glyphos maintains the emotional glyph lexicon: ingestion, pruning and\nreversible archival, retrieval, reply composition and the feedback log.",
		Version:       fmt.Sprintf("glyphos %s", appversion.String()),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("{{.Version}}\n")
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError(err.Error())
	})
	cmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "config file (default $GLYPHOS_HOME/config.yaml)")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	cmd.AddCommand(
		newInitCmd(flags),
		newIngestCmd(flags),
		newImportCmd(flags),
		newPruneCmd(flags),
		newRestoreCmd(flags),
		newBackupCmd(flags),
		newStatsCmd(flags),
		newListCmd(flags),
		newSearchCmd(flags),
		newHistoryCmd(flags),
		newEditCmd(flags),
		newRetrieveCmd(flags),
		newComposeCmd(flags),
		newFeedbackCmd(flags),
		newMaintainCmd(flags),
		newRPCCmd(flags),
	)

	return cmd
}
