package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"glyphos/pkg/config"
)

// newInitCmd creates the "glyphos init" subcommand.
func newInitCmd(flags *globalFlags) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the state directory, default config and database",
		Long: "Create $GLYPHOS_HOME with a default config file (YAML, or TOML when the\n" +
			"config path ends in .toml) and an empty lexicon database. An existing\n" +
			"config is kept unless --force is given.",
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			paths, err := ResolvePaths()
			if err != nil {
				return err
			}
			if flags.configPath != "" {
				paths.ConfigPath = flags.configPath
			}
			out := cmd.OutOrStdout()

			for _, dir := range []string{paths.Home, paths.BackupDir, paths.ReportDir, paths.InboxDir} {
				if err := os.MkdirAll(dir, 0o750); err != nil {
					return fmt.Errorf("init: %w", err)
				}
			}

			_, statErr := os.Stat(paths.ConfigPath)
			switch {
			case statErr == nil && !force:
				fmt.Fprintf(out, "config: %s (kept)\n", paths.ConfigPath)
			default:
				if err := config.DefaultConfig().Save(paths.ConfigPath); err != nil {
					return fmt.Errorf("init: %w", err)
				}
				fmt.Fprintf(out, "config: %s (written)\n", paths.ConfigPath)
			}

			a, err := loadApp(cmd, flags)
			if err != nil {
				return err
			}
			defer a.close()

			fmt.Fprintf(out, "database: %s\n", a.store.Path())
			fmt.Fprintf(out, "backups: %s\n", a.cfg.Backup.Dir)
			fmt.Fprintf(out, "reports: %s\n", a.cfg.Store.ReportDir)
			fmt.Fprintf(out, "inbox: %s\n", paths.InboxDir)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config with the defaults")
	return cmd
}
