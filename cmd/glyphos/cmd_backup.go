package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newBackupCmd creates the "glyphos backup" subcommand.
func newBackupCmd(flags *globalFlags) *cobra.Command {
	var list bool

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Write a timestamped copy of the database",
		Long: "Write <db>.bak.<UTC timestamp> into the backup directory, mirroring it to\n" +
			"object storage when backup.mirror is configured. --list shows existing backups.",
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(cmd, flags)
			if err != nil {
				return err
			}
			defer a.close()

			ctx := ctxOf(cmd)
			out := cmd.OutOrStdout()
			mgr := a.backups(ctx)

			if list {
				infos, err := mgr.List()
				if err != nil {
					return fmt.Errorf("backup: %w", err)
				}
				if len(infos) == 0 {
					fmt.Fprintln(out, "No backups found.")
					return nil
				}
				for _, info := range infos {
					fmt.Fprintf(out, "%s  %10d bytes  %s\n",
						info.TakenAt.UTC().Format("2006-01-02 15:04:05"), info.Size, info.Path)
				}
				return nil
			}

			path, err := mgr.Create(ctx)
			if err != nil {
				return fmt.Errorf("backup: %w", err)
			}
			fmt.Fprintf(out, "Backup written: %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&list, "list", false, "list existing backups instead of writing one")
	return cmd
}
