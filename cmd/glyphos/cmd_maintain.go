package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"glyphos/pkg/consolidate"
	"glyphos/pkg/maintenance"
)

// newMaintainCmd creates the "glyphos maintain" subcommand.
func newMaintainCmd(flags *globalFlags) *cobra.Command {
	var (
		once     bool
		schedule string
		gateCaps bool
	)

	cmd := &cobra.Command{
		Use:   "maintain",
		Short: "Run scheduled backups and prune dry-runs",
		Long: "Take a backup and write prune dry-run reports on the configured cron\n" +
			"schedule (maintenance.schedule, 5 fields, UTC) until interrupted.\n" +
			"--once runs a single pass and exits. Nothing is ever archived.",
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(cmd, flags)
			if err != nil {
				return err
			}
			defer a.close()

			ctx := ctxOf(cmd)
			out := cmd.OutOrStdout()
			runner := maintenance.New(a.backups(ctx), a.pruner(ctx),
				consolidate.Options{Strict: true, GateCaps: gateCaps},
				maintenance.WithLogger(a.log))

			if once {
				o, err := runner.RunOnce(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "backup: %s\ndry-run report: %s\ncandidates: %d\n", o.BackupPath, o.DryRunReport, o.Candidates)
				return nil
			}

			if schedule == "" {
				schedule = a.cfg.Maintenance.Schedule
			}
			sched, err := maintenance.ParseSchedule(schedule)
			if err != nil {
				return usageError(err.Error())
			}
			fmt.Fprintf(out, "maintenance scheduled %q (Ctrl-C to stop)\n", schedule)
			return runner.Run(ctx, sched)
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "run one pass now and exit")
	cmd.Flags().StringVar(&schedule, "schedule", "", "cron expression overriding maintenance.schedule")
	cmd.Flags().BoolVar(&gateCaps, "gate-caps", false, "include gate caps in the dry-run")
	return cmd
}
