package main

import (
	"github.com/spf13/cobra"
)

// newRPCCmd creates the "glyphos rpc" subcommand.
func newRPCCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "rpc",
		Short: "Serve retrieve/compose/feedback requests as JSON lines on stdin/stdout",
		Long: "Read one JSON request per line, {\"id\": ..., \"op\": \"retrieve|compose|feedback\",\n" +
			"\"params\": {...}}, and write one {\"id\", \"ok\", \"result\"|\"error\"} line per request.\n" +
			"Requests are handled in order until EOF or interrupt.",
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(cmd, flags)
			if err != nil {
				return err
			}
			defer a.close()

			return a.service().Serve(ctxOf(cmd), cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}
