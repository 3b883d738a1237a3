package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"glyphos/pkg/protocol"
)

// newRetrieveCmd creates the "glyphos retrieve" subcommand.
func newRetrieveCmd(flags *globalFlags) *cobra.Command {
	var (
		gate   string
		k      int
		prior  []string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "retrieve <message>...",
		Short: "Rank glyphs for a message",
		Args:  minArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd, flags)
			if err != nil {
				return err
			}
			defer a.close()

			resp, err := a.service().Retrieve(ctxOf(cmd), protocol.RetrieveRequest{
				Message: strings.Join(args, " "), Gate: gate, K: k, Context: prior,
			})
			if err != nil {
				return fmt.Errorf("retrieve: %w", err)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, resp)
			}
			if len(resp.Results) == 0 {
				fmt.Fprintln(out, "No glyphs matched.")
			}
			for i, h := range resp.Results {
				fmt.Fprintf(out, "%d. [%s] %s  score=%d  %s\n", i+1, h.GlyphID, h.Name, h.Score, strings.Join(h.MatchedTerms, " "))
			}
			if resp.Partial {
				fmt.Fprintln(out, "(partial: retrieval timed out)")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&gate, "gate", "", "restrict to one gate")
	cmd.Flags().IntVarP(&k, "top-k", "k", 0, "number of results (default from config)")
	cmd.Flags().StringArrayVar(&prior, "context", nil, "prior message, repeatable")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the response JSON")
	return cmd
}
