package main

import (
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"

	"glyphos/pkg/lexicon"
)

func formatStats(w io.Writer, st lexicon.Stats) {
	fmt.Fprintf(w, "active:           %d\n", st.Active)
	fmt.Fprintf(w, "archived:         %d\n", st.Archived)
	fmt.Fprintf(w, "duplicate groups: %d\n", st.DuplicateGroups)
	fmt.Fprintf(w, "usage entries:    %d\n", st.UsageEntries)
	fmt.Fprintf(w, "feedback entries: %d\n", st.FeedbackEntries)
	fmt.Fprintf(w, "turns:            %d\n", st.Turns)
	fmt.Fprintf(w, "versions:         %d\n", st.Versions)
	if len(st.ByGate) == 0 {
		return
	}
	fmt.Fprintln(w, "by gate:")
	gates := make([]string, 0, len(st.ByGate))
	for g := range st.ByGate {
		gates = append(gates, g)
	}
	slices.Sort(gates)
	for _, g := range gates {
		name := g
		if name == "" {
			name = "(none)"
		}
		fmt.Fprintf(w, "  %-14s %d\n", name, st.ByGate[g])
	}
}

// newStatsCmd creates the "glyphos stats" subcommand.
func newStatsCmd(flags *globalFlags) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize the lexicon and its logs",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(cmd, flags)
			if err != nil {
				return err
			}
			defer a.close()

			st, err := a.store.Stats(ctxOf(cmd))
			if err != nil {
				return fmt.Errorf("stats: %w", err)
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), st)
			}
			formatStats(cmd.OutOrStdout(), st)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}
