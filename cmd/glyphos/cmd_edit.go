package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"glyphos/pkg/lexicon"
	"glyphos/pkg/protocol"
)

// newEditCmd creates the "glyphos edit" subcommand. Response templates are
// curated here only; ingestion never writes them.
func newEditCmd(flags *globalFlags) *cobra.Command {
	var (
		name          string
		displayName   string
		description   string
		gate          string
		template      string
		clearTemplate bool
		keywords      string
	)

	cmd := &cobra.Command{
		Use:   "edit <glyph-id>",
		Short: "Edit the curated fields of a glyph",
		Long: "Change a glyph's name, display name, description, gate, keywords or response\n" +
			"template. Only the flags given are applied. Every edit is versioned.",
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := protocol.ParseID(args[0])
			if err != nil {
				return err
			}

			var e lexicon.GlyphEdit
			changed := cmd.Flags().Changed
			if changed("name") {
				e.Name = &name
			}
			if changed("display-name") {
				e.DisplayName = &displayName
			}
			if changed("description") {
				e.Description = &description
			}
			if changed("gate") {
				e.Gate = &gate
			}
			switch {
			case changed("template") && clearTemplate:
				return usageError("--template and --clear-template are mutually exclusive")
			case changed("template"):
				e.ResponseTemplate = &template
			case clearTemplate:
				empty := ""
				e.ResponseTemplate = &empty
			}
			if changed("keywords") {
				e.Keywords = []string{}
				for kw := range strings.SplitSeq(keywords, ",") {
					if kw = strings.TrimSpace(kw); kw != "" {
						e.Keywords = append(e.Keywords, kw)
					}
				}
			}
			if e.Name == nil && e.DisplayName == nil && e.Description == nil && e.Gate == nil &&
				e.ResponseTemplate == nil && e.Keywords == nil {
				return usageError("no fields to edit")
			}

			a, err := loadApp(cmd, flags)
			if err != nil {
				return err
			}
			defer a.close()

			if e.Gate != nil && *e.Gate != "" && !a.cfg.HasGate(*e.Gate) {
				return &protocol.InvalidInputError{Field: "gate", Reason: fmt.Sprintf("unknown gate %q", *e.Gate)}
			}

			g, err := a.store.Edit(ctxOf(cmd), id, e)
			if err != nil {
				return fmt.Errorf("edit: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Edited glyph %d: %s\n", g.ID, g.Name)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "new name (re-derives the normalized key)")
	cmd.Flags().StringVar(&displayName, "display-name", "", "new display name")
	cmd.Flags().StringVar(&description, "description", "", "new description")
	cmd.Flags().StringVar(&gate, "gate", "", "new gate")
	cmd.Flags().StringVar(&template, "template", "", "new response template")
	cmd.Flags().BoolVar(&clearTemplate, "clear-template", false, "remove the response template")
	cmd.Flags().StringVar(&keywords, "keywords", "", "comma-separated keywords, replacing the current set")
	return cmd
}
