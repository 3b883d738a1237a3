package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"glyphos/pkg/protocol"
)

// legacyExport is the object form of an operator export.
type legacyExport struct {
	Glyphs []protocol.Glyph `json:"glyphs"`
}

// parseLegacyExport accepts either a JSON array of glyphs or an object with a
// "glyphs" array.
func parseLegacyExport(data []byte) ([]protocol.Glyph, error) {
	data = bytes.TrimSpace(data)
	var glyphs []protocol.Glyph
	if len(data) > 0 && data[0] == '[' {
		if err := json.Unmarshal(data, &glyphs); err != nil {
			return nil, &protocol.InvalidInputError{Field: "import file", Reason: err.Error()}
		}
		return glyphs, nil
	}
	var doc legacyExport
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &protocol.InvalidInputError{Field: "import file", Reason: err.Error()}
	}
	return doc.Glyphs, nil
}

// newImportCmd creates the "glyphos import" subcommand.
func newImportCmd(flags *globalFlags) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Load a legacy glyph export verbatim",
		Long: "Load a historical export (a JSON array of glyphs, or {\"glyphs\": [...]}) in one\n" +
			"transaction. Duplicate keys are allowed here; run \"glyphos prune\" afterwards.",
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			if file == "" {
				return usageError("--file is required")
			}
			data, err := os.ReadFile(file) //nolint:gosec // operator-supplied path
			if err != nil {
				return fmt.Errorf("import: %w", err)
			}
			glyphs, err := parseLegacyExport(data)
			if err != nil {
				return err
			}

			a, err := loadApp(cmd, flags)
			if err != nil {
				return err
			}
			defer a.close()

			runID := uuid.NewString()
			ids, err := a.store.ImportLegacy(ctxOf(cmd), glyphs, runID)
			if err != nil {
				return fmt.Errorf("import: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d glyphs (run %s)\n", len(ids), runID)
			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "legacy export JSON file")
	return cmd
}
