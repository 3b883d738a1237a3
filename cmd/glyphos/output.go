package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"glyphos/pkg/ingest"
	"glyphos/pkg/protocol"
)

// writeJSON writes v as indented JSON followed by a newline.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// formatIngestReport renders an ingestion report for CLI output.
func formatIngestReport(r ingest.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "source %s: inserted=%d merged=%d skipped=%d rejected=%d",
		r.SourceID, r.Inserted, r.Merged, r.Skipped, r.Rejected)
	if r.Partial {
		fmt.Fprintf(&b, " partial (last row %d)", r.LastIndex)
	}
	b.WriteString("\n")
	for _, e := range r.Errors {
		fmt.Fprintf(&b, "  row %d %q: %s\n", e.Index, e.Name, e.Error)
	}
	return b.String()
}

// truncate shortens s to maxLen runes, appending "..." if truncated.
func truncate(s string, maxLen int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}

// formatGlyphTable renders glyphs as a table.
func formatGlyphTable(glyphs []protocol.Glyph) string {
	if len(glyphs) == 0 {
		return "No glyphs found.\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-6s %-12s %-32s %-5s %s\n", "ID", "GATE", "NAME", "FREQ", "KEYWORDS")
	for _, g := range glyphs {
		fmt.Fprintf(&b, "%-6d %-12s %-32s %-5d %s\n",
			g.ID, g.Gate, truncate(g.Name, 30), g.Frequency, truncate(strings.Join(g.Keywords, ", "), 50))
	}
	return b.String()
}

// formatArchivedTable renders archived rows as a table.
func formatArchivedTable(rows []protocol.ArchivedGlyph) string {
	if len(rows) == 0 {
		return "No archived glyphs found.\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-8s %-6s %-32s %-12s %-10s %s\n", "ARCHIVED", "ID", "NAME", "REASON", "RUN", "AT")
	for _, a := range rows {
		fmt.Fprintf(&b, "%-8d %-6d %-32s %-12s %-10s %s\n",
			a.ArchivedID, a.ID, truncate(a.Name, 30), a.ArchiveReason, truncate(a.RunID, 8),
			a.ArchivedAt.UTC().Format("2006-01-02 15:04:05"))
	}
	return b.String()
}
