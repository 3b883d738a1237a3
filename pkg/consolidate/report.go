package consolidate

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"glyphos/pkg/protocol"
)

// Report headers.
//
//nolint:gochecknoglobals // static headers
var (
	dryRunHeader = []string{"normalized_key", "count", "keep_id", "remove_ids", "sample_names", "reasons"}
	postHeader   = []string{"archived_id", "glyph_id", "normalized_key", "name", "reason", "archived_at"}
	reviewHeader = []string{"glyph_id", "normalized_key", "name", "flags"}
)

func writeDryRunReport(path string, rows []Row) (string, error) {
	records := make([][]string, 0, len(rows))
	for _, r := range rows {
		keep := ""
		if r.KeepID != 0 {
			keep = protocol.FormatID(r.KeepID)
		}
		records = append(records, []string{
			r.NormalizedKey,
			strconv.Itoa(r.Count),
			keep,
			formatIDs(r.RemoveIDs),
			strings.Join(r.SampleNames, "|"),
			strings.Join(r.Reasons, ";"),
		})
	}
	return writeCSV(path, dryRunHeader, records)
}

func writePostReport(path string, archived []protocol.ArchivedGlyph) (string, error) {
	records := make([][]string, 0, len(archived))
	for _, a := range archived {
		records = append(records, []string{
			protocol.FormatID(a.ArchivedID),
			protocol.FormatID(a.ID),
			a.NormalizedKey,
			a.Name,
			a.ArchiveReason,
			a.ArchivedAt.UTC().Format(time.RFC3339Nano),
		})
	}
	return writeCSV(path, postHeader, records)
}

func writeReviewReport(path string, review []Review) (string, error) {
	records := make([][]string, 0, len(review))
	for _, r := range review {
		records = append(records, []string{
			protocol.FormatID(r.GlyphID), r.NormalizedKey, r.Name, strings.Join(r.Flags, ";"),
		})
	}
	return writeCSV(path, reviewHeader, records)
}

// writeCSV writes header plus records to path, creating the directory. The
// header is written even when records is empty.
func writeCSV(path string, header []string, records [][]string) (string, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}
	f, err := os.Create(path) //nolint:gosec // report path built from the configured report dir
	if err != nil {
		return "", fmt.Errorf("create report %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return "", fmt.Errorf("write report header: %w", err)
	}
	if err := w.WriteAll(records); err != nil {
		return "", fmt.Errorf("write report %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close report %s: %w", path, err)
	}
	return path, nil
}

// ReadReport parses a report written by this package, header included.
func ReadReport(path string) ([][]string, error) {
	f, err := os.Open(path) //nolint:gosec // operator-supplied report path
	if err != nil {
		return nil, fmt.Errorf("open report: %w", err)
	}
	defer func() { _ = f.Close() }()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse report %s: %w", path, err)
	}
	return records, nil
}
