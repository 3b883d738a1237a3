package lexicon

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"glyphos/pkg/protocol"
)

// IngestRow is one promoted candidate. Occurrences is the candidate's
// occurrence count within its source; only the part above the source's
// high-water mark is added to the glyph frequency.
type IngestRow struct {
	Glyph       protocol.Glyph
	Occurrences int
}

// IngestOutcome records what ApplyIngest did with a row.
type IngestOutcome int

const (
	OutcomeInserted  IngestOutcome = iota // new active glyph
	OutcomeMerged                         // existing glyph changed
	OutcomeUnchanged                      // existing glyph, merge was a no-op
	OutcomeArchived                       // key only present in the archive; left alone
)

func (o IngestOutcome) String() string {
	switch o {
	case OutcomeInserted:
		return "inserted"
	case OutcomeMerged:
		return "merged"
	case OutcomeUnchanged:
		return "unchanged"
	case OutcomeArchived:
		return "archived"
	default:
		return fmt.Sprintf("IngestOutcome(%d)", int(o))
	}
}

// IngestResult holds per-row outcomes and target glyph ids.
type IngestResult struct {
	Outcomes []IngestOutcome
	IDs      []int64
}

// ApplyIngest promotes rows from sourceID in one transaction. New keys are
// inserted with Source = sourceID; existing keys are merged. Frequency grows
// by occurrences above the per-(source, key) watermark, so replaying the same
// source is a no-op. Keys that are only archived are not resurrected.
func (s *Store) ApplyIngest(ctx context.Context, sourceID string, rows []IngestRow) (IngestResult, error) {
	res := IngestResult{
		Outcomes: make([]IngestOutcome, len(rows)),
		IDs:      make([]int64, len(rows)),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.begin(ctx)
	if err != nil {
		return IngestResult{}, err
	}
	defer func() { _ = tx.Rollback() }()

	for i, row := range rows {
		g, err := s.prepare(row.Glyph)
		if err != nil {
			return IngestResult{}, &protocol.BatchError{Index: i, Err: err}
		}

		applied, err := watermark(ctx, tx, sourceID, g.NormalizedKey)
		if err != nil {
			return IngestResult{}, &protocol.BatchError{Index: i, Err: err}
		}
		delta := row.Occurrences - applied
		if delta < 0 {
			delta = 0
		}
		g.Frequency = delta

		existing, found, err := firstByKey(ctx, tx, g.NormalizedKey)
		if err != nil {
			return IngestResult{}, &protocol.BatchError{Index: i, Err: err}
		}

		switch {
		case found:
			merged, changed := Merge(existing, g)
			res.IDs[i] = existing.ID
			res.Outcomes[i] = OutcomeUnchanged
			if changed {
				merged.UpdatedAt = s.now()
				if err := updateRow(ctx, tx, merged); err != nil {
					return IngestResult{}, &protocol.BatchError{Index: i, Err: err}
				}
				if _, err := s.appendVersion(ctx, tx, merged.ID, protocol.ChangeMerge, sourceID, merged); err != nil {
					return IngestResult{}, &protocol.BatchError{Index: i, Err: err}
				}
				res.Outcomes[i] = OutcomeMerged
			}
		default:
			archived, err := archivedKeyExists(ctx, tx, g.NormalizedKey)
			if err != nil {
				return IngestResult{}, &protocol.BatchError{Index: i, Err: err}
			}
			if archived {
				res.Outcomes[i] = OutcomeArchived
				break
			}
			g.ID = 0
			g.Source = sourceID
			s.stamp(&g)
			g, err = s.insertRow(ctx, tx, g, protocol.ChangeInsert, sourceID)
			if err != nil {
				return IngestResult{}, &protocol.BatchError{Index: i, Err: err}
			}
			res.IDs[i] = g.ID
			res.Outcomes[i] = OutcomeInserted
		}

		if row.Occurrences > applied {
			if err := s.raiseWatermark(ctx, tx, sourceID, g.NormalizedKey, row.Occurrences); err != nil {
				return IngestResult{}, &protocol.BatchError{Index: i, Err: err}
			}
		}
	}

	if err := s.commit(tx); err != nil {
		return IngestResult{}, err
	}
	return res, nil
}

func watermark(ctx context.Context, q querier, sourceID, key string) (int, error) {
	var applied int
	err := q.QueryRowContext(ctx,
		`SELECT applied FROM ingest_watermarks WHERE source_id = ? AND normalized_key = ?`,
		sourceID, key).Scan(&applied)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read watermark %s/%s: %w", sourceID, key, err)
	}
	return applied, nil
}

func (s *Store) raiseWatermark(ctx context.Context, tx *sql.Tx, sourceID, key string, applied int) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO ingest_watermarks (source_id, normalized_key, applied, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(source_id, normalized_key) DO UPDATE SET applied = excluded.applied, updated_at = excluded.updated_at
		 WHERE excluded.applied > ingest_watermarks.applied`,
		sourceID, key, applied, s.timestamp())
	if err != nil {
		return protocol.WriteFailed(fmt.Sprintf("raise watermark %s/%s", sourceID, key), err)
	}
	return nil
}

func archivedKeyExists(ctx context.Context, q querier, key string) (bool, error) {
	var n int
	if err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM glyph_lexicon_archived WHERE normalized_key = ?`, key).Scan(&n); err != nil {
		return false, fmt.Errorf("archived key check: %w", err)
	}
	return n > 0, nil
}

// Watermark returns the applied occurrence count for (sourceID, key).
func (s *Store) Watermark(ctx context.Context, sourceID, key string) (int, error) {
	return watermark(ctx, s.db, sourceID, key)
}
