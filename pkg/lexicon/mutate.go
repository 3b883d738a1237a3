package lexicon

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"glyphos/pkg/protocol"
	"glyphos/pkg/textnorm"
)

// ConflictMode selects how UpsertBatch treats a row whose key is already active.
type ConflictMode int

const (
	ConflictMerge ConflictMode = iota
	ConflictSkip
	ConflictFail
)

func (m ConflictMode) String() string {
	switch m {
	case ConflictMerge:
		return "merge"
	case ConflictSkip:
		return "skip"
	case ConflictFail:
		return "fail"
	default:
		return fmt.Sprintf("ConflictMode(%d)", int(m))
	}
}

// ParseConflictMode parses "merge", "skip" or "fail".
func ParseConflictMode(s string) (ConflictMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "merge", "":
		return ConflictMerge, nil
	case "skip":
		return ConflictSkip, nil
	case "fail":
		return ConflictFail, nil
	default:
		return 0, &protocol.InvalidInputError{Field: "on_conflict", Reason: "unknown mode " + s}
	}
}

// BatchResult summarizes an UpsertBatch. IDs[i] is the glyph row i landed on,
// or 0 when it was skipped.
type BatchResult struct {
	Inserted int
	Merged   int
	Skipped  int
	IDs      []int64
}

// Merge folds incoming into existing: keywords are unioned (existing order
// first), frequencies summed, and description, gate and display name are
// filled only where existing is empty. changed is false when the merge is a
// no-op.
func Merge(existing, incoming protocol.Glyph) (merged protocol.Glyph, changed bool) {
	merged = existing
	merged.Keywords = textnorm.UnionKeywords(existing.Keywords, incoming.Keywords)
	if len(merged.Keywords) != len(existing.Keywords) {
		changed = true
	}
	if incoming.Frequency > 0 {
		merged.Frequency += incoming.Frequency
		changed = true
	}
	if existing.Description == "" && incoming.Description != "" {
		merged.Description = incoming.Description
		changed = true
	}
	if existing.Gate == "" && incoming.Gate != "" {
		merged.Gate = incoming.Gate
		changed = true
	}
	return merged, changed
}

// Insert adds a new glyph. It fails with *protocol.DuplicateKeyError when an
// active glyph already holds the normalized key.
func (s *Store) Insert(ctx context.Context, g protocol.Glyph) (protocol.Glyph, error) {
	g, err := s.prepare(g)
	if err != nil {
		return g, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.begin(ctx)
	if err != nil {
		return g, err
	}
	defer func() { _ = tx.Rollback() }()

	existing, found, err := firstByKey(ctx, tx, g.NormalizedKey)
	if err != nil {
		return g, err
	}
	if found {
		return g, &protocol.DuplicateKeyError{NormalizedKey: g.NormalizedKey, ExistingID: existing.ID}
	}

	g.ID = 0
	s.stamp(&g)
	g, err = s.insertRow(ctx, tx, g, protocol.ChangeInsert, "")
	if err != nil {
		return g, err
	}
	if err := s.commit(tx); err != nil {
		return g, err
	}
	s.log.Debug("glyph inserted", zap.Int64("glyph_id", g.ID), zap.String("key", g.NormalizedKey))
	return g, nil
}

func (s *Store) stamp(g *protocol.Glyph) {
	now := s.now()
	if g.CreatedAt.IsZero() {
		g.CreatedAt = now
	}
	g.UpdatedAt = now
}

// UpsertBatch applies glyphs in one transaction. With ConflictMerge an
// existing key is merged (see Merge); ConflictSkip leaves it untouched;
// ConflictFail aborts. Any failure rolls back the whole batch and is returned
// as *protocol.BatchError carrying the offending row index.
func (s *Store) UpsertBatch(ctx context.Context, glyphs []protocol.Glyph, mode ConflictMode) (BatchResult, error) {
	res := BatchResult{IDs: make([]int64, len(glyphs))}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.begin(ctx)
	if err != nil {
		return BatchResult{}, err
	}
	defer func() { _ = tx.Rollback() }()

	for i, in := range glyphs {
		g, err := s.prepare(in)
		if err != nil {
			return BatchResult{}, &protocol.BatchError{Index: i, Err: err}
		}

		existing, found, err := firstByKey(ctx, tx, g.NormalizedKey)
		if err != nil {
			return BatchResult{}, &protocol.BatchError{Index: i, Err: err}
		}

		if !found {
			g.ID = 0
			s.stamp(&g)
			g, err = s.insertRow(ctx, tx, g, protocol.ChangeInsert, "")
			if err != nil {
				return BatchResult{}, &protocol.BatchError{Index: i, Err: err}
			}
			res.Inserted++
			res.IDs[i] = g.ID
			continue
		}

		switch mode {
		case ConflictSkip:
			res.Skipped++
		case ConflictFail:
			return BatchResult{}, &protocol.BatchError{
				Index: i,
				Err:   &protocol.DuplicateKeyError{NormalizedKey: g.NormalizedKey, ExistingID: existing.ID},
			}
		default:
			merged, changed := Merge(existing, g)
			if changed {
				merged.UpdatedAt = s.now()
				if err := updateRow(ctx, tx, merged); err != nil {
					return BatchResult{}, &protocol.BatchError{Index: i, Err: err}
				}
				if _, err := s.appendVersion(ctx, tx, merged.ID, protocol.ChangeMerge, "", merged); err != nil {
					return BatchResult{}, &protocol.BatchError{Index: i, Err: err}
				}
			}
			res.Merged++
			res.IDs[i] = existing.ID
		}
	}

	if err := s.commit(tx); err != nil {
		return BatchResult{}, err
	}
	return res, nil
}

// Archive moves an active glyph to the archive table with reason, atomically.
// runID groups rows archived by one consolidation run.
func (s *Store) Archive(ctx context.Context, id int64, reason, runID string) (protocol.ArchivedGlyph, error) {
	if strings.TrimSpace(reason) == "" {
		return protocol.ArchivedGlyph{}, &protocol.InvalidInputError{Field: "reason", Reason: "empty"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.begin(ctx)
	if err != nil {
		return protocol.ArchivedGlyph{}, err
	}
	defer func() { _ = tx.Rollback() }()

	g, err := getGlyph(ctx, tx, id)
	if err != nil {
		return protocol.ArchivedGlyph{}, err
	}

	now := s.now()
	seq, err := s.appendVersion(ctx, tx, id, protocol.ChangeArchive, runID, g)
	if err != nil {
		return protocol.ArchivedGlyph{}, err
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO glyph_lexicon_archived (glyph_id, name, normalized_key, description, gate,
			display_name, response_template, keywords, frequency, source, activated_seq,
			created_at, updated_at, archived_at, archive_reason, archived_seq, run_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.Name, g.NormalizedKey, g.Description, g.Gate, g.DisplayName,
		nullString(g.ResponseTemplate), keywordsToJSON(g.Keywords), g.Frequency, g.Source,
		g.ActivatedSeq, formatTime(g.CreatedAt), formatTime(g.UpdatedAt),
		formatTime(now), reason, seq, runID)
	if err != nil {
		return protocol.ArchivedGlyph{}, protocol.WriteFailed(fmt.Sprintf("copy glyph %d to archive", id), err)
	}
	archivedID, err := res.LastInsertId()
	if err != nil {
		return protocol.ArchivedGlyph{}, fmt.Errorf("archive last insert id: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM glyph_lexicon WHERE id = ?`, id); err != nil {
		return protocol.ArchivedGlyph{}, protocol.WriteFailed(fmt.Sprintf("delete archived glyph %d", id), err)
	}

	if err := s.commit(tx); err != nil {
		return protocol.ArchivedGlyph{}, err
	}

	s.log.Info("glyph archived",
		zap.Int64("glyph_id", id), zap.Int64("archived_id", archivedID), zap.String("reason", reason))

	return protocol.ArchivedGlyph{
		Glyph:         g,
		ArchivedID:    archivedID,
		ArchivedAt:    parseTime(formatTime(now)),
		ArchiveReason: reason,
		ArchivedSeq:   seq,
		RunID:         runID,
	}, nil
}

// Restore moves an archived row back to the active table under its original
// id. It fails with *protocol.DedupConflictError when an active glyph on the
// same key entered the active table after the row was archived; resolving
// that requires an operator merge.
func (s *Store) Restore(ctx context.Context, archivedID int64) (protocol.Glyph, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.begin(ctx)
	if err != nil {
		return protocol.Glyph{}, err
	}
	defer func() { _ = tx.Rollback() }()

	a, err := getArchived(ctx, tx, archivedID)
	if err != nil {
		return protocol.Glyph{}, err
	}

	var conflictID int64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM glyph_lexicon WHERE normalized_key = ? AND activated_seq > ? ORDER BY id LIMIT 1`,
		a.NormalizedKey, a.ArchivedSeq).Scan(&conflictID)
	switch {
	case err == nil:
		return protocol.Glyph{}, &protocol.DedupConflictError{
			ArchivedID: archivedID, NormalizedKey: a.NormalizedKey, ConflictID: conflictID,
		}
	case !errors.Is(err, sql.ErrNoRows):
		return protocol.Glyph{}, fmt.Errorf("restore conflict check: %w", err)
	}

	g, err := s.insertRow(ctx, tx, a.Glyph, protocol.ChangeRestore, a.RunID)
	if err != nil {
		return protocol.Glyph{}, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM glyph_lexicon_archived WHERE archived_id = ?`, archivedID); err != nil {
		return protocol.Glyph{}, protocol.WriteFailed(fmt.Sprintf("remove archived row %d", archivedID), err)
	}

	if err := s.commit(tx); err != nil {
		return protocol.Glyph{}, err
	}
	s.log.Info("glyph restored", zap.Int64("glyph_id", g.ID), zap.Int64("archived_id", archivedID))
	return g, nil
}

// GlyphEdit carries admin edits. Nil fields are left unchanged; an empty
// ResponseTemplate clears the template.
type GlyphEdit struct {
	Name             *string
	DisplayName      *string
	Description      *string
	Gate             *string
	ResponseTemplate *string
	Keywords         []string
}

// Edit applies an admin edit. A rename onto a key held by another active
// glyph fails with *protocol.DuplicateKeyError.
func (s *Store) Edit(ctx context.Context, id int64, e GlyphEdit) (protocol.Glyph, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.begin(ctx)
	if err != nil {
		return protocol.Glyph{}, err
	}
	defer func() { _ = tx.Rollback() }()

	g, err := getGlyph(ctx, tx, id)
	if err != nil {
		return protocol.Glyph{}, err
	}

	renamedDisplay := g.DisplayName == g.Name
	if e.Name != nil {
		g.Name = *e.Name
		if renamedDisplay && e.DisplayName == nil {
			g.DisplayName = ""
		}
	}
	if e.DisplayName != nil {
		g.DisplayName = *e.DisplayName
	}
	if e.Description != nil {
		g.Description = *e.Description
	}
	if e.Gate != nil {
		g.Gate = *e.Gate
	}
	if e.ResponseTemplate != nil {
		g.ResponseTemplate = e.ResponseTemplate
	}
	if e.Keywords != nil {
		g.Keywords = e.Keywords
	}

	g, err = s.prepare(g)
	if err != nil {
		return protocol.Glyph{}, err
	}

	var clash int64
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM glyph_lexicon WHERE normalized_key = ? AND id != ? ORDER BY id LIMIT 1`,
		g.NormalizedKey, id).Scan(&clash)
	switch {
	case err == nil && e.Name != nil:
		return protocol.Glyph{}, &protocol.DuplicateKeyError{NormalizedKey: g.NormalizedKey, ExistingID: clash}
	case err != nil && !errors.Is(err, sql.ErrNoRows):
		return protocol.Glyph{}, fmt.Errorf("edit dedup check: %w", err)
	}

	g.UpdatedAt = s.now()
	if err := updateRow(ctx, tx, g); err != nil {
		return protocol.Glyph{}, err
	}
	if _, err := s.appendVersion(ctx, tx, id, protocol.ChangeEdit, "", g); err != nil {
		return protocol.Glyph{}, err
	}
	if err := s.commit(tx); err != nil {
		return protocol.Glyph{}, err
	}
	return g, nil
}

// ImportLegacy loads operator exports verbatim. Unlike Insert it does not
// enforce the dedup invariant: historical exports carry duplicate groups that
// consolidation later archives. The batch is transactional.
func (s *Store) ImportLegacy(ctx context.Context, glyphs []protocol.Glyph, runID string) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	ids := make([]int64, len(glyphs))
	for i, in := range glyphs {
		g, err := s.prepare(in)
		if err != nil {
			return nil, &protocol.BatchError{Index: i, Err: err}
		}
		g.ID = 0
		s.stamp(&g)
		g, err = s.insertRow(ctx, tx, g, protocol.ChangeImport, runID)
		if err != nil {
			return nil, &protocol.BatchError{Index: i, Err: err}
		}
		ids[i] = g.ID
	}

	if err := s.commit(tx); err != nil {
		return nil, err
	}
	s.log.Info("legacy import", zap.Int("rows", len(ids)), zap.String("run_id", runID))
	return ids, nil
}
