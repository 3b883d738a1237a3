package lexicon

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"glyphos/pkg/protocol"
	"glyphos/pkg/textnorm"
)

// ListOpts configures List. Limit <= 0 returns every row.
type ListOpts struct {
	Gate   string
	Limit  int
	Offset int
}

// Get returns the active glyph with id.
func (s *Store) Get(ctx context.Context, id int64) (protocol.Glyph, error) {
	return getGlyph(ctx, s.db, id)
}

// FindByKey returns the active glyphs on normalizedKey ordered by id. The
// input is normalized first, so a raw name works too.
func (s *Store) FindByKey(ctx context.Context, normalizedKey string) ([]protocol.Glyph, error) {
	key := textnorm.NormalizedKey(normalizedKey)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+glyphColumns+` FROM glyph_lexicon WHERE normalized_key = ? ORDER BY id`, key)
	if err != nil {
		return nil, fmt.Errorf("find by key: %w", err)
	}
	return collectGlyphs(rows)
}

// ListByGate returns the active glyphs in gate ordered by id.
func (s *Store) ListByGate(ctx context.Context, gate string) ([]protocol.Glyph, error) {
	return s.List(ctx, ListOpts{Gate: gate})
}

// List returns active glyphs ordered by id.
func (s *Store) List(ctx context.Context, opts ListOpts) ([]protocol.Glyph, error) {
	var (
		conditions []string
		args       []any
	)
	if opts.Gate != "" {
		conditions = append(conditions, "gate = ?")
		args = append(args, opts.Gate)
	}
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = -1
	}
	args = append(args, limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT %s FROM glyph_lexicon %s ORDER BY id LIMIT ? OFFSET ?`, glyphColumns, where),
		args...)
	if err != nil {
		return nil, fmt.Errorf("list glyphs: %w", err)
	}
	return collectGlyphs(rows)
}

// Search returns active glyphs whose name or keywords contain any of
// keywordsAny, best FTS5 match first, ties by id.
func (s *Store) Search(ctx context.Context, keywordsAny []string, limit int) ([]protocol.Glyph, error) {
	q := protocol.FTSAnyQuery(keywordsAny)
	if q == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT g.id, g.name, g.normalized_key, g.description, g.gate, g.display_name,
		       g.response_template, g.keywords, g.frequency, g.source, g.activated_seq,
		       g.created_at, g.updated_at
		FROM glyph_fts
		JOIN glyph_lexicon g ON glyph_fts.rowid = g.id
		WHERE glyph_fts MATCH ?
		ORDER BY bm25(glyph_fts), g.id
		LIMIT ?`, q, limit)
	if err != nil {
		return nil, fmt.Errorf("search glyphs: %w", err)
	}
	return collectGlyphs(rows)
}

// Vocabulary returns every distinct keyword in the active lexicon.
func (s *Store) Vocabulary(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT value FROM glyph_lexicon, json_each(glyph_lexicon.keywords) ORDER BY value`)
	if err != nil {
		return nil, fmt.Errorf("vocabulary: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var w string
		if err := rows.Scan(&w); err != nil {
			return nil, fmt.Errorf("vocabulary scan: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// archived rows store the original id in glyph_id; alias it so scanGlyph can
// share the column order.
const archivedSelect = `SELECT glyph_id AS id, name, normalized_key, description, gate, display_name,
	response_template, keywords, frequency, source, activated_seq, created_at, updated_at,
	archived_id, archived_at, archive_reason, archived_seq, run_id FROM glyph_lexicon_archived`

func scanArchived(r rowScanner) (protocol.ArchivedGlyph, error) {
	var (
		a          protocol.ArchivedGlyph
		archivedAt string
	)
	g, err := scanGlyph(r, &a.ArchivedID, &archivedAt, &a.ArchiveReason, &a.ArchivedSeq, &a.RunID)
	if err != nil {
		return a, err
	}
	a.Glyph = g
	a.ArchivedAt = parseTime(archivedAt)
	return a, nil
}

func getArchived(ctx context.Context, q querier, archivedID int64) (protocol.ArchivedGlyph, error) {
	a, err := scanArchived(q.QueryRowContext(ctx, archivedSelect+` WHERE archived_id = ?`, archivedID))
	if errors.Is(err, sql.ErrNoRows) {
		return a, &protocol.NotFoundError{Kind: "archived", ID: archivedID}
	}
	if err != nil {
		return a, fmt.Errorf("get archived %d: %w", archivedID, err)
	}
	return a, nil
}

// GetArchived returns one archived row.
func (s *Store) GetArchived(ctx context.Context, archivedID int64) (protocol.ArchivedGlyph, error) {
	return getArchived(ctx, s.db, archivedID)
}

// ArchivedOpts filters ListArchived.
type ArchivedOpts struct {
	NormalizedKey string
	Reason        string
	RunID         string
}

// ListArchived returns archived rows ordered by archived_id.
func (s *Store) ListArchived(ctx context.Context, opts ArchivedOpts) ([]protocol.ArchivedGlyph, error) {
	var (
		conditions []string
		args       []any
	)
	if opts.NormalizedKey != "" {
		conditions = append(conditions, "normalized_key = ?")
		args = append(args, textnorm.NormalizedKey(opts.NormalizedKey))
	}
	if opts.Reason != "" {
		conditions = append(conditions, "archive_reason = ?")
		args = append(args, opts.Reason)
	}
	if opts.RunID != "" {
		conditions = append(conditions, "run_id = ?")
		args = append(args, opts.RunID)
	}
	q := archivedSelect
	if len(conditions) > 0 {
		q += " WHERE " + strings.Join(conditions, " AND ")
	}
	q += " ORDER BY archived_id"

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list archived: %w", err)
	}
	defer rows.Close()

	var out []protocol.ArchivedGlyph
	for rows.Next() {
		a, err := scanArchived(rows)
		if err != nil {
			return nil, fmt.Errorf("scan archived: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("archived rows: %w", err)
	}
	return out, nil
}

// Versions returns the version trail of a glyph, oldest first.
func (s *Store) Versions(ctx context.Context, glyphID int64) ([]protocol.GlyphVersion, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, glyph_id, change, run_id, snapshot, created_at FROM glyph_versions
		 WHERE glyph_id = ? ORDER BY seq`, glyphID)
	if err != nil {
		return nil, fmt.Errorf("versions: %w", err)
	}
	defer rows.Close()

	var out []protocol.GlyphVersion
	for rows.Next() {
		var (
			v         protocol.GlyphVersion
			change    string
			createdAt string
		)
		if err := rows.Scan(&v.Seq, &v.GlyphID, &change, &v.RunID, &v.Snapshot, &createdAt); err != nil {
			return nil, fmt.Errorf("versions scan: %w", err)
		}
		v.Change = protocol.ChangeKind(change)
		v.CreatedAt = parseTime(createdAt)
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("versions rows: %w", err)
	}
	return out, nil
}

// Stats summarizes the store.
type Stats struct {
	Active          int            `json:"active"`
	Archived        int            `json:"archived"`
	UsageEntries    int            `json:"usage_entries"`
	FeedbackEntries int            `json:"feedback_entries"`
	Turns           int            `json:"turns"`
	Versions        int            `json:"versions"`
	DuplicateGroups int            `json:"duplicate_groups"`
	ByGate          map[string]int `json:"by_gate"`
}

// Stats counts rows across the store tables.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	st := Stats{ByGate: map[string]int{}}
	counts := []struct {
		dst   *int
		query string
	}{
		{&st.Active, `SELECT COUNT(*) FROM glyph_lexicon`},
		{&st.Archived, `SELECT COUNT(*) FROM glyph_lexicon_archived`},
		{&st.UsageEntries, `SELECT COUNT(*) FROM glyph_usage_log`},
		{&st.FeedbackEntries, `SELECT COUNT(*) FROM feedback_log`},
		{&st.Turns, `SELECT COUNT(*) FROM conversation_turns`},
		{&st.Versions, `SELECT COUNT(*) FROM glyph_versions`},
		{&st.DuplicateGroups, `SELECT COUNT(*) FROM (SELECT normalized_key FROM glyph_lexicon
			GROUP BY normalized_key HAVING COUNT(*) > 1)`},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dst); err != nil {
			return st, fmt.Errorf("stats: %w", err)
		}
	}

	rows, err := s.db.QueryContext(ctx, `SELECT gate, COUNT(*) FROM glyph_lexicon GROUP BY gate ORDER BY gate`)
	if err != nil {
		return st, fmt.Errorf("stats by gate: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			gate string
			n    int
		)
		if err := rows.Scan(&gate, &n); err != nil {
			return st, fmt.Errorf("stats by gate scan: %w", err)
		}
		st.ByGate[gate] = n
	}
	return st, rows.Err()
}
