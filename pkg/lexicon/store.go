// Package lexicon is the authoritative store of glyphs: the active table, the
// reversible archive, the append-only usage log and the version trail. Every
// mutation runs under the store's writer lock inside a single transaction.
package lexicon

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"glyphos/internal/logging"
	"glyphos/pkg/protocol"
	"glyphos/pkg/textnorm"

	_ "modernc.org/sqlite" // SQLite driver
)

// Store manages the glyph tables in SQLite.
type Store struct {
	db   *sql.DB
	path string

	mu      sync.Mutex // writer lock
	now     func() time.Time
	log     *zap.Logger
	keepKey func(string) bool
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the store logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.log = logging.OrNop(l) }
}

// WithKeywordPolicy sets the keyword hygiene predicate. Keywords rejected by
// keep are dropped on every write. The default drops tokens of two runes or
// fewer.
func WithKeywordPolicy(keep func(string) bool) Option {
	return func(s *Store) { s.keepKey = keep }
}

// OpenDB opens a SQLite database at path with WAL journaling and a 5-second
// busy timeout, and applies the schema. The pool is limited to one connection
// so ":memory:" databases behave like files and writes never interleave.
func OpenDB(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, &protocol.StoreUnavailableError{Path: path, Err: err}
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, &protocol.StoreUnavailableError{Path: path, Err: err}
	}
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, &protocol.StoreUnavailableError{Path: path, Err: fmt.Errorf("%s: %w", pragma, err)}
		}
	}
	if _, err := db.ExecContext(ctx, protocol.SchemaDDL); err != nil {
		_ = db.Close()
		return nil, &protocol.StoreUnavailableError{Path: path, Err: fmt.Errorf("apply schema: %w", err)}
	}
	return db, nil
}

// Open opens the database at path and returns a Store over it.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	db, err := OpenDB(ctx, path)
	if err != nil {
		return nil, err
	}
	s := NewStore(db, opts...)
	s.path = path
	return s, nil
}

// NewStore creates a Store backed by db. The schema must already be applied.
// Without WithKeywordPolicy, keywords are filtered by the default analyzer
// (stopwords, short tokens, digits, fragments).
func NewStore(db *sql.DB, opts ...Option) *Store {
	s := &Store{
		db:      db,
		path:    ":memory:",
		now:     time.Now,
		log:     zap.NewNop(),
		keepKey: textnorm.NewAnalyzer(textnorm.Options{}).Keep,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB exposes the underlying handle for packages sharing the database file
// (feedback log, backups).
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the database path the store was opened with.
func (s *Store) Path() string { return s.path }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) timestamp() string {
	return formatTime(s.now())
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(v string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return t
}

func keywordsToJSON(kws []string) string {
	if len(kws) == 0 {
		return "[]"
	}
	b, err := json.Marshal(kws)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func keywordsFromJSON(v string) []string {
	if v == "" {
		return nil
	}
	var kws []string
	if err := json.Unmarshal([]byte(v), &kws); err != nil {
		return nil
	}
	return kws
}

func nullString(p *string) sql.NullString {
	if p == nil || *p == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	v := ns.String
	return &v
}

// prepare validates g and fills derived fields: trimmed name, normalized key,
// display name, hygienic keywords and a nil empty template.
func (s *Store) prepare(g protocol.Glyph) (protocol.Glyph, error) {
	g.Name = strings.TrimSpace(g.Name)
	if g.Name == "" {
		return g, &protocol.InvalidInputError{Field: "name", Reason: "empty"}
	}
	g.NormalizedKey = textnorm.NormalizedKey(g.Name)
	if g.NormalizedKey == "" {
		return g, &protocol.InvalidInputError{Field: "name", Reason: "no alphanumeric characters"}
	}
	if g.Frequency < 0 {
		return g, &protocol.InvalidInputError{Field: "frequency", Reason: "negative"}
	}
	if strings.TrimSpace(g.DisplayName) == "" {
		g.DisplayName = g.Name
	}
	if g.ResponseTemplate != nil && strings.TrimSpace(*g.ResponseTemplate) == "" {
		g.ResponseTemplate = nil
	}
	g.Keywords = s.cleanKeywords(g.Keywords)
	return g, nil
}

func (s *Store) cleanKeywords(kws []string) []string {
	out := make([]string, 0, len(kws))
	seen := make(map[string]struct{}, len(kws))
	for _, k := range kws {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" || !s.keepKey(k) {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

// begin starts a write transaction. Callers hold s.mu.
func (s *Store) begin(ctx context.Context) (*sql.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, &protocol.StoreUnavailableError{Path: s.path, Err: err}
	}
	return tx, nil
}

func (s *Store) commit(tx *sql.Tx) error {
	if err := tx.Commit(); err != nil {
		return &protocol.StoreUnavailableError{Path: s.path, Err: fmt.Errorf("commit: %w", err)}
	}
	return nil
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

const glyphColumns = `id, name, normalized_key, description, gate, display_name, response_template,
	keywords, frequency, source, activated_seq, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGlyph(r rowScanner, extra ...any) (protocol.Glyph, error) {
	var (
		g                    protocol.Glyph
		tmpl                 sql.NullString
		keywords             string
		createdAt, updatedAt string
	)
	dest := []any{
		&g.ID, &g.Name, &g.NormalizedKey, &g.Description, &g.Gate, &g.DisplayName, &tmpl,
		&keywords, &g.Frequency, &g.Source, &g.ActivatedSeq, &createdAt, &updatedAt,
	}
	dest = append(dest, extra...)
	if err := r.Scan(dest...); err != nil {
		return g, err
	}
	g.ResponseTemplate = stringPtr(tmpl)
	g.Keywords = keywordsFromJSON(keywords)
	g.CreatedAt = parseTime(createdAt)
	g.UpdatedAt = parseTime(updatedAt)
	return g, nil
}

func collectGlyphs(rows *sql.Rows) ([]protocol.Glyph, error) {
	defer rows.Close()
	var out []protocol.Glyph
	for rows.Next() {
		g, err := scanGlyph(rows)
		if err != nil {
			return nil, fmt.Errorf("scan glyph: %w", err)
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("glyph rows: %w", err)
	}
	return out, nil
}

func getGlyph(ctx context.Context, q querier, id int64) (protocol.Glyph, error) {
	row := q.QueryRowContext(ctx, `SELECT `+glyphColumns+` FROM glyph_lexicon WHERE id = ?`, id)
	g, err := scanGlyph(row)
	if errors.Is(err, sql.ErrNoRows) {
		return g, &protocol.NotFoundError{Kind: "glyph", ID: id}
	}
	if err != nil {
		return g, fmt.Errorf("get glyph %d: %w", id, err)
	}
	return g, nil
}

// firstByKey returns the lowest-id active glyph on key, or ok=false.
func firstByKey(ctx context.Context, q querier, key string) (protocol.Glyph, bool, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+glyphColumns+` FROM glyph_lexicon WHERE normalized_key = ? ORDER BY id LIMIT 1`, key)
	g, err := scanGlyph(row)
	if errors.Is(err, sql.ErrNoRows) {
		return g, false, nil
	}
	if err != nil {
		return g, false, fmt.Errorf("find key %q: %w", key, err)
	}
	return g, true, nil
}

// appendVersion writes one glyph_versions row and returns its seq.
func (s *Store) appendVersion(ctx context.Context, tx *sql.Tx, glyphID int64, change protocol.ChangeKind, runID string, snapshot any) (int64, error) {
	snap, err := json.Marshal(snapshot)
	if err != nil {
		return 0, fmt.Errorf("marshal version snapshot: %w", err)
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO glyph_versions (glyph_id, change, run_id, snapshot, created_at) VALUES (?, ?, ?, ?, ?)`,
		glyphID, string(change), runID, string(snap), s.timestamp())
	if err != nil {
		return 0, protocol.WriteFailed("append version", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("version seq: %w", err)
	}
	return seq, nil
}

// insertRow writes g to the active table. A positive g.ID is kept (restore);
// otherwise SQLite assigns one. The activation seq is stamped afterwards.
func (s *Store) insertRow(ctx context.Context, tx *sql.Tx, g protocol.Glyph, change protocol.ChangeKind, runID string) (protocol.Glyph, error) {
	var id any
	if g.ID > 0 {
		id = g.ID
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO glyph_lexicon (id, name, normalized_key, description, gate, display_name,
			response_template, keywords, frequency, source, activated_seq, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		id, g.Name, g.NormalizedKey, g.Description, g.Gate, g.DisplayName,
		nullString(g.ResponseTemplate), keywordsToJSON(g.Keywords), g.Frequency, g.Source,
		formatTime(g.CreatedAt), formatTime(g.UpdatedAt))
	if err != nil {
		return g, protocol.WriteFailed(fmt.Sprintf("insert glyph %q", g.Name), err)
	}
	if g.ID <= 0 {
		if g.ID, err = res.LastInsertId(); err != nil {
			return g, fmt.Errorf("glyph last insert id: %w", err)
		}
	}

	seq, err := s.appendVersion(ctx, tx, g.ID, change, runID, g)
	if err != nil {
		return g, err
	}
	if _, err := tx.ExecContext(ctx, `UPDATE glyph_lexicon SET activated_seq = ? WHERE id = ?`, seq, g.ID); err != nil {
		return g, protocol.WriteFailed("stamp activation", err)
	}
	g.ActivatedSeq = seq
	return g, nil
}

// updateRow rewrites the mutable columns of an active glyph.
func updateRow(ctx context.Context, tx *sql.Tx, g protocol.Glyph) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE glyph_lexicon SET name = ?, normalized_key = ?, description = ?, gate = ?,
			display_name = ?, response_template = ?, keywords = ?, frequency = ?, updated_at = ?
		 WHERE id = ?`,
		g.Name, g.NormalizedKey, g.Description, g.Gate, g.DisplayName,
		nullString(g.ResponseTemplate), keywordsToJSON(g.Keywords), g.Frequency,
		formatTime(g.UpdatedAt), g.ID)
	if err != nil {
		return protocol.WriteFailed(fmt.Sprintf("update glyph %d", g.ID), err)
	}
	return nil
}
