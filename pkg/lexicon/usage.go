package lexicon

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"

	"glyphos/pkg/protocol"
	"glyphos/pkg/textnorm"
)

// HashInput returns the hex SHA-256 of the cleaned input text. The usage log
// keeps only this hash, never the message itself.
func HashInput(text string) string {
	sum := sha256.Sum256([]byte(textnorm.Clean(text)))
	return hex.EncodeToString(sum[:])
}

// RecordUsage appends one usage-log entry. CreatedAt defaults to now.
func (s *Store) RecordUsage(ctx context.Context, e protocol.UsageEntry) (protocol.UsageEntry, error) {
	if e.GlyphID <= 0 {
		return e, &protocol.InvalidInputError{Field: "glyph_id", Reason: "missing"}
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO glyph_usage_log (glyph_id, input_hash, conversation_id, turn_index, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		e.GlyphID, e.InputHash, e.ConversationID, e.TurnIndex, formatTime(e.CreatedAt))
	if err != nil {
		return e, protocol.WriteFailed("append usage", err)
	}
	if e.ID, err = res.LastInsertId(); err != nil {
		return e, fmt.Errorf("usage last insert id: %w", err)
	}
	return e, nil
}

// UsageLog returns usage entries in append order. glyphID 0 means all glyphs.
func (s *Store) UsageLog(ctx context.Context, glyphID int64) ([]protocol.UsageEntry, error) {
	q := `SELECT id, glyph_id, input_hash, conversation_id, turn_index, created_at FROM glyph_usage_log`
	var args []any
	if glyphID > 0 {
		q += ` WHERE glyph_id = ?`
		args = append(args, glyphID)
	}
	q += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("usage log: %w", err)
	}
	defer rows.Close()

	var out []protocol.UsageEntry
	for rows.Next() {
		var (
			e         protocol.UsageEntry
			createdAt string
		)
		if err := rows.Scan(&e.ID, &e.GlyphID, &e.InputHash, &e.ConversationID, &e.TurnIndex, &createdAt); err != nil {
			return nil, fmt.Errorf("usage scan: %w", err)
		}
		e.CreatedAt = parseTime(createdAt)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("usage rows: %w", err)
	}
	return out, nil
}

// UsageCounts returns the number of usage entries per glyph id.
func (s *Store) UsageCounts(ctx context.Context) (map[int64]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT glyph_id, COUNT(*) FROM glyph_usage_log GROUP BY glyph_id`)
	if err != nil {
		return nil, fmt.Errorf("usage counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[int64]int)
	for rows.Next() {
		var (
			id int64
			n  int
		)
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("usage counts scan: %w", err)
		}
		counts[id] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("usage counts rows: %w", err)
	}
	return counts, nil
}

// SnapshotTo writes a consistent full copy of the database to dest using
// VACUUM INTO. dest must not exist.
func (s *Store) SnapshotTo(ctx context.Context, dest string) error {
	if _, err := os.Stat(dest); err == nil {
		return fmt.Errorf("snapshot destination %s already exists", dest)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, `VACUUM INTO ?`, dest); err != nil {
		return fmt.Errorf("vacuum into %s: %w", dest, err)
	}
	return nil
}
