// Package feedback persists user reactions and conversation turns, and joins
// the two into training pairs for later ingestion.
package feedback

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"glyphos/internal/logging"
	"glyphos/pkg/protocol"
)

// Log is the append-only feedback log and the conversation turn log. Both
// share the lexicon database.
type Log struct {
	db  *sql.DB
	now func() time.Time
	log *zap.Logger
}

// Option configures a Log.
type Option func(*Log)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(l *Log) { l.now = now }
}

// WithLogger sets the logger.
func WithLogger(lg *zap.Logger) Option {
	return func(l *Log) { l.log = logging.OrNop(lg) }
}

// New returns a Log over db. The schema must already be applied.
func New(db *sql.DB, opts ...Option) *Log {
	l := &Log{db: db, now: time.Now, log: zap.NewNop()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(v string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Record appends one reaction. At least one of Rating and CorrectionText must
// be set. CreatedAt defaults to now.
func (l *Log) Record(ctx context.Context, e protocol.FeedbackEntry) (protocol.FeedbackEntry, error) {
	if e.CorrectionText != nil && strings.TrimSpace(*e.CorrectionText) == "" {
		e.CorrectionText = nil
	}
	if e.Rating == nil && e.CorrectionText == nil {
		return e, &protocol.InvalidInputError{Field: "feedback", Reason: "rating or correction_text required"}
	}
	if e.TurnIndex != nil && *e.TurnIndex < 0 {
		return e, &protocol.InvalidInputError{Field: "turn_index", Reason: "negative"}
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = l.now()
	}

	res, err := l.db.ExecContext(ctx,
		`INSERT INTO feedback_log (conversation_id, turn_index, rating, correction_text, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		e.ConversationID, nullInt(e.TurnIndex), nullInt(e.Rating), nullString(e.CorrectionText),
		formatTime(e.CreatedAt))
	if err != nil {
		return e, protocol.WriteFailed("append feedback", err)
	}
	if e.ID, err = res.LastInsertId(); err != nil {
		return e, fmt.Errorf("feedback last insert id: %w", err)
	}
	l.log.Debug("feedback recorded", zap.Int64("id", e.ID), zap.String("conversation_id", e.ConversationID))
	return e, nil
}

// RecordTurn appends one conversation turn.
func (l *Log) RecordTurn(ctx context.Context, t protocol.Turn) (protocol.Turn, error) {
	if t.ConversationID == "" {
		return t, &protocol.InvalidInputError{Field: "conversation_id", Reason: "empty"}
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = l.now()
	}
	var glyph sql.NullInt64
	if t.GlyphID != nil {
		glyph = sql.NullInt64{Int64: *t.GlyphID, Valid: true}
	}
	res, err := l.db.ExecContext(ctx,
		`INSERT INTO conversation_turns (conversation_id, turn_index, user_input, bot_output, glyph_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		t.ConversationID, t.TurnIndex, t.UserInput, t.BotOutput, glyph, formatTime(t.CreatedAt))
	if err != nil {
		return t, protocol.WriteFailed("append turn", err)
	}
	if t.ID, err = res.LastInsertId(); err != nil {
		return t, fmt.Errorf("turn last insert id: %w", err)
	}
	return t, nil
}

// Entries returns every feedback entry in append order.
func (l *Log) Entries(ctx context.Context) ([]protocol.FeedbackEntry, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, conversation_id, turn_index, rating, correction_text, created_at FROM feedback_log ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query feedback: %w", err)
	}
	defer rows.Close()

	var out []protocol.FeedbackEntry
	for rows.Next() {
		var (
			e          protocol.FeedbackEntry
			turn, rate sql.NullInt64
			correction sql.NullString
			createdAt  string
		)
		if err := rows.Scan(&e.ID, &e.ConversationID, &turn, &rate, &correction, &createdAt); err != nil {
			return nil, fmt.Errorf("scan feedback: %w", err)
		}
		e.TurnIndex = intPtr(turn)
		e.Rating = intPtr(rate)
		if correction.Valid {
			c := correction.String
			e.CorrectionText = &c
		}
		e.CreatedAt = parseTime(createdAt)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("feedback rows: %w", err)
	}
	return out, nil
}

// Turns returns the turns of conversationID in append order, or every turn
// when conversationID is empty.
func (l *Log) Turns(ctx context.Context, conversationID string) ([]protocol.Turn, error) {
	q := `SELECT id, conversation_id, turn_index, user_input, bot_output, glyph_id, created_at FROM conversation_turns`
	var args []any
	if conversationID != "" {
		q += ` WHERE conversation_id = ?`
		args = append(args, conversationID)
	}
	q += ` ORDER BY id`

	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	var out []protocol.Turn
	for rows.Next() {
		var (
			t         protocol.Turn
			glyph     sql.NullInt64
			createdAt string
		)
		if err := rows.Scan(&t.ID, &t.ConversationID, &t.TurnIndex, &t.UserInput, &t.BotOutput, &glyph, &createdAt); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		if glyph.Valid {
			id := glyph.Int64
			t.GlyphID = &id
		}
		t.CreatedAt = parseTime(createdAt)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("turn rows: %w", err)
	}
	return out, nil
}

// LastTurnIndex returns the highest turn index recorded for conversationID,
// or -1 when the conversation has no turns.
func (l *Log) LastTurnIndex(ctx context.Context, conversationID string) (int, error) {
	var idx sql.NullInt64
	if err := l.db.QueryRowContext(ctx,
		`SELECT MAX(turn_index) FROM conversation_turns WHERE conversation_id = ?`, conversationID).Scan(&idx); err != nil {
		return -1, fmt.Errorf("last turn index: %w", err)
	}
	if !idx.Valid {
		return -1, nil
	}
	return int(idx.Int64), nil
}

// Pairs loads the whole feedback and turn logs and joins them.
func (l *Log) Pairs(ctx context.Context) ([]TrainingPair, error) {
	entries, err := l.Entries(ctx)
	if err != nil {
		return nil, err
	}
	turns, err := l.Turns(ctx, "")
	if err != nil {
		return nil, err
	}
	return JoinWithTurns(entries, turns), nil
}

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func intPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}
