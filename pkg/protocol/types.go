package protocol

import (
	"strconv"
	"time"
)

// Glyph represents a row in the glyph_lexicon table.
// ResponseTemplate is nil when no template was authored; an empty string is
// never stored.
type Glyph struct {
	ID               int64     `json:"id"`
	Name             string    `json:"name"`
	NormalizedKey    string    `json:"normalized_key"`
	Description      string    `json:"description"`
	Gate             string    `json:"gate"`
	DisplayName      string    `json:"display_name"`
	ResponseTemplate *string   `json:"response_template"`
	Keywords         []string  `json:"keywords"`
	Frequency        int       `json:"frequency"`
	Source           string    `json:"source"`
	ActivatedSeq     int64     `json:"activated_seq"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Label returns the display name, falling back to the name.
func (g Glyph) Label() string {
	if g.DisplayName != "" {
		return g.DisplayName
	}
	return g.Name
}

// HasTemplate reports whether the glyph carries a non-empty response template.
func (g Glyph) HasTemplate() bool {
	return g.ResponseTemplate != nil && *g.ResponseTemplate != ""
}

// ArchivedGlyph is a row in glyph_lexicon_archived: a complete snapshot of the
// active row at the moment it was archived.
type ArchivedGlyph struct {
	Glyph
	ArchivedID    int64     `json:"archived_id"`
	ArchivedAt    time.Time `json:"archived_at"`
	ArchiveReason string    `json:"archive_reason"`
	ArchivedSeq   int64     `json:"archived_seq"`
	RunID         string    `json:"run_id"`
}

// UsageEntry is a row in the append-only glyph_usage_log table.
type UsageEntry struct {
	ID             int64     `json:"id"`
	GlyphID        int64     `json:"glyph_id"`
	InputHash      string    `json:"input_hash"`
	ConversationID string    `json:"conversation_id"`
	TurnIndex      int       `json:"turn_index"`
	CreatedAt      time.Time `json:"created_at"`
}

// FeedbackEntry is a row in the append-only feedback_log table. A nil
// TurnIndex means the reaction was not tied to a specific turn.
type FeedbackEntry struct {
	ID             int64     `json:"id"`
	ConversationID string    `json:"conversation_id"`
	TurnIndex      *int      `json:"turn_index"`
	Rating         *int      `json:"rating"`
	CorrectionText *string   `json:"correction_text"`
	CreatedAt      time.Time `json:"created_at"`
}

// Turn is a row in conversation_turns.
type Turn struct {
	ID             int64     `json:"id"`
	ConversationID string    `json:"conversation_id"`
	TurnIndex      int       `json:"turn_index"`
	UserInput      string    `json:"user_input"`
	BotOutput      string    `json:"bot_output"`
	GlyphID        *int64    `json:"glyph_id"`
	CreatedAt      time.Time `json:"created_at"`
}

// GlyphVersion is a row in glyph_versions.
type GlyphVersion struct {
	Seq       int64      `json:"seq"`
	GlyphID   int64      `json:"glyph_id"`
	Change    ChangeKind `json:"change"`
	RunID     string     `json:"run_id"`
	Snapshot  string     `json:"snapshot"`
	CreatedAt time.Time  `json:"created_at"`
}

// Candidate is a transient glyph proposal produced during ingestion.
type Candidate struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Gate        string   `json:"gate,omitempty"`
	Keywords    []string `json:"keywords,omitempty"`
	Occurrences int      `json:"frequency,omitempty"`
	Confidence  float64  `json:"confidence,omitempty"`
	SourceRefs  []string `json:"source_refs,omitempty"`
}

// CandidateFile is the candidate-ingest JSON document.
type CandidateFile struct {
	SourceID string      `json:"source_id"`
	Items    []Candidate `json:"items"`
}

// FormatID renders a glyph id for the request/response wire shapes.
func FormatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// ParseID parses a wire glyph id.
func ParseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, &InvalidInputError{Field: "glyph_id", Reason: "not a positive integer: " + s}
	}
	return id, nil
}

// RetrieveRequest is the retrieval request shape.
type RetrieveRequest struct {
	Message string   `json:"message"`
	Gate    string   `json:"gate,omitempty"`
	K       int      `json:"k,omitempty"`
	Context []string `json:"context,omitempty"`
}

// RetrieveHit is one ranked element of a RetrieveResponse.
type RetrieveHit struct {
	GlyphID      string   `json:"glyph_id"`
	Name         string   `json:"name"`
	Score        int      `json:"score"`
	MatchedTerms []string `json:"matched_terms"`
}

// RetrieveResponse is the retrieval response shape. Partial is set when the
// ranking was cut short by a deadline.
type RetrieveResponse struct {
	Results []RetrieveHit `json:"results"`
	Partial bool          `json:"partial,omitempty"`
}

// ComposeRequest is the compose request shape. A nil GlyphID asks the service
// to retrieve one.
type ComposeRequest struct {
	Message        string  `json:"message"`
	GlyphID        *string `json:"glyph_id"`
	ConversationID string  `json:"conversation_id"`
	TurnIndex      int     `json:"turn_index"`
}

// ComposeResponse is the compose response shape.
type ComposeResponse struct {
	Reply           string   `json:"reply"`
	UsedGlyphID     *string  `json:"used_glyph_id"`
	MissingElements []string `json:"missing_elements"`
}

// FeedbackRequest is the feedback request shape.
type FeedbackRequest struct {
	ConversationID string  `json:"conversation_id"`
	TurnIndex      *int    `json:"turn_index"`
	Rating         *int    `json:"rating,omitempty"`
	CorrectionText *string `json:"correction_text,omitempty"`
}

// FeedbackResponse is the feedback response shape.
type FeedbackResponse struct {
	Stored bool `json:"stored"`
}
