package feedback

import (
	"time"

	"glyphos/pkg/protocol"
)

// Match says which rule tied a feedback entry to its turn.
type Match string

const (
	MatchExact        Match = "exact"        // same conversation and turn index
	MatchConversation Match = "conversation" // latest turn of the conversation at or before the feedback
	MatchOverall      Match = "overall"      // latest turn of any conversation at or before the feedback
)

// TrainingPair is a feedback entry joined to the turn it reacts to.
type TrainingPair struct {
	FeedbackID      int64   `json:"feedback_id"`
	ConversationID  string  `json:"conversation_id"`
	TurnIndex       int     `json:"turn_index"`
	UserInput       string  `json:"user_input"`
	BotOutput       string  `json:"bot_output"`
	GlyphID         *int64  `json:"glyph_id"`
	Rating          *int    `json:"rating"`
	CorrectedOutput *string `json:"corrected_output,omitempty"`
	Match           Match   `json:"match"`
}

// JoinWithTurns matches every entry to a turn: exact (conversation, turn
// index) first, then the most recent turn of the same conversation at or
// before the feedback time, then the most recent turn overall at or before
// it. Entries with no eligible turn are dropped. Output follows entry order.
func JoinWithTurns(entries []protocol.FeedbackEntry, turns []protocol.Turn) []TrainingPair {
	var pairs []TrainingPair
	for _, e := range entries {
		t, how, ok := matchTurn(e, turns)
		if !ok {
			continue
		}
		pairs = append(pairs, TrainingPair{
			FeedbackID:      e.ID,
			ConversationID:  t.ConversationID,
			TurnIndex:       t.TurnIndex,
			UserInput:       t.UserInput,
			BotOutput:       t.BotOutput,
			GlyphID:         t.GlyphID,
			Rating:          e.Rating,
			CorrectedOutput: e.CorrectionText,
			Match:           how,
		})
	}
	return pairs
}

func matchTurn(e protocol.FeedbackEntry, turns []protocol.Turn) (protocol.Turn, Match, bool) {
	if e.TurnIndex != nil {
		var (
			best  protocol.Turn
			found bool
		)
		for _, t := range turns {
			if t.ConversationID == e.ConversationID && t.TurnIndex == *e.TurnIndex {
				if !found || later(t, best) {
					best, found = t, true
				}
			}
		}
		if found {
			return best, MatchExact, true
		}
	}
	if e.ConversationID != "" {
		if t, ok := latestAtOrBefore(turns, e.CreatedAt, e.ConversationID); ok {
			return t, MatchConversation, true
		}
	}
	if t, ok := latestAtOrBefore(turns, e.CreatedAt, ""); ok {
		return t, MatchOverall, true
	}
	return protocol.Turn{}, "", false
}

// latestAtOrBefore returns the most recent turn created at or before at,
// restricted to conversationID unless it is empty.
func latestAtOrBefore(turns []protocol.Turn, at time.Time, conversationID string) (protocol.Turn, bool) {
	var (
		best  protocol.Turn
		found bool
	)
	for _, t := range turns {
		if conversationID != "" && t.ConversationID != conversationID {
			continue
		}
		if t.CreatedAt.After(at) {
			continue
		}
		if !found || later(t, best) {
			best, found = t, true
		}
	}
	return best, found
}

// later orders turns by creation time, then by id.
func later(a, b protocol.Turn) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}
